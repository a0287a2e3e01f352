package scraper

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wrapTimetable encodes page the way the portal ships it: percent-encoded,
// with every % written as a \x escape inside a sanitizer call.
func wrapTimetable(page string) string {
	encoded := strings.ReplaceAll(url.QueryEscape(page), "%", `\x`)
	return "<html><body><script>pageSanitizer.sanitize('" + encoded + "');</script></body></html>"
}

func courseRow(cells ...string) string {
	return "<tr><td>" + strings.Join(cells, "</td><td>") + "</td></tr>"
}

func timetablePage(batch string) string {
	return `<div><table><tr><td><strong>Registration Number:</strong></td><td>RA2111003010001</td></tr>` +
		`<tr><td><strong>Batch:</strong></td><td><font color="red">` + batch + `</font></td></tr></table>` +
		`<table class="course_tbl">` +
		courseRow("S.No", "Course Code", "Course Title", "Credit", "Regn. Type", "Category", "Course Type", "Faculty Name", "Slot", "Room No.", "Academic Year") +
		courseRow("1", "21MAB201T", "Transforms & Boundary Value Problems", "4", "Regular", "Basic Science", "Theory", "Dr. A", "A-", "TP 401", "AY2025-26") +
		courseRow("2", "21CSC201J", "Data Structures", "4", "Regular", "Professional Core", "Practical", "Dr. B", "P6-P7-P8-", "TP 1102", "AY2025-26") +
		courseRow("3", "21CSC202J", "Operating Systems", "4", "Regular", "Professional Core", "Theory", "Dr. C", "B", "", "AY2025-26") +
		courseRow("4", "trailing") +
		`</table></div>`
}

func TestDecodeTimetablePayload(t *testing.T) {
	page := `<p class="x">It's 100% done & "quoted"</p>`
	got, err := decodeTimetablePayload(wrapTimetable(page))
	require.NoError(t, err)
	assert.Equal(t, page, got)

	got, err = decodeTimetablePayload(`pageSanitizer.sanitize('\x3Cb\x3E a \'b\'');`)
	require.NoError(t, err)
	assert.Equal(t, `<b> a 'b'`, got)

	_, err = decodeTimetablePayload("<html>nothing here</html>")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestTimetableParse(t *testing.T) {
	p := NewTimetableParser(BatchSlots, quietLogger())

	batch, courses, err := p.Parse(wrapTimetable(timetablePage("2")))
	require.NoError(t, err)
	assert.Equal(t, 2, batch)
	assert.Len(t, courses, 5)

	assert.Equal(t, CourseInfo{
		Title:    "Transforms & Boundary Value Problems",
		Code:     "21MAB201T",
		Type:     "Theory",
		Category: "Basic Science",
		RoomNo:   "TP 401",
	}, courses["A"])
	for _, slot := range []string{"P6", "P7", "P8"} {
		assert.Equal(t, "21CSC201J", courses[slot].Code, slot)
	}
	assert.Equal(t, "", courses["B"].RoomNo)
	assert.NotContains(t, courses, "Slot")
}

func TestTimetableParseBatchFallback(t *testing.T) {
	p := NewTimetableParser(BatchSlots, quietLogger())

	for _, text := range []string{"", "abc", "0"} {
		batch, _, err := p.Parse(wrapTimetable(timetablePage(text)))
		require.NoError(t, err)
		assert.Equal(t, DefaultBatch, batch, text)
	}

	batch, _, err := p.Parse(wrapTimetable(timetablePage("1/2")))
	require.NoError(t, err)
	assert.Equal(t, 2, batch)
}

func TestTimetableParseWithoutPayload(t *testing.T) {
	p := NewTimetableParser(BatchSlots, quietLogger())
	_, err := p.ParseSchedule("<html><body>Session expired</body></html>")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestScheduleBatchOne(t *testing.T) {
	p := NewTimetableParser(BatchSlots, quietLogger())

	schedule, err := p.ParseSchedule(wrapTimetable(timetablePage("1")))
	require.NoError(t, err)
	require.Len(t, schedule, 5)

	day1 := schedule[0]
	assert.Equal(t, "Day1", day1.DayOrder)
	require.Len(t, day1.Classes, 10)

	first := day1.Classes[0]
	assert.True(t, first.IsClass)
	assert.Equal(t, "A", first.Slot)
	assert.Equal(t, "21MAB201T", first.CourseCode)
	assert.Equal(t, "08:00 AM - 08:50 AM", first.Time)

	free := day1.Classes[2]
	assert.Equal(t, "F", free.Slot)
	assert.False(t, free.IsClass)
	assert.Empty(t, free.CourseCode)

	lab := day1.Classes[5]
	assert.Equal(t, "P6", lab.Slot)
	assert.True(t, lab.IsClass)
	assert.Equal(t, "Practical", lab.CourseType)
}

func TestScheduleUnknownBatchUsesDefault(t *testing.T) {
	p := NewTimetableParser(BatchSlots, quietLogger())

	schedule := p.Schedule(9, map[string]CourseInfo{"A": {Code: "X"}})
	require.Len(t, schedule, 5)
	assert.Equal(t, BatchSlots[DefaultBatch][0].Slots[0], schedule[0].Classes[0].Slot)
	assert.True(t, schedule[0].Classes[0].IsClass)
}

func TestScheduleBatchTwoShiftsTheory(t *testing.T) {
	p := NewTimetableParser(BatchSlots, quietLogger())

	schedule := p.Schedule(2, map[string]CourseInfo{"A": {Code: "MA101"}})
	classes := schedule[0].Classes
	assert.False(t, classes[0].IsClass)
	assert.True(t, classes[5].IsClass)
	assert.Equal(t, "12:30 PM - 01:20 PM", classes[5].Time)
}

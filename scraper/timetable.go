package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Registered-courses table layout. Every course row is courseRowCells cells
// wide; the col* constants are offsets inside a row.
const (
	courseCellSelector = ".course_tbl td"
	courseRowCells     = 11
	colCourseCode      = 1
	colCourseTitle     = 2
	colCategory        = 5
	colCourseType      = 6
	colSlot            = 8
	colRoomNo          = 9

	batchLabel     = "Batch:"
	slotSeparator  = "-"
	headerCodeText = "course code"
)

var (
	sanitizerPattern = regexp.MustCompile(`(?s)pageSanitizer\.sanitize\('(.*)'\);`)
	hexEscape        = regexp.MustCompile(`\\x([0-9A-Fa-f]{2})`)
	quoteUnescaper   = strings.NewReplacer(`\'`, `'`, `\"`, `"`)
)

// TimetableParser reads the student's batch and registered courses from the
// timetable page and lays them over the batch's slot template.
type TimetableParser struct {
	Templates SlotTemplates
	log       logrus.FieldLogger
}

func NewTimetableParser(templates SlotTemplates, log logrus.FieldLogger) *TimetableParser {
	return &TimetableParser{Templates: templates, log: log}
}

// ParseSchedule parses the page and builds one DaySchedule per day order.
func (p *TimetableParser) ParseSchedule(rawHTML string) ([]DaySchedule, error) {
	batch, courses, err := p.Parse(rawHTML)
	if err != nil {
		return nil, err
	}
	return p.Schedule(batch, courses), nil
}

// Parse returns the batch number and a slot code -> course mapping.
func (p *TimetableParser) Parse(rawHTML string) (int, map[string]CourseInfo, error) {
	page, err := decodeTimetablePayload(rawHTML)
	if err != nil {
		return 0, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return 0, nil, errors.Wrap(err, "error parsing timetable HTML")
	}

	batchText, _ := labelValue(doc, batchLabel)
	batch, ok := parseBatch(batchText)
	if !ok {
		p.log.Warnf("Could not parse batch number from %q, defaulting to batch %d", batchText, DefaultBatch)
	}

	courses := make(map[string]CourseInfo)
	texts := doc.Find(courseCellSelector).Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})
	for i, row := range lo.Chunk(texts, courseRowCells) {
		if len(row) < courseRowCells {
			continue
		}
		if i == 0 && strings.EqualFold(row[colCourseCode], headerCodeText) {
			continue
		}
		info := CourseInfo{
			Title:    row[colCourseTitle],
			Code:     row[colCourseCode],
			Type:     row[colCourseType],
			Category: row[colCategory],
			RoomNo:   row[colRoomNo],
		}
		for _, slot := range strings.Split(row[colSlot], slotSeparator) {
			if slot = strings.TrimSpace(slot); slot != "" {
				courses[slot] = info
			}
		}
	}
	p.log.Debugf("Parsed batch %d with %d occupied slots", batch, len(courses))
	return batch, courses, nil
}

// Schedule applies courses to the batch template.
func (p *TimetableParser) Schedule(batch int, courses map[string]CourseInfo) []DaySchedule {
	days, ok := p.Templates.ForBatch(batch)
	if !ok {
		p.log.Warnf("No slot template for batch %d, using batch %d", batch, DefaultBatch)
	}

	schedule := make([]DaySchedule, 0, len(days))
	for _, day := range days {
		classes := make([]CourseSlot, 0, len(day.Slots))
		for i, slotName := range day.Slots {
			slot := CourseSlot{Slot: slotName, Time: day.Times[i]}
			if info, ok := courses[slotName]; ok {
				slot.IsClass = true
				slot.CourseTitle = info.Title
				slot.CourseCode = info.Code
				slot.CourseType = info.Type
				slot.CourseCategory = info.Category
				slot.RoomNo = info.RoomNo
			}
			classes = append(classes, slot)
		}
		schedule = append(schedule, DaySchedule{DayOrder: day.DayOrder, Classes: classes})
	}
	return schedule
}

// decodeTimetablePayload pulls the real page out of the sanitizer call it is
// wrapped in. The literal uses \xHH escapes over an otherwise percent-encoded
// document.
func decodeTimetablePayload(rawHTML string) (string, error) {
	m := sanitizerPattern.FindStringSubmatch(rawHTML)
	if m == nil {
		return "", errors.Wrap(ErrProtocol, "timetable page carries no sanitizer payload")
	}
	encoded := quoteUnescaper.Replace(hexEscape.ReplaceAllString(m[1], "%$1"))
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", errors.Wrapf(ErrProtocol, "undecodable timetable payload: %v", err)
	}
	return decoded, nil
}

// labelValue returns the text of the cell following the innermost cell
// containing label.
func labelValue(doc *goquery.Document, label string) (string, bool) {
	cell := doc.Find("td").FilterFunction(func(_ int, td *goquery.Selection) bool {
		return td.Find("td").Length() == 0 && strings.Contains(td.Text(), label)
	}).First()
	if cell.Length() == 0 {
		return "", false
	}
	next := cell.Next()
	if next.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(next.Text()), true
}

// parseBatch reads "N" or "X/N" as batch N.
func parseBatch(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if i := strings.LastIndex(text, "/"); i >= 0 {
		text = text[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return DefaultBatch, false
	}
	return n, true
}

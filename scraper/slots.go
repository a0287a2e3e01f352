package scraper

// DayDefinition is one day order of a batch's weekly template. Slots and
// Times are parallel lists.
type DayDefinition struct {
	DayOrder string
	Slots    []string
	Times    []string
}

// SlotTemplates maps a batch number to its day definitions.
type SlotTemplates map[int][]DayDefinition

// DefaultBatch is used when the timetable page does not name a known batch.
const DefaultBatch = 1

var periodTimes = []string{
	"08:00 AM - 08:50 AM",
	"08:50 AM - 09:40 AM",
	"09:45 AM - 10:35 AM",
	"10:40 AM - 11:30 AM",
	"11:35 AM - 12:25 PM",
	"12:30 PM - 01:20 PM",
	"01:25 PM - 02:15 PM",
	"02:20 PM - 03:10 PM",
	"03:10 PM - 04:00 PM",
	"04:00 PM - 04:50 PM",
}

// BatchSlots is the unified slot timetable of both batches.
var BatchSlots = SlotTemplates{
	1: {
		{DayOrder: "Day1", Slots: []string{"A", "A", "F", "F", "G", "P6", "P7", "P8", "P9", "P10"}, Times: periodTimes},
		{DayOrder: "Day2", Slots: []string{"P11", "P12", "P13", "P14", "P15", "B", "B", "G", "G", "A"}, Times: periodTimes},
		{DayOrder: "Day3", Slots: []string{"C", "C", "A", "D", "B", "P26", "P27", "P28", "P29", "P30"}, Times: periodTimes},
		{DayOrder: "Day4", Slots: []string{"P31", "P32", "P33", "P34", "P35", "D", "D", "B", "E", "C"}, Times: periodTimes},
		{DayOrder: "Day5", Slots: []string{"E", "E", "C", "F", "D", "P46", "P47", "P48", "P49", "P50"}, Times: periodTimes},
	},
	2: {
		{DayOrder: "Day1", Slots: []string{"P1", "P2", "P3", "P4", "P5", "A", "A", "F", "F", "G"}, Times: periodTimes},
		{DayOrder: "Day2", Slots: []string{"B", "B", "G", "G", "A", "P16", "P17", "P18", "P19", "P20"}, Times: periodTimes},
		{DayOrder: "Day3", Slots: []string{"P21", "P22", "P23", "P24", "P25", "C", "C", "A", "D", "B"}, Times: periodTimes},
		{DayOrder: "Day4", Slots: []string{"D", "D", "B", "E", "C", "P36", "P37", "P38", "P39", "P40"}, Times: periodTimes},
		{DayOrder: "Day5", Slots: []string{"P41", "P42", "P43", "P44", "P45", "E", "E", "C", "F", "D"}, Times: periodTimes},
	},
}

// ForBatch returns the batch's day definitions, falling back to DefaultBatch.
func (t SlotTemplates) ForBatch(batch int) ([]DayDefinition, bool) {
	if days, ok := t[batch]; ok && len(days) > 0 {
		return days, true
	}
	return t[DefaultBatch], false
}

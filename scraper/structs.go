package scraper

// CourseInfo is one row of the registered-courses table.
type CourseInfo struct {
	Title    string
	Code     string
	Type     string
	Category string
	RoomNo   string
}

// CourseSlot is one period of a day-order template. IsClass is false for free
// periods, which never produce calendar events.
type CourseSlot struct {
	Slot           string
	IsClass        bool
	CourseTitle    string
	CourseCode     string
	CourseType     string
	CourseCategory string
	RoomNo         string
	// Time is the raw range as shown by the portal, e.g. "08:00 AM - 08:50 AM".
	Time string
}

// DaySchedule is the ordered list of periods for one day order ("Day1".."Day5").
type DaySchedule struct {
	DayOrder string
	Classes  []CourseSlot
}

// DayEvent is one calendar day of the academic planner.
type DayEvent struct {
	Date     string // DD-MMM-YYYY
	Weekday  string
	Event    string
	DayOrder string // "DayN", "Holiday", "" or whatever else the planner printed
}

// Session is the cookie state of one authenticated portal login. It is built
// fresh for every pipeline run and never persisted.
type Session struct {
	Cookie    string
	CSRFToken string
}

func (s Session) Valid() bool {
	return s.Cookie != ""
}

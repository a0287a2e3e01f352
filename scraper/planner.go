package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Academic planner layout. The calendar table is embedded as an HTML string in
// an attribute of a placeholder div. Each month takes monthColumns cells of
// every row; the col* constants are offsets inside one month group.
const (
	plannerPlaceholderSelector = "div.zc-pb-embed-placeholder-content"
	plannerPayloadAttr         = "zmlvalue"
	plannerTableSelector       = "table[bgcolor='#FAFCFE']"

	monthColumns = 5
	colDate      = 0
	colWeekday   = 1
	colEvent     = 2
	colDayOrder  = 3
)

var monthLabelPattern = regexp.MustCompile(`([A-Za-z]{3,})[^0-9]*?(\d{4}|\d{2})\b`)

// PlannerParser reads the semester calendar.
type PlannerParser struct {
	log logrus.FieldLogger
}

func NewPlannerParser(log logrus.FieldLogger) *PlannerParser {
	return &PlannerParser{log: log}
}

// plannerMonth is one header column group: "Sep" and "2025".
type plannerMonth struct {
	abbr string
	year string
}

// Parse returns every day of every month in the planner, in row order. An
// empty result is normal between semesters.
func (p *PlannerParser) Parse(rawHTML string) []DayEvent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		p.log.Warnf("Could not parse academic planner HTML: %v", err)
		return nil
	}
	payload, ok := doc.Find(plannerPlaceholderSelector).First().Attr(plannerPayloadAttr)
	if !ok {
		p.log.Warnf("No %s payload on the academic planner page", plannerPayloadAttr)
		return nil
	}
	inner, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
	if err != nil {
		p.log.Warnf("Could not parse embedded academic planner: %v", err)
		return nil
	}
	table := inner.Find(plannerTableSelector).First()
	if table.Length() == 0 {
		p.log.Warn("No calendar table inside the academic planner payload")
		return nil
	}

	rows := table.Find("tr")
	months := p.headerMonths(rows.First())
	if len(months) == 0 {
		p.log.Warn("Academic planner header names no months")
		return nil
	}

	var days []DayEvent
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		for m, month := range months {
			if month.abbr == "" {
				continue
			}
			offset := m * monthColumns
			if offset+colDayOrder >= cells.Length() {
				break
			}
			dayOfMonth := strings.TrimSpace(cells.Eq(offset + colDate).Text())
			if !isDigits(dayOfMonth) {
				continue
			}
			n, _ := strconv.Atoi(dayOfMonth)
			days = append(days, DayEvent{
				Date:     fmt.Sprintf("%02d-%s-%s", n, month.abbr, month.year),
				Weekday:  strings.TrimSpace(cells.Eq(offset + colWeekday).Text()),
				Event:    strings.TrimSpace(cells.Eq(offset + colEvent).Find("strong").First().Text()),
				DayOrder: normalizeDayOrder(cells.Eq(offset + colDayOrder).Text()),
			})
		}
	})
	p.log.Debugf("Parsed %d planner days over %d months", len(days), len(months))
	return days
}

// headerMonths collects month labels group by group until a group has none.
// A label that cannot be read keeps its slot so later offsets stay aligned.
func (p *PlannerParser) headerMonths(header *goquery.Selection) []plannerMonth {
	cells := header.Children()
	var months []plannerMonth
	for offset := 0; offset < cells.Length(); offset += monthColumns {
		label := strings.TrimSpace(cells.Slice(offset, min(offset+monthColumns, cells.Length())).Find("strong").First().Text())
		if label == "" {
			break
		}
		month, ok := parseMonthLabel(label)
		if !ok {
			p.log.Warnf("Unreadable planner month label %q, skipping its column", label)
		}
		months = append(months, month)
	}
	return months
}

// parseMonthLabel reads labels such as "September '25", "Sep 2025" or "July - 2025".
func parseMonthLabel(label string) (plannerMonth, bool) {
	m := monthLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return plannerMonth{}, false
	}
	name := strings.ToLower(m[1][:3])
	abbr := strings.ToUpper(name[:1]) + name[1:]
	if _, err := time.Parse("Jan", abbr); err != nil {
		return plannerMonth{}, false
	}
	year := m[2]
	if len(year) == 2 {
		year = "20" + year
	}
	return plannerMonth{abbr: abbr, year: year}, true
}

// normalizeDayOrder strips whitespace ("Day 1" -> "Day1") and turns a bare
// number into the timetable's "DayN" form.
func normalizeDayOrder(raw string) string {
	order := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if isDigits(order) {
		n, _ := strconv.Atoi(order)
		return "Day" + strconv.Itoa(n)
	}
	return order
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

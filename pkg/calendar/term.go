package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/limaJavier/campus-timetabling/pkg/model"
)

type monthDay struct {
	Month time.Month
	Day   int
}

type termRange struct {
	From monthDay
	To   monthDay
}

// TermDates maps a semester name to the yearly dates it spans
type TermDates map[string]termRange

const DefaultTermDates = "spring=01-15..05-15,summer=06-01..08-15,fall=09-01..12-20,winter=12-27..01-20"

// ParseTermDates reads "semester=MM-DD..MM-DD" pairs separated by commas
func ParseTermDates(value string) (TermDates, error) {
	dates := make(TermDates)
	for _, pair := range strings.Split(value, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		semester, bounds, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("term %q must have the form semester=MM-DD..MM-DD", pair)
		}
		from, to, ok := strings.Cut(bounds, "..")
		if !ok {
			return nil, fmt.Errorf("term %q must have the form semester=MM-DD..MM-DD", pair)
		}
		fromDay, err := parseMonthDay(from)
		if err != nil {
			return nil, err
		}
		toDay, err := parseMonthDay(to)
		if err != nil {
			return nil, err
		}
		dates[strings.ToLower(strings.TrimSpace(semester))] = termRange{From: fromDay, To: toDay}
	}
	return dates, nil
}

func parseMonthDay(value string) (monthDay, error) {
	parsed, err := time.Parse("01-02", strings.TrimSpace(value))
	if err != nil {
		return monthDay{}, fmt.Errorf("date %q must have the form MM-DD: %w", value, err)
	}
	return monthDay{Month: parsed.Month(), Day: parsed.Day()}, nil
}

// Term resolves the concrete dates of a scope; a range whose end precedes its start ends the following year
func (dates TermDates) Term(scope model.Scope, location *time.Location) (Term, error) {
	bounds, ok := dates[scope.Semester]
	if !ok {
		return Term{}, fmt.Errorf("%w: no term dates for semester %q", model.ErrInvalidScope, scope.Semester)
	}
	if location == nil {
		location = time.UTC
	}
	start := time.Date(scope.Year, bounds.From.Month, bounds.From.Day, 0, 0, 0, 0, location)
	end := time.Date(scope.Year, bounds.To.Month, bounds.To.Day, 0, 0, 0, 0, location)
	if end.Before(start) {
		end = end.AddDate(1, 0, 0)
	}
	return Term{Start: start, End: end, Location: location}, nil
}

package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/limaJavier/campus-timetabling/pkg/model"
)

const (
	ContentType     = "text/calendar; charset=utf-8"
	productId       = "-//campus-timetabling//schedule export//EN"
	localTimeLayout = "20060102T150405"
	utcTimeLayout   = "20060102T150405Z"
)

// Term is the date range during which the weekly schedule repeats
type Term struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// Event is what a calendar client sees of a schedule entry
type Event struct {
	Uid      string
	Title    string
	Location string
	Day      time.Weekday
	Start    model.ClockTime
	End      model.ClockTime
	First    time.Time
}

// Export writes one weekly recurring event per entry. Each event starts on the first term date that falls on the
// entry's weekday and repeats until the end of the term. A term too short to reach an entry's weekday is an error.
func Export(schedule model.Schedule, entries []model.ScheduleEntry, term Term, name string) ([]byte, error) {
	if term.Location == nil {
		term.Location = time.UTC
	}
	if term.End.Before(term.Start) {
		return nil, fmt.Errorf("term ends (%v) before it starts (%v)", term.End, term.Start)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productId)
	cal.SetXWRCalName(name)
	cal.SetXWRTimezone(term.Location.String())

	until := time.Date(term.End.Year(), term.End.Month(), term.End.Day(), 23, 59, 59, 0, term.Location).UTC()
	for i, entry := range entries {
		first := firstOccurrence(term, entry.Day)
		if first.After(term.End) {
			return nil, fmt.Errorf("%v meets on %v but the term %v..%v has no such day",
				entry.Label(), entry.Day, term.Start.Format(time.DateOnly), term.End.Format(time.DateOnly))
		}
		start := at(first, entry.StartTime, term.Location)
		end := at(first, entry.EndTime, term.Location)

		event := cal.AddEvent(fmt.Sprintf("%v-%d@campus-timetabling", schedule.Id, i))
		event.SetDtStampTime(schedule.GeneratedAt)
		event.SetProperty(ics.ComponentPropertyDtStart, start.Format(localTimeLayout), tzid(term.Location))
		event.SetProperty(ics.ComponentPropertyDtEnd, end.Format(localTimeLayout), tzid(term.Location))
		event.SetProperty(ics.ComponentPropertyRrule, "FREQ=WEEKLY;UNTIL="+until.Format(utcTimeLayout))
		event.SetSummary(entry.Label())
		event.SetLocation(entry.ClassroomId)
		event.SetDescription(fmt.Sprintf("Section %v taught by %v", entry.SectionId, entry.InstructorId))
	}

	return []byte(cal.Serialize()), nil
}

// Parse reads back the events of an exported calendar
func Parse(reader io.Reader) ([]Event, error) {
	cal, err := ics.ParseCalendar(reader)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]Event, 0, len(cal.Events()))
	for _, vevent := range cal.Events() {
		start, err := timeProperty(vevent, ics.ComponentPropertyDtStart)
		if err != nil {
			return nil, err
		}
		end, err := timeProperty(vevent, ics.ComponentPropertyDtEnd)
		if err != nil {
			return nil, err
		}
		events = append(events, Event{
			Uid:      vevent.Id(),
			Title:    textProperty(vevent, ics.ComponentPropertySummary),
			Location: textProperty(vevent, ics.ComponentPropertyLocation),
			Day:      start.Weekday(),
			Start:    model.NewClockTime(start.Hour(), start.Minute()),
			End:      model.NewClockTime(end.Hour(), end.Minute()),
			First:    start,
		})
	}
	return events, nil
}

// Filename is the download name suggested for a recipient's calendar
func Filename(scope model.Scope, recipientId string) string {
	name := fmt.Sprintf("schedule-%v-%v.ics", scope.Key(), recipientId)
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '"' || r == ' ' {
			return '_'
		}
		return r
	}, name)
}

func firstOccurrence(term Term, day time.Weekday) time.Time {
	start := time.Date(term.Start.Year(), term.Start.Month(), term.Start.Day(), 0, 0, 0, 0, term.Location)
	offset := (int(day) - int(start.Weekday()) + 7) % 7
	return start.AddDate(0, 0, offset)
}

func at(date time.Time, clock model.ClockTime, location *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, location)
}

func tzid(location *time.Location) ics.PropertyParameter {
	return &ics.KeyValues{Key: string(ics.ParameterTzid), Value: []string{location.String()}}
}

func textProperty(event *ics.VEvent, property ics.ComponentProperty) string {
	if prop := event.GetProperty(property); prop != nil {
		return prop.Value
	}
	return ""
}

// timeProperty reads local times with a TZID parameter as well as UTC times
func timeProperty(event *ics.VEvent, property ics.ComponentProperty) (time.Time, error) {
	prop := event.GetProperty(property)
	if prop == nil {
		return time.Time{}, fmt.Errorf("event %v has no %v", event.Id(), property)
	}
	if strings.HasSuffix(prop.Value, "Z") {
		return time.Parse(utcTimeLayout, prop.Value)
	}
	location := time.UTC
	if values, ok := prop.ICalParameters[string(ics.ParameterTzid)]; ok && len(values) == 1 {
		loaded, err := time.LoadLocation(values[0])
		if err != nil {
			return time.Time{}, fmt.Errorf("event %v: %w", event.Id(), err)
		}
		location = loaded
	}
	return time.ParseInLocation(localTimeLayout, prop.Value, location)
}

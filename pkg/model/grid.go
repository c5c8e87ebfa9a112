package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day expressed in minutes since midnight
type ClockTime uint16

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func ParseClockTime(value string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock time %q must have the form HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("clock time %q has an invalid hour", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock time %q has an invalid minute", value)
	}
	return NewClockTime(hour, minute), nil
}

func (clock ClockTime) Hour() int   { return int(clock) / 60 }
func (clock ClockTime) Minute() int { return int(clock) % 60 }

func (clock ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", clock.Hour(), clock.Minute())
}

func (clock ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(clock.String())
}

func (clock *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return err
	}
	*clock = parsed
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full english names and their three-letter prefixes ("mon", "Tuesday")
func ParseWeekday(value string) (time.Weekday, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for name, day := range weekdays {
		if value == name || (len(value) == 3 && strings.HasPrefix(name, value)) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", value)
}

type Period struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

func (period Period) Minutes() uint64 {
	return uint64(period.End) - uint64(period.Start)
}

// ParsePeriod reads ranges of the form "08:00-09:30"
func ParsePeriod(value string) (Period, error) {
	bounds := strings.Split(value, "-")
	if len(bounds) != 2 {
		return Period{}, fmt.Errorf("period %q must have the form HH:MM-HH:MM", value)
	}
	start, err := ParseClockTime(bounds[0])
	if err != nil {
		return Period{}, err
	}
	end, err := ParseClockTime(bounds[1])
	if err != nil {
		return Period{}, err
	}
	return Period{Start: start, End: end}, nil
}

// Grid is the fixed institutional week: every (day, period) pair is a TimeSlot
type Grid struct {
	Days    []time.Weekday `json:"days"`
	Periods []Period       `json:"periods"`
}

type TimeSlot struct {
	Id     uint64       `json:"id"`
	Day    time.Weekday `json:"day"`
	Period uint64       `json:"period"`
	Start  ClockTime    `json:"start"`
	End    ClockTime    `json:"end"`
}

func (slot TimeSlot) String() string {
	return fmt.Sprintf("%v %v-%v", slot.Day, slot.Start, slot.End)
}

func (grid Grid) TotalDays() uint64    { return uint64(len(grid.Days)) }
func (grid Grid) TotalPeriods() uint64 { return uint64(len(grid.Periods)) }
func (grid Grid) TotalSlots() uint64   { return grid.TotalDays() * grid.TotalPeriods() }

// Slot returns the slot of the given day and period indexes; ids grow period first, then day
func (grid Grid) Slot(day, period uint64) TimeSlot {
	return TimeSlot{
		Id:     period + grid.TotalPeriods()*day,
		Day:    grid.Days[day],
		Period: period,
		Start:  grid.Periods[period].Start,
		End:    grid.Periods[period].End,
	}
}

func (grid Grid) Slots() []TimeSlot {
	slots := make([]TimeSlot, 0, grid.TotalSlots())
	for day := range grid.TotalDays() {
		for period := range grid.TotalPeriods() {
			slots = append(slots, grid.Slot(day, period))
		}
	}
	return slots
}

// Locate finds the (day, period) indexes of a concrete time range, ok is false when the range is not a grid slot
func (grid Grid) Locate(day time.Weekday, start, end ClockTime) (dayIndex, periodIndex uint64, ok bool) {
	dayFound, periodFound := false, false
	for i, gridDay := range grid.Days {
		if gridDay == day {
			dayIndex, dayFound = uint64(i), true
			break
		}
	}
	for i, period := range grid.Periods {
		if period.Start == start && period.End == end {
			periodIndex, periodFound = uint64(i), true
			break
		}
	}
	return dayIndex, periodIndex, dayFound && periodFound
}

func (grid Grid) validate() error {
	if len(grid.Days) == 0 {
		return &ValidationError{Field: "Grid.Days", Reason: "at least one day is required"}
	}
	if len(grid.Periods) == 0 {
		return &ValidationError{Field: "Grid.Periods", Reason: "at least one period is required"}
	}
	seen := make(map[time.Weekday]bool)
	for i, day := range grid.Days {
		if day < time.Sunday || day > time.Saturday {
			return &ValidationError{Field: fmt.Sprintf("Grid.Days[%d]", i), Reason: "not a weekday"}
		}
		if seen[day] {
			return &ValidationError{Field: fmt.Sprintf("Grid.Days[%d]", i), Reason: fmt.Sprintf("%v is repeated", day)}
		}
		seen[day] = true
	}
	for i, period := range grid.Periods {
		if period.End <= period.Start {
			return &ValidationError{Field: fmt.Sprintf("Grid.Periods[%d]", i), Reason: "end must be after start"}
		}
		// Periods are ordered and disjoint so that slot overlap is slot equality
		if i > 0 && period.Start < grid.Periods[i-1].End {
			return &ValidationError{Field: fmt.Sprintf("Grid.Periods[%d]", i), Reason: "overlaps the previous period"}
		}
	}
	return nil
}

// ParseGrid builds a grid from comma separated days and periods ("mon,tue" and "08:00-09:00,09:00-10:00")
func ParseGrid(days, periods string) (Grid, error) {
	grid := Grid{}
	for _, value := range strings.Split(days, ",") {
		if strings.TrimSpace(value) == "" {
			continue
		}
		day, err := ParseWeekday(value)
		if err != nil {
			return Grid{}, err
		}
		grid.Days = append(grid.Days, day)
	}
	for _, value := range strings.Split(periods, ",") {
		if strings.TrimSpace(value) == "" {
			continue
		}
		period, err := ParsePeriod(value)
		if err != nil {
			return Grid{}, err
		}
		grid.Periods = append(grid.Periods, period)
	}
	return grid, grid.validate()
}

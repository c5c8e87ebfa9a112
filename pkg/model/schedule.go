package model

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
)

type ScheduleEntry struct {
	SectionId     string       `json:"sectionId"`
	CourseCode    string       `json:"courseCode"`
	SectionNumber string       `json:"sectionNumber"`
	InstructorId  string       `json:"instructorId"`
	Day           time.Weekday `json:"day"`
	StartTime     ClockTime    `json:"startTime"`
	EndTime       ClockTime    `json:"endTime"`
	ClassroomId   string       `json:"classroomId"`
}

func (entry ScheduleEntry) Label() string {
	return entry.CourseCode + "-" + entry.SectionNumber
}

// Overlaps reports whether both entries share a day and an overlapping time range
func (entry ScheduleEntry) Overlaps(other ScheduleEntry) bool {
	return entry.Day == other.Day && entry.StartTime < other.EndTime && other.StartTime < entry.EndTime
}

func compareEntries(a, b ScheduleEntry) int {
	return cmp.Or(
		cmp.Compare(a.Day, b.Day),
		cmp.Compare(a.StartTime, b.StartTime),
		strings.Compare(a.ClassroomId, b.ClassroomId),
		strings.Compare(a.SectionId, b.SectionId),
	)
}

// SortEntries orders entries by day, start time, classroom and section
func SortEntries(entries []ScheduleEntry) {
	slices.SortFunc(entries, compareEntries)
}

type Schedule struct {
	Id           uuid.UUID       `json:"id"`
	Scope        Scope           `json:"scope"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	Status       Status          `json:"status"`
	Outcome      Outcome         `json:"outcome,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	SupersededAt *time.Time      `json:"supersededAt,omitempty"`
	Entries      []ScheduleEntry `json:"entries"`

	// Enrollments the entries were checked against, as they stood when the run took its snapshot
	Enrollments []Enrollment `json:"-"`
}

// ForSections keeps the entries of the given sections
func (schedule Schedule) ForSections(sectionIds []string) Schedule {
	wanted := lo.Keyify(sectionIds)
	filtered := schedule
	filtered.Entries = lo.Filter(schedule.Entries, func(entry ScheduleEntry, _ int) bool {
		_, ok := wanted[entry.SectionId]
		return ok
	})
	return filtered
}

// SectionsOfStudent lists the sections the student was enrolled in when the schedule was generated
func (schedule Schedule) SectionsOfStudent(studentId string) []string {
	return lo.Uniq(lo.FilterMap(schedule.Enrollments, func(enrollment Enrollment, _ int) (string, bool) {
		return enrollment.SectionId, enrollment.StudentId == studentId
	}))
}

// SectionsOf lists the sections a person attends, as a student or as the instructor
func SectionsOf(personId string, sections []Section) []string {
	return lo.FilterMap(sections, func(section Section, _ int) (string, bool) {
		return section.Id, section.AssignedInstructorId == personId || slices.Contains(section.EnrolledStudentIds, personId)
	})
}

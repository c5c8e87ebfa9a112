package engine

import (
	"fmt"
	"slices"

	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
)

type Invariant int

const (
	InvariantNone Invariant = iota
	InvariantRoomOverlap
	InvariantInstructorOverlap
	InvariantStudentOverlap
	InvariantMeetingCount
	InvariantRoomCapacity
	InvariantGridSlot
	InvariantReference // Entry or candidate refers to an unknown section, classroom or slot
)

var invariantNames = map[Invariant]string{
	InvariantNone:              "none",
	InvariantRoomOverlap:       "room-overlap",
	InvariantInstructorOverlap: "instructor-overlap",
	InvariantStudentOverlap:    "student-overlap",
	InvariantMeetingCount:      "meeting-count",
	InvariantRoomCapacity:      "room-capacity",
	InvariantGridSlot:          "grid-slot",
	InvariantReference:         "unknown-reference",
}

func (invariant Invariant) String() string {
	return invariantNames[invariant]
}

func (invariant Invariant) MarshalText() ([]byte, error) {
	return []byte(invariant.String()), nil
}

// Violation is the first broken invariant of a candidate or a schedule, together with the entries involved
type Violation struct {
	Invariant Invariant             `json:"invariant"`
	Message   string                `json:"message"`
	Entries   []model.ScheduleEntry `json:"entries,omitempty"`
}

func (violation *Violation) Error() string {
	return fmt.Sprintf("%v: %v", violation.Invariant, violation.Message)
}

type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Violation *Violation `json:"violation,omitempty"`
}

// ConflictValidator checks candidates against the reservations of a ConstraintIndex. It never mutates the index.
type ConflictValidator struct {
	input       model.ModelInput
	index       *ConstraintIndex
	instructors []int   // Instructor handle per section
	students    [][]int // Student handles per section
}

func NewConflictValidator(input model.ModelInput, index *ConstraintIndex) *ConflictValidator {
	validator := &ConflictValidator{
		input:       input,
		index:       index,
		instructors: make([]int, len(input.Sections)),
		students:    make([][]int, len(input.Sections)),
	}
	for i, section := range input.Sections {
		validator.instructors[i], _ = index.Handle(InstructorResource, section.AssignedInstructorId)
		validator.students[i] = lo.Map(section.EnrolledStudentIds, func(student string, _ int) int {
			handle, _ := index.Handle(StudentResource, student)
			return handle
		})
	}
	return validator
}

func (validator *ConflictValidator) Accepts(candidate Candidate) bool {
	invariant, _, _ := validator.conflict(candidate)
	return invariant == InvariantNone
}

// Check returns the first invariant the candidate would break given the current reservations, nil when it is acceptable
func (validator *ConflictValidator) Check(candidate Candidate) *Violation {
	invariant, occupant, resource := validator.conflict(candidate)
	if invariant == InvariantNone {
		return nil
	}
	return validator.explain(candidate, invariant, occupant, resource)
}

// conflict is the allocation-free form of Check: it returns the broken invariant, the occupying section and the
// id of the busy resource when the invariant is an overlap
func (validator *ConflictValidator) conflict(candidate Candidate) (invariant Invariant, occupant int, resource string) {
	input := validator.input
	if candidate.Section < 0 || candidate.Section >= len(input.Sections) ||
		candidate.Classroom < 0 || candidate.Classroom >= len(input.Classrooms) ||
		candidate.Day >= input.Grid.TotalDays() || candidate.Period >= input.Grid.TotalPeriods() {
		return InvariantReference, -1, ""
	}

	section := input.Sections[candidate.Section]
	classroom := input.Classrooms[candidate.Classroom]
	if classroom.Capacity < uint64(len(section.EnrolledStudentIds)) || !classroom.Supports(section.RequiredFeatures) {
		return InvariantRoomCapacity, -1, ""
	}
	instructor, _ := input.Instructor(section.AssignedInstructorId)
	if input.Grid.Periods[candidate.Period].Minutes() < section.MeetingDurationMinutes || !instructor.Available(candidate.Day, candidate.Period) {
		return InvariantGridSlot, -1, ""
	}

	slot := validator.index.Slot(candidate.Day, candidate.Period)
	if occupant, busy := validator.index.occupant(ClassroomResource, candidate.Classroom, slot); busy {
		return InvariantRoomOverlap, occupant, classroom.Id
	}
	if occupant, busy := validator.index.occupant(InstructorResource, validator.instructors[candidate.Section], slot); busy {
		return InvariantInstructorOverlap, occupant, section.AssignedInstructorId
	}
	for _, student := range validator.students[candidate.Section] {
		if occupant, busy := validator.index.occupant(StudentResource, student, slot); busy {
			return InvariantStudentOverlap, occupant, validator.index.Resource(StudentResource, student)
		}
	}
	return InvariantNone, -1, ""
}

func (validator *ConflictValidator) explain(candidate Candidate, invariant Invariant, occupant int, resource string) *Violation {
	input := validator.input
	if invariant == InvariantReference {
		return &Violation{Invariant: invariant, Message: fmt.Sprintf("candidate %+v refers to an unknown section, classroom or slot", candidate)}
	}

	entry := candidate.Entry(input)
	section := input.Sections[candidate.Section]
	violation := &Violation{Invariant: invariant, Entries: []model.ScheduleEntry{entry}}

	switch invariant {
	case InvariantRoomCapacity:
		classroom := input.Classrooms[candidate.Classroom]
		violation.Message = fmt.Sprintf("classroom %v (capacity %d, features %v) cannot host %v (%d students, features %v)",
			classroom.Id, classroom.Capacity, classroom.Features, section.Label(), len(section.EnrolledStudentIds), section.RequiredFeatures)
	case InvariantGridSlot:
		violation.Message = fmt.Sprintf("%v cannot meet on %v %v-%v: the slot is shorter than %d minutes or instructor %v is unavailable",
			section.Label(), entry.Day, entry.StartTime, entry.EndTime, section.MeetingDurationMinutes, section.AssignedInstructorId)
	default:
		other := input.Sections[occupant]
		otherEntry := entry
		otherEntry.SectionId, otherEntry.CourseCode, otherEntry.SectionNumber, otherEntry.InstructorId = other.Id, other.CourseCode, other.SectionNumber, other.AssignedInstructorId
		otherEntry.ClassroomId = validator.classroomOf(occupant, candidate.Day, candidate.Period)
		violation.Entries = append(violation.Entries, otherEntry)
		violation.Message = fmt.Sprintf("%v %v is already taken by %v on %v %v-%v, so %v cannot meet there",
			kindOf(invariant), resource, other.Label(), entry.Day, entry.StartTime, entry.EndTime, section.Label())
	}
	return violation
}

func (validator *ConflictValidator) classroomOf(section int, day, period uint64) string {
	slot := validator.index.Slot(day, period)
	for handle := range validator.input.Classrooms {
		if occupant, busy := validator.index.occupant(ClassroomResource, handle, slot); busy && occupant == section {
			return validator.input.Classrooms[handle].Id
		}
	}
	return ""
}

func kindOf(invariant Invariant) ResourceKind {
	switch invariant {
	case InvariantInstructorOverlap:
		return InstructorResource
	case InvariantStudentOverlap:
		return StudentResource
	}
	return ClassroomResource
}

// Validate is the post-hoc integrity gate of a complete schedule: it returns the first violated invariant,
// checked in order, and the offending entries
func Validate(input model.ModelInput, entries []model.ScheduleEntry) ValidationResult {
	entries = slices.Clone(entries)
	model.SortEntries(entries)

	checks := []func(model.ModelInput, []model.ScheduleEntry) *Violation{
		referenceViolation,
		overlapViolation(InvariantRoomOverlap, func(entry model.ScheduleEntry, _ model.Section) []string { return []string{entry.ClassroomId} }),
		overlapViolation(InvariantInstructorOverlap, func(_ model.ScheduleEntry, section model.Section) []string { return []string{section.AssignedInstructorId} }),
		overlapViolation(InvariantStudentOverlap, func(_ model.ScheduleEntry, section model.Section) []string { return section.EnrolledStudentIds }),
		meetingCountViolation,
		capacityViolation,
		gridSlotViolation,
	}
	for _, check := range checks {
		if violation := check(input, entries); violation != nil {
			return ValidationResult{Valid: false, Violation: violation}
		}
	}
	return ValidationResult{Valid: true}
}

func referenceViolation(input model.ModelInput, entries []model.ScheduleEntry) *Violation {
	for _, entry := range entries {
		if _, ok := input.Section(entry.SectionId); !ok {
			return &Violation{Invariant: InvariantReference, Message: fmt.Sprintf("unknown section %q", entry.SectionId), Entries: []model.ScheduleEntry{entry}}
		}
		if _, ok := input.Classroom(entry.ClassroomId); !ok {
			return &Violation{Invariant: InvariantReference, Message: fmt.Sprintf("unknown classroom %q", entry.ClassroomId), Entries: []model.ScheduleEntry{entry}}
		}
	}
	return nil
}

// overlapViolation groups entries by the resources they use and sweeps each group in time order
func overlapViolation(invariant Invariant, resources func(model.ScheduleEntry, model.Section) []string) func(model.ModelInput, []model.ScheduleEntry) *Violation {
	return func(input model.ModelInput, entries []model.ScheduleEntry) *Violation {
		byResource := make(map[string][]model.ScheduleEntry)
		for _, entry := range entries {
			section, _ := input.Section(entry.SectionId)
			for _, resource := range resources(entry, section) {
				byResource[resource] = append(byResource[resource], entry)
			}
		}

		keys := lo.Keys(byResource)
		slices.Sort(keys)
		for _, resource := range keys {
			group := byResource[resource] // Already in (day, start) order
			latest := 0
			for i := 1; i < len(group); i++ {
				if group[latest].Overlaps(group[i]) {
					return &Violation{
						Invariant: invariant,
						Message: fmt.Sprintf("%v %v is used by %v and %v at the same time on %v",
							kindOf(invariant), resource, group[latest].Label(), group[i].Label(), group[i].Day),
						Entries: []model.ScheduleEntry{group[latest], group[i]},
					}
				}
				if group[i].Day != group[latest].Day || group[i].EndTime > group[latest].EndTime {
					latest = i
				}
			}
		}
		return nil
	}
}

func meetingCountViolation(input model.ModelInput, entries []model.ScheduleEntry) *Violation {
	bySection := lo.GroupBy(entries, func(entry model.ScheduleEntry) string { return entry.SectionId })
	for _, section := range input.Sections {
		if got := uint64(len(bySection[section.Id])); got != section.RequiredWeeklyMeetings {
			return &Violation{
				Invariant: InvariantMeetingCount,
				Message:   fmt.Sprintf("%v has %d meetings, %d required", section.Label(), got, section.RequiredWeeklyMeetings),
				Entries:   bySection[section.Id],
			}
		}
	}
	return nil
}

func capacityViolation(input model.ModelInput, entries []model.ScheduleEntry) *Violation {
	for _, entry := range entries {
		section, _ := input.Section(entry.SectionId)
		classroom, _ := input.Classroom(entry.ClassroomId)
		if classroom.Capacity < uint64(len(section.EnrolledStudentIds)) || !classroom.Supports(section.RequiredFeatures) {
			return &Violation{
				Invariant: InvariantRoomCapacity,
				Message:   fmt.Sprintf("classroom %v (capacity %d) cannot host %v (%d students)", classroom.Id, classroom.Capacity, section.Label(), len(section.EnrolledStudentIds)),
				Entries:   []model.ScheduleEntry{entry},
			}
		}
	}
	return nil
}

func gridSlotViolation(input model.ModelInput, entries []model.ScheduleEntry) *Violation {
	for _, entry := range entries {
		section, _ := input.Section(entry.SectionId)
		instructor, _ := input.Instructor(section.AssignedInstructorId)
		day, period, ok := input.Grid.Locate(entry.Day, entry.StartTime, entry.EndTime)

		var reason string
		switch {
		case !ok:
			reason = "is not a grid slot"
		case input.Grid.Periods[period].Minutes() < section.MeetingDurationMinutes:
			reason = fmt.Sprintf("is shorter than the %d minutes %v meets", section.MeetingDurationMinutes, section.Label())
		case !instructor.Available(day, period):
			reason = fmt.Sprintf("is outside the availability of instructor %v", instructor.Id)
		default:
			continue
		}
		return &Violation{
			Invariant: InvariantGridSlot,
			Message:   fmt.Sprintf("%v %v-%v %v", entry.Day, entry.StartTime, entry.EndTime, reason),
			Entries:   []model.ScheduleEntry{entry},
		}
	}
	return nil
}

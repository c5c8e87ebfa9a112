package engine

import (
	"math"

	"github.com/limaJavier/campus-timetabling/pkg/model"
)

// Candidate is a (day, period, classroom) choice for one meeting of a section.
// Section and Classroom are indexes into the input's sorted slices.
type Candidate struct {
	Section   int
	Day       uint64
	Period    uint64
	Classroom int
}

func (candidate Candidate) Entry(input model.ModelInput) model.ScheduleEntry {
	section := input.Sections[candidate.Section]
	slot := input.Grid.Slot(candidate.Day, candidate.Period)
	return model.ScheduleEntry{
		SectionId:     section.Id,
		CourseCode:    section.CourseCode,
		SectionNumber: section.SectionNumber,
		InstructorId:  section.AssignedInstructorId,
		Day:           slot.Day,
		StartTime:     slot.Start,
		EndTime:       slot.End,
		ClassroomId:   input.Classrooms[candidate.Classroom].Id,
	}
}

type permutationGenerator interface {
	// Every constraint must take into account that a permutation[i] equal to math.MaxUint64 has not been set yet,
	// so a predicate involving it cannot be evaluated
	//
	// Example:
	//
	//	generator := newPermutationGenerator(days, periods, classrooms)
	//
	//	permutations := generator.ConstrainedPermutations([]func(permutation []uint64) bool{
	//		func(permutation []uint64) bool {
	//			// The predicate relies on permutation[1], therefore it is only evaluated once it is set
	//			return permutation[1] == math.MaxUint64 || permutation[1] == 1
	//		},
	//	})
	ConstrainedPermutations(constraints []func(permutation []uint64) bool) [][]uint64
}

func newPermutationGenerator(domains ...uint64) permutationGenerator {
	return &permutationGeneratorImplementation{domains: domains}
}

type permutationGeneratorImplementation struct {
	domains []uint64
}

func (generator *permutationGeneratorImplementation) ConstrainedPermutations(constraints []func(permutation []uint64) bool) [][]uint64 {
	permutations := make([][]uint64, 0)
	permutation := make([]uint64, len(generator.domains))
	for i := range permutation {
		permutation[i] = math.MaxUint64
	}
	generator.constrainedPermutations(constraints, 0, permutation, &permutations)
	return permutations
}

func (generator *permutationGeneratorImplementation) constrainedPermutations(
	constraints []func(permutation []uint64) bool,
	currentDomain int,
	permutation []uint64,
	permutations *[][]uint64) {

	if currentDomain >= len(generator.domains) {
		permutationCopy := make([]uint64, len(permutation))
		copy(permutationCopy, permutation)
		*permutations = append(*permutations, permutationCopy)
		return
	}

	for i := uint64(0); i < generator.domains[currentDomain]; i++ {
		permutation[currentDomain] = i
		constraintViolated := false
		for _, constraint := range constraints {
			if !constraint(permutation) {
				constraintViolated = true
				break
			}
		}

		if constraintViolated {
			continue
		}

		generator.constrainedPermutations(constraints, currentDomain+1, permutation, permutations)
	}

	permutation[currentDomain] = math.MaxUint64
}

const (
	dayAttribute = iota
	periodAttribute
	classroomAttribute
)

// staticDomain lists every candidate of a section that satisfies the constraints independent of other placements:
// slot length, instructor availability, classroom capacity and classroom features.
// Candidates come out ordered by day, period and classroom.
func staticDomain(input model.ModelInput, section int) []Candidate {
	generator := newPermutationGenerator(input.Grid.TotalDays(), input.Grid.TotalPeriods(), uint64(len(input.Classrooms)))
	permutations := generator.ConstrainedPermutations(sectionConstraints(input, section))

	candidates := make([]Candidate, 0, len(permutations))
	for _, permutation := range permutations {
		candidates = append(candidates, Candidate{
			Section:   section,
			Day:       permutation[dayAttribute],
			Period:    permutation[periodAttribute],
			Classroom: int(permutation[classroomAttribute]),
		})
	}
	return candidates
}

func sectionConstraints(input model.ModelInput, sectionIndex int) []func(permutation []uint64) bool {
	section := input.Sections[sectionIndex]
	instructor, _ := input.Instructor(section.AssignedInstructorId)
	enrolled := uint64(len(section.EnrolledStudentIds))

	return []func(permutation []uint64) bool{
		// Meeting fits in the period
		func(permutation []uint64) bool {
			period := permutation[periodAttribute]
			return period == math.MaxUint64 || input.Grid.Periods[period].Minutes() >= section.MeetingDurationMinutes
		},
		// Instructor is available
		func(permutation []uint64) bool {
			day, period := permutation[dayAttribute], permutation[periodAttribute]
			return day == math.MaxUint64 || period == math.MaxUint64 || instructor.Available(day, period)
		},
		// Enrolled students fit in the classroom, and it offers the required features
		func(permutation []uint64) bool {
			classroom := permutation[classroomAttribute]
			return classroom == math.MaxUint64 ||
				(input.Classrooms[classroom].Capacity >= enrolled && input.Classrooms[classroom].Supports(section.RequiredFeatures))
		},
	}
}

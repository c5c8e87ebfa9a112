package engine

import (
	"fmt"
	"slices"

	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/onsi/gomega/matchers/support/goraph/bipartitegraph"
	"github.com/samber/lo"
)

// precheck looks for necessary conditions the input breaks before any search happens.
// A non-nil witness proves the input infeasible.
func precheck(input model.ModelInput, domains [][]Candidate, matchingLimit int) *Violation {
	checks := []func() *Violation{
		func() *Violation { return domainViolation(input, domains) },
		func() *Violation { return loadViolation(input, domains, InstructorResource) },
		func() *Violation { return loadViolation(input, domains, StudentResource) },
		func() *Violation { return matchingViolation(input, domains, matchingLimit) },
	}
	for _, check := range checks {
		if violation := check(); violation != nil {
			return violation
		}
	}
	return nil
}

// domainViolation finds a section with fewer distinct candidate slots than meetings
func domainViolation(input model.ModelInput, domains [][]Candidate) *Violation {
	for section, domain := range domains {
		if len(domain) == 0 {
			return emptyDomainViolation(input, section)
		}
		slots := distinctSlots(domain)
		if required := input.Sections[section].RequiredWeeklyMeetings; uint64(len(slots)) < required {
			return &Violation{
				Invariant: InvariantMeetingCount,
				Message: fmt.Sprintf("%v needs %d meetings in distinct slots but only %d slots suit it",
					input.Sections[section].Label(), required, len(slots)),
			}
		}
	}
	return nil
}

// emptyDomainViolation tells which static constraint leaves a section without candidates
func emptyDomainViolation(input model.ModelInput, sectionIndex int) *Violation {
	section := input.Sections[sectionIndex]
	instructor, _ := input.Instructor(section.AssignedInstructorId)

	rooms := lo.Filter(input.Classrooms, func(classroom model.Classroom, _ int) bool {
		return classroom.Capacity >= uint64(len(section.EnrolledStudentIds)) && classroom.Supports(section.RequiredFeatures)
	})
	if len(rooms) == 0 {
		return &Violation{
			Invariant: InvariantRoomCapacity,
			Message: fmt.Sprintf("no classroom holds the %d students of %v with features %v",
				len(section.EnrolledStudentIds), section.Label(), section.RequiredFeatures),
		}
	}

	longEnough := lo.Filter(input.Grid.Periods, func(period model.Period, _ int) bool {
		return period.Minutes() >= section.MeetingDurationMinutes
	})
	if len(longEnough) == 0 {
		return &Violation{
			Invariant: InvariantGridSlot,
			Message:   fmt.Sprintf("no grid period lasts the %d minutes %v meets", section.MeetingDurationMinutes, section.Label()),
		}
	}

	return &Violation{
		Invariant: InvariantGridSlot,
		Message:   fmt.Sprintf("instructor %v of %v is not available at any suitable slot", instructor.Id, section.Label()),
	}
}

// loadViolation compares, per instructor or student, the weekly meetings they attend against the slots where those
// meetings could take place
func loadViolation(input model.ModelInput, domains [][]Candidate, kind ResourceKind) *Violation {
	attendees := func(section model.Section) []string {
		if kind == InstructorResource {
			return []string{section.AssignedInstructorId}
		}
		return section.EnrolledStudentIds
	}

	sectionsOf := make(map[string][]int)
	for i, section := range input.Sections {
		for _, attendee := range attendees(section) {
			sectionsOf[attendee] = append(sectionsOf[attendee], i)
		}
	}

	people := lo.Keys(sectionsOf)
	slices.Sort(people)
	for _, person := range people {
		sections := sectionsOf[person]
		if len(sections) < 2 {
			continue // A single section is covered by the domain check
		}
		meetings := lo.SumBy(sections, func(section int) uint64 { return input.Sections[section].RequiredWeeklyMeetings })
		slots := distinctSlots(lo.FlatMap(sections, func(section int, _ int) []Candidate { return domains[section] }))
		if meetings > uint64(len(slots)) {
			invariant := InvariantStudentOverlap
			if kind == InstructorResource {
				invariant = InvariantInstructorOverlap
			}
			return &Violation{
				Invariant: invariant,
				Message: fmt.Sprintf("%v %v attends %d meetings a week (%v) but only %d slots suit them",
					kind, person, meetings, lo.Map(sections, func(section int, _ int) string { return input.Sections[section].Label() }), len(slots)),
			}
		}
	}
	return nil
}

// matchingViolation checks that every meeting can get its own (slot, classroom) pair at the same time.
// It is skipped when the graph would exceed the limit.
func matchingViolation(input model.ModelInput, domains [][]Candidate, limit int) *Violation {
	type pair struct {
		slot      uint64
		classroom int
	}
	indexer := newSlotIndexer(input.Grid.TotalPeriods(), input.Grid.TotalDays())

	meetings := make([]meeting, 0)
	for section := range input.Sections {
		for ordinal := range input.Sections[section].RequiredWeeklyMeetings {
			meetings = append(meetings, meeting{section: section, ordinal: ordinal})
		}
	}

	relationships := make([]map[pair]bool, len(input.Sections))
	pairs := make([]pair, 0)
	seen := make(map[pair]bool)
	for section, domain := range domains {
		relationships[section] = make(map[pair]bool, len(domain))
		for _, candidate := range domain {
			key := pair{slot: indexer.Index(candidate.Period, candidate.Day), classroom: candidate.Classroom}
			relationships[section][key] = true
			if !seen[key] {
				seen[key] = true
				pairs = append(pairs, key)
			}
		}
	}
	if len(meetings)*len(pairs) > limit {
		return nil
	}
	if len(pairs) < len(meetings) {
		return &Violation{
			Invariant: InvariantRoomOverlap,
			Message:   fmt.Sprintf("%d meetings need a (slot, classroom) pair each but only %d pairs are usable", len(meetings), len(pairs)),
		}
	}

	// Build neighbors predicate based on relationships
	neighbors := func(meetingAny any, pairAny any) (bool, error) {
		return relationships[meetingAny.(meeting).section][pairAny.(pair)], nil
	}
	meetingsAny, pairsAny := lo.Map(meetings, func(meeting meeting, _ int) any { return meeting }), lo.Map(pairs, func(pair pair, _ int) any { return pair })

	graph, err := bipartitegraph.NewBipartiteGraph(meetingsAny, pairsAny, neighbors)
	if err != nil {
		return nil
	}
	matching := graph.LargestMatching()
	if len(matching) == len(meetings) {
		return nil
	}

	matched := make(map[int]bool, len(matching))
	for _, edge := range matching {
		matched[edge.Node1] = true
	}
	unmatched, _ := lo.Find(lo.Range(len(meetings)), func(index int) bool { return !matched[index] })
	section := input.Sections[meetings[unmatched].section]
	return &Violation{
		Invariant: InvariantRoomOverlap,
		Message: fmt.Sprintf("only %d of %d meetings can get distinct (slot, classroom) pairs; %v is left without one",
			len(matching), len(meetings), section.Label()),
	}
}

func distinctSlots(candidates []Candidate) map[[2]uint64]bool {
	slots := make(map[[2]uint64]bool)
	for _, candidate := range candidates {
		slots[[2]uint64{candidate.Day, candidate.Period}] = true
	}
	return slots
}

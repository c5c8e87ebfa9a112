package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
)

const clockCheckInterval = 64

// meeting is the ordinal-th weekly meeting of a section
type meeting struct {
	section int
	ordinal uint64
}

// frame is one decision of the search: the meeting being placed, its acceptable candidates best first,
// and the cursor over them. candidates[next-1] is the reservation to undo when reserved is set.
type frame struct {
	meeting    int
	candidates []Candidate
	next       int
	reserved   bool
	rejection  rejection
}

// rejection keeps the most telling candidate turned down when the frame was built
type rejection struct {
	candidate Candidate
	invariant Invariant
	found     bool
}

type allocator struct {
	input     model.ModelInput
	index     *ConstraintIndex
	validator *ConflictValidator
	state     *SearchState
	domains   [][]Candidate
	order     []meeting
	options   Options
	stats     Stats

	witness      *Violation
	witnessDepth int
}

func newAllocator(input model.ModelInput, index *ConstraintIndex, validator *ConflictValidator, domains [][]Candidate, options Options) *allocator {
	allocator := &allocator{
		input:        input,
		index:        index,
		validator:    validator,
		state:        newSearchState(input, index),
		domains:      domains,
		options:      options,
		witnessDepth: -1,
	}

	// Most constrained sections first: fewest static candidates, then most meetings, then id
	sections := lo.Range(len(input.Sections))
	slices.SortStableFunc(sections, func(a, b int) int {
		return cmp.Or(
			cmp.Compare(len(domains[a]), len(domains[b])),
			cmp.Compare(input.Sections[b].RequiredWeeklyMeetings, input.Sections[a].RequiredWeeklyMeetings),
			strings.Compare(input.Sections[a].Id, input.Sections[b].Id),
		)
	})
	for _, section := range sections {
		for ordinal := range input.Sections[section].RequiredWeeklyMeetings {
			allocator.order = append(allocator.order, meeting{section: section, ordinal: ordinal})
		}
	}
	return allocator
}

func (allocator *allocator) run(ctx context.Context, started time.Time) ([]Candidate, error) {
	if len(allocator.order) == 0 {
		return []Candidate{}, nil
	}
	deadline := started.Add(allocator.options.TimeBudget)

	stack := make([]frame, 0, len(allocator.order))
	stack = append(stack, allocator.newFrame(0))
	for len(stack) > 0 {
		allocator.stats.Iterations++
		if err := allocator.interrupted(ctx, deadline, allocator.stats.Iterations%clockCheckInterval == 0); err != nil {
			return nil, err
		}

		top := &stack[len(stack)-1]
		// Coming back to a frame means its current choice failed further down
		if top.reserved {
			allocator.release(top.candidates[top.next-1])
			top.reserved = false
		}

		if top.next < len(top.candidates) {
			candidate := top.candidates[top.next]
			top.next++
			allocator.reserve(candidate)
			top.reserved = true

			if len(stack) == len(allocator.order) {
				return lo.Map(stack, func(frame frame, _ int) Candidate { return frame.candidates[frame.next-1] }), nil
			}
			stack = append(stack, allocator.newFrame(len(stack)))
			continue
		}

		//** Backtrack
		allocator.recordWitness(top, len(stack)-1)
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			return nil, &InfeasibleError{Kind: model.ErrProvenInfeasible, Witness: allocator.witness}
		}
		allocator.stats.Backtracks++
		if allocator.stats.Backtracks >= allocator.options.MaxBacktrackSteps {
			return nil, &InfeasibleError{Kind: model.ErrSearchBudgetExceeded, Witness: allocator.witness}
		}
		if err := allocator.interrupted(ctx, deadline, true); err != nil {
			return nil, err
		}
	}
	return nil, &InfeasibleError{Kind: model.ErrProvenInfeasible, Witness: allocator.witness}
}

func (allocator *allocator) interrupted(ctx context.Context, deadline time.Time, checkClock bool) error {
	return interruption(ctx, deadline, checkClock, allocator.witness)
}

// interruption reports a cancelled context or, when checkClock is set, a passed deadline
func interruption(ctx context.Context, deadline time.Time, checkClock bool, witness *Violation) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &InfeasibleError{Kind: model.ErrSearchBudgetExceeded, Witness: witness}
		}
		return &InfeasibleError{Kind: model.ErrCancelled, Witness: witness}
	}
	if checkClock && time.Now().After(deadline) {
		return &InfeasibleError{Kind: model.ErrSearchBudgetExceeded, Witness: witness}
	}
	return nil
}

func (allocator *allocator) newFrame(position int) frame {
	current := allocator.order[position]
	frame := frame{meeting: position}

	// Meetings of a section are interchangeable: each one takes a later slot than the previous one
	minSlot := uint64(0)
	if placed := allocator.state.Placed(current.section); len(placed) > 0 {
		last := placed[len(placed)-1]
		minSlot = allocator.index.Slot(last.Day, last.Period) + 1
	}

	type scored struct {
		candidate Candidate
		score     int
	}
	accepted := make([]scored, 0)
	for _, candidate := range allocator.domains[current.section] {
		if allocator.index.Slot(candidate.Day, candidate.Period) < minSlot {
			continue
		}
		if invariant, _, _ := allocator.validator.conflict(candidate); invariant != InvariantNone {
			// Classroom clashes are the least telling reason, any other one replaces them
			if !frame.rejection.found || (frame.rejection.invariant == InvariantRoomOverlap && invariant != InvariantRoomOverlap) {
				frame.rejection = rejection{candidate: candidate, invariant: invariant, found: true}
			}
			continue
		}
		accepted = append(accepted, scored{candidate: candidate, score: allocator.options.Scorer.Score(allocator.state, candidate)})
	}

	slices.SortStableFunc(accepted, func(a, b scored) int {
		return cmp.Or(cmp.Compare(b.score, a.score), compareCandidates(allocator.input, a.candidate, b.candidate))
	})
	frame.candidates = lo.Map(accepted, func(scored scored, _ int) Candidate { return scored.candidate })
	return frame
}

func (allocator *allocator) reserve(candidate Candidate) {
	slot := allocator.index.Slot(candidate.Day, candidate.Period)
	allocator.index.reserve(ClassroomResource, candidate.Classroom, slot, candidate.Section)
	allocator.index.reserve(InstructorResource, allocator.validator.instructors[candidate.Section], slot, candidate.Section)
	for _, student := range allocator.validator.students[candidate.Section] {
		allocator.index.reserve(StudentResource, student, slot, candidate.Section)
	}
	allocator.state.push(candidate)
}

func (allocator *allocator) release(candidate Candidate) {
	slot := allocator.index.Slot(candidate.Day, candidate.Period)
	allocator.index.release(ClassroomResource, candidate.Classroom, slot)
	allocator.index.release(InstructorResource, allocator.validator.instructors[candidate.Section], slot)
	for _, student := range allocator.validator.students[candidate.Section] {
		allocator.index.release(StudentResource, student, slot)
	}
	allocator.state.pop(candidate.Section)
}

// recordWitness explains why the deepest exhausted frame had nothing left to try.
// The index holds the same reservations it held when the frame was built.
func (allocator *allocator) recordWitness(frame *frame, depth int) {
	if depth <= allocator.witnessDepth {
		return
	}
	allocator.witnessDepth = depth

	current := allocator.order[frame.meeting]
	section := allocator.input.Sections[current.section]
	switch {
	case frame.rejection.found:
		allocator.witness = allocator.validator.Check(frame.rejection.candidate)
	case len(allocator.domains[current.section]) == 0:
		allocator.witness = emptyDomainViolation(allocator.input, current.section)
	default:
		allocator.witness = &Violation{
			Invariant: InvariantMeetingCount,
			Message: fmt.Sprintf("%v needs %d meetings in distinct slots but meeting %d has no slot left after the previous ones",
				section.Label(), section.RequiredWeeklyMeetings, current.ordinal+1),
			Entries: lo.Map(allocator.state.Placed(current.section), func(candidate Candidate, _ int) model.ScheduleEntry { return candidate.Entry(allocator.input) }),
		}
	}
}

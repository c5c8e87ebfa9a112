package engine

import (
	"cmp"
	"strings"

	"github.com/limaJavier/campus-timetabling/pkg/model"
)

// SearchState is the read-only view of a run a Scorer gets to see
type SearchState struct {
	Input model.ModelInput
	Index *ConstraintIndex

	placed [][]Candidate // Candidates currently reserved, per section
}

func newSearchState(input model.ModelInput, index *ConstraintIndex) *SearchState {
	return &SearchState{
		Input:  input,
		Index:  index,
		placed: make([][]Candidate, len(input.Sections)),
	}
}

// Placed returns the meetings of a section reserved so far
func (state *SearchState) Placed(section int) []Candidate {
	return state.placed[section]
}

func (state *SearchState) push(candidate Candidate) {
	state.placed[candidate.Section] = append(state.placed[candidate.Section], candidate)
}

func (state *SearchState) pop(section int) {
	state.placed[section] = state.placed[section][:len(state.placed[section])-1]
}

// Scorer ranks the acceptable candidates of a meeting; higher scores are tried first.
// Scores must depend only on the candidate and the state so runs stay deterministic.
type Scorer interface {
	Score(state *SearchState, candidate Candidate) int
}

type ScorerFunc func(state *SearchState, candidate Candidate) int

func (scorer ScorerFunc) Score(state *SearchState, candidate Candidate) int {
	return scorer(state, candidate)
}

// NeutralScorer leaves the order to the deterministic tie-breaks
var NeutralScorer = ScorerFunc(func(*SearchState, Candidate) int { return 0 })

// PreferenceScorer weighs the soft preferences of a timetable
type PreferenceScorer struct {
	SameDayPenalty   int // Per meeting of the same section already placed on the day
	AdjacencyBonus   int // Per instructor meeting right before or after the candidate
	WastedSeatWeight int // Per empty seat in the classroom
}

func NewPreferenceScorer() *PreferenceScorer {
	return &PreferenceScorer{
		SameDayPenalty:   100,
		AdjacencyBonus:   10,
		WastedSeatWeight: 1,
	}
}

func (scorer *PreferenceScorer) Score(state *SearchState, candidate Candidate) int {
	input := state.Input
	section := input.Sections[candidate.Section]
	score := 0

	// Spread the meetings of a section over the week
	for _, placed := range state.Placed(candidate.Section) {
		if placed.Day == candidate.Day {
			score -= scorer.SameDayPenalty
		}
	}

	// Keep the instructor's day compact
	for _, period := range []uint64{candidate.Period - 1, candidate.Period + 1} {
		if period < input.Grid.TotalPeriods() && !state.Index.IsFree(InstructorResource, section.AssignedInstructorId, candidate.Day, period) {
			score += scorer.AdjacencyBonus
		}
	}

	// Prefer the tightest classroom
	wasted := int(input.Classrooms[candidate.Classroom].Capacity) - len(section.EnrolledStudentIds)
	score -= wasted * scorer.WastedSeatWeight

	return score
}

// compareCandidates breaks ties between equally scored candidates: classroom id, then slot
func compareCandidates(input model.ModelInput, a, b Candidate) int {
	return cmp.Or(
		strings.Compare(input.Classrooms[a.Classroom].Id, input.Classrooms[b.Classroom].Id),
		cmp.Compare(a.Day, b.Day),
		cmp.Compare(a.Period, b.Period),
	)
}

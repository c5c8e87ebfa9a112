package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacktrackingTimetablerFeasible(t *testing.T) {
	t.Run("Two sections sharing a student", func(t *testing.T) {
		//** Arrange
		input := buildInput(t, 5, 1,
			[]model.Section{newSection("A", "I1", 2, "s1", "s2"), newSection("B", "I2", 2, "s1", "s3")},
			[]model.Classroom{{Id: "R1", Capacity: 30}, {Id: "R2", Capacity: 30}},
			[]model.Instructor{{Id: "I1"}, {Id: "I2"}},
		)
		timetabler := NewBacktrackingTimetabler(Options{}, nil)

		//** Act
		result, err := timetabler.Build(context.Background(), input)

		//** Assert
		require.NoError(t, err)
		assert.Len(t, result.Entries, 4)
		assert.True(t, timetabler.Verify(result.Entries, input).Valid)
		daysOfS1 := make(map[time.Weekday]int)
		for _, entry := range result.Entries {
			daysOfS1[entry.Day]++
		}
		for day, meetings := range daysOfS1 {
			assert.Equal(t, 1, meetings, "student s1 is double booked on %v", day)
		}
	})

	t.Run("Ten students per section in a single classroom", func(t *testing.T) {
		//** Arrange
		studentsA, studentsB := []string{"shared"}, []string{"shared"}
		for i := range 9 {
			studentsA = append(studentsA, fmt.Sprintf("a%d", i))
			studentsB = append(studentsB, fmt.Sprintf("b%d", i))
		}
		input := buildInput(t, 5, 4,
			[]model.Section{newSection("A", "I1", 2, studentsA...), newSection("B", "I2", 2, studentsB...)},
			[]model.Classroom{{Id: "R1", Capacity: 30}},
			[]model.Instructor{{Id: "I1"}, {Id: "I2"}},
		)

		//** Act
		result, err := NewBacktrackingTimetabler(Options{}, nil).Build(context.Background(), input)

		//** Assert
		require.NoError(t, err)
		require.Len(t, result.Entries, 4)
		assert.True(t, Validate(input, result.Entries).Valid)
		for i, first := range result.Entries {
			for _, second := range result.Entries[i+1:] {
				assert.False(t, first.Overlaps(second), "the shared student attends %v and %v at once", first.Label(), second.Label())
			}
		}
	})

	t.Run("Meetings of a section are spread over the week", func(t *testing.T) {
		//** Arrange
		input := buildInput(t, 3, 3,
			[]model.Section{newSection("A", "I1", 3)},
			[]model.Classroom{{Id: "R1", Capacity: 10}},
			[]model.Instructor{{Id: "I1"}},
		)

		//** Act
		result, err := NewBacktrackingTimetabler(Options{}, nil).Build(context.Background(), input)

		//** Assert
		require.NoError(t, err)
		days := make(map[time.Weekday]bool)
		for _, entry := range result.Entries {
			days[entry.Day] = true
		}
		assert.Len(t, days, 3)
	})

	t.Run("Most constrained section goes first", func(t *testing.T) {
		//** Arrange: B only fits the large room, so A has to take the small one
		input := buildInput(t, 1, 1,
			[]model.Section{newSection("A", "I1", 1, "s1"), newSection("B", "I2", 1, "s2", "s3", "s4")},
			[]model.Classroom{{Id: "R1", Capacity: 5}, {Id: "R2", Capacity: 1}},
			[]model.Instructor{{Id: "I1"}, {Id: "I2"}},
		)

		//** Act
		result, err := NewBacktrackingTimetabler(Options{Scorer: NeutralScorer, SkipPrecheck: true}, nil).Build(context.Background(), input)

		//** Assert
		require.NoError(t, err)
		assert.True(t, Validate(input, result.Entries).Valid)
	})
}

func TestBacktrackingTimetablerInfeasible(t *testing.T) {
	// One slot in total while four meetings are required
	oneSlot := func(t *testing.T) model.ModelInput {
		return buildInput(t, 1, 1,
			[]model.Section{newSection("A", "I1", 2, "s1"), newSection("B", "I2", 2, "s1")},
			[]model.Classroom{{Id: "R1", Capacity: 30}},
			[]model.Instructor{{Id: "I1"}, {Id: "I2"}},
		)
	}

	t.Run("Proven infeasible", func(t *testing.T) {
		//** Act
		_, err := NewBacktrackingTimetabler(Options{}, nil).Build(context.Background(), oneSlot(t))

		//** Assert
		assert.ErrorIs(t, err, model.ErrProvenInfeasible)
		var infeasible *InfeasibleError
		require.True(t, errors.As(err, &infeasible))
		assert.NotNil(t, infeasible.Witness)
	})

	t.Run("Proven infeasible by exhausting the search", func(t *testing.T) {
		//** Act
		_, err := NewBacktrackingTimetabler(Options{SkipPrecheck: true}, nil).Build(context.Background(), oneSlot(t))

		//** Assert
		assert.ErrorIs(t, err, model.ErrProvenInfeasible)
	})

	t.Run("Search budget exceeded", func(t *testing.T) {
		//** Act
		_, err := NewBacktrackingTimetabler(Options{SkipPrecheck: true, MaxBacktrackSteps: 1}, nil).Build(context.Background(), oneSlot(t))

		//** Assert
		assert.ErrorIs(t, err, model.ErrSearchBudgetExceeded)
		assert.NotErrorIs(t, err, model.ErrProvenInfeasible)
	})

	t.Run("Witness names the colliding student", func(t *testing.T) {
		//** Arrange
		input := buildInput(t, 1, 1,
			[]model.Section{newSection("A", "I1", 1, "s1", "s2"), newSection("B", "I2", 1, "s1")},
			[]model.Classroom{{Id: "R1", Capacity: 30}, {Id: "R2", Capacity: 30}},
			[]model.Instructor{{Id: "I1"}, {Id: "I2"}},
		)

		for _, options := range []Options{{}, {SkipPrecheck: true}} {
			//** Act
			_, err := NewBacktrackingTimetabler(options, nil).Build(context.Background(), input)

			//** Assert
			var infeasible *InfeasibleError
			require.True(t, errors.As(err, &infeasible))
			assert.ErrorIs(t, err, model.ErrProvenInfeasible)
			require.NotNil(t, infeasible.Witness)
			assert.Equal(t, InvariantStudentOverlap, infeasible.Witness.Invariant)
			assert.Contains(t, infeasible.Witness.Message, "s1")
		}
	})

	t.Run("Unsatisfiable capacity", func(t *testing.T) {
		//** Arrange
		input := buildInput(t, 2, 2,
			[]model.Section{newSection("A", "I1", 1, "s1", "s2", "s3")},
			[]model.Classroom{{Id: "R1", Capacity: 2}},
			[]model.Instructor{{Id: "I1"}},
		)

		//** Act
		_, err := NewBacktrackingTimetabler(Options{}, nil).Build(context.Background(), input)

		//** Assert
		var infeasible *InfeasibleError
		require.True(t, errors.As(err, &infeasible))
		assert.Equal(t, InvariantRoomCapacity, infeasible.Witness.Invariant)
	})
}

func TestBacktrackingTimetablerCancellation(t *testing.T) {
	//** Arrange
	input := buildInput(t, 5, 4,
		[]model.Section{newSection("A", "I1", 2, "s1"), newSection("B", "I1", 2, "s2")},
		[]model.Classroom{{Id: "R1", Capacity: 30}},
		[]model.Instructor{{Id: "I1"}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	//** Act
	result, err := NewBacktrackingTimetabler(Options{}, nil).Build(ctx, input)

	//** Assert
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Nil(t, result.Entries)
}

func TestBacktrackingTimetablerStopsBeforeSearch(t *testing.T) {
	// The pre-check alone proves this input infeasible, so reaching it would hide the interruption
	input := buildInput(t, 1, 1,
		[]model.Section{newSection("A", "I1", 2, "s1"), newSection("B", "I2", 2, "s1")},
		[]model.Classroom{{Id: "R1", Capacity: 30}},
		[]model.Instructor{{Id: "I1"}, {Id: "I2"}},
	)

	t.Run("Cancelled context", func(t *testing.T) {
		//** Arrange
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		//** Act
		_, err := NewBacktrackingTimetabler(Options{}, nil).Build(ctx, input)

		//** Assert
		assert.ErrorIs(t, err, model.ErrCancelled)
		assert.NotErrorIs(t, err, model.ErrProvenInfeasible)
	})

	t.Run("Time budget spent", func(t *testing.T) {
		//** Act
		_, err := NewBacktrackingTimetabler(Options{TimeBudget: time.Nanosecond}, nil).Build(context.Background(), input)

		//** Assert
		assert.ErrorIs(t, err, model.ErrSearchBudgetExceeded)
		assert.NotErrorIs(t, err, model.ErrProvenInfeasible)
	})
}

func TestBacktrackingTimetablerDeterminism(t *testing.T) {
	//** Arrange
	params := model.RandomParams{Days: 5, Periods: 6, Sections: 25, Classrooms: 6, Instructors: 10, Students: 80, MaxMeetings: 3, StudentsPerSection: 12, AvailabilityDensity: 0.8, FeatureDensity: 0.2}
	input, err := model.RandomInput(rand.New(rand.NewSource(42)), params)
	require.NoError(t, err)
	timetabler := NewBacktrackingTimetabler(Options{MaxBacktrackSteps: 5_000}, nil)

	//** Act
	first, firstErr := timetabler.Build(context.Background(), input)
	second, secondErr := timetabler.Build(context.Background(), input)

	//** Assert
	assert.Equal(t, model.OutcomeOf(firstErr), model.OutcomeOf(secondErr))
	firstJson, err := json.Marshal(first.Entries)
	require.NoError(t, err)
	secondJson, err := json.Marshal(second.Entries)
	require.NoError(t, err)
	assert.Equal(t, string(firstJson), string(secondJson))
}

func TestBacktrackingTimetablerRandomInstances(t *testing.T) {
	random := rand.New(rand.NewSource(1))
	for i := range 30 {
		//** Arrange
		params := model.RandomParams{
			Days:                1 + random.Intn(5),
			Periods:             1 + random.Intn(6),
			Sections:            1 + random.Intn(15),
			Classrooms:          1 + random.Intn(4),
			Instructors:         1 + random.Intn(6),
			Students:            1 + random.Intn(40),
			MaxMeetings:         1 + random.Intn(3),
			StudentsPerSection:  random.Intn(10),
			AvailabilityDensity: 0.5 + random.Float64()/2,
			FeatureDensity:      random.Float64() / 3,
		}
		input, err := model.RandomInput(random, params)
		require.NoError(t, err)

		//** Act
		result, err := NewBacktrackingTimetabler(Options{MaxBacktrackSteps: 2_000}, nil).Build(context.Background(), input)

		//** Assert
		if err != nil {
			var infeasible *InfeasibleError
			require.True(t, errors.As(err, &infeasible), "instance %d: %v", i, err)
			assert.True(t, errors.Is(err, model.ErrProvenInfeasible) || errors.Is(err, model.ErrSearchBudgetExceeded), "instance %d: %v", i, err)
			continue
		}
		validation := Validate(input, result.Entries)
		assert.True(t, validation.Valid, "instance %d: %+v", i, validation.Violation)
		assert.Equal(t, int(input.TotalMeetings()), len(result.Entries))
	}
}

func TestCustomScorer(t *testing.T) {
	//** Arrange: prefer the latest period of the grid
	input := buildInput(t, 1, 3,
		[]model.Section{newSection("A", "I1", 1)},
		[]model.Classroom{{Id: "R1", Capacity: 10}},
		[]model.Instructor{{Id: "I1"}},
	)
	scorer := ScorerFunc(func(_ *SearchState, candidate Candidate) int { return int(candidate.Period) })

	//** Act
	result, err := NewBacktrackingTimetabler(Options{Scorer: scorer}, nil).Build(context.Background(), input)

	//** Assert
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, model.NewClockTime(10, 0), result.Entries[0].StartTime)
}

package engine

import (
	"testing"
	"time"

	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildInput validates a raw input over a one-hour grid of the given days and periods starting at 08:00
func buildInput(t *testing.T, days, periods int, sections []model.Section, classrooms []model.Classroom, instructors []model.Instructor) model.ModelInput {
	t.Helper()
	grid := model.Grid{}
	for day := range days {
		grid.Days = append(grid.Days, time.Weekday(day+1))
	}
	for period := range periods {
		start := model.NewClockTime(8+period, 0)
		grid.Periods = append(grid.Periods, model.Period{Start: start, End: start + 60})
	}
	input, err := model.NewModelInput(model.RawModelInput{
		Scope:       model.Scope{Semester: "fall", Year: 2025},
		Grid:        grid,
		Sections:    sections,
		Classrooms:  classrooms,
		Instructors: instructors,
	})
	require.NoError(t, err)
	return input
}

func newSection(id, instructor string, meetings uint64, students ...string) model.Section {
	return model.Section{
		Id:                     id,
		CourseCode:             id,
		SectionNumber:          "01",
		RequiredWeeklyMeetings: meetings,
		MeetingDurationMinutes: 60,
		AssignedInstructorId:   instructor,
		EnrolledStudentIds:     students,
	}
}

func TestConstraintIndex(t *testing.T) {
	input := buildInput(t, 2, 3,
		[]model.Section{newSection("A", "I1", 1, "s1", "s2")},
		[]model.Classroom{{Id: "R1", Capacity: 10}},
		[]model.Instructor{{Id: "I1"}},
	)

	t.Run("Reserve and release", func(t *testing.T) {
		//** Arrange
		index := NewConstraintIndex(input)

		//** Act
		err := index.Reserve(StudentResource, "s1", 1, 2, 0)

		//** Assert
		require.NoError(t, err)
		assert.False(t, index.IsFree(StudentResource, "s1", 1, 2))
		assert.True(t, index.IsFree(StudentResource, "s1", 0, 2))
		assert.True(t, index.IsFree(StudentResource, "s2", 1, 2))
		occupant, busy := index.Occupant(StudentResource, "s1", 1, 2)
		assert.True(t, busy)
		assert.Equal(t, 0, occupant)

		index.Release(StudentResource, "s1", 1, 2)
		assert.True(t, index.IsFree(StudentResource, "s1", 1, 2))
	})

	t.Run("Double reservations are refused", func(t *testing.T) {
		//** Arrange
		index := NewConstraintIndex(input)
		require.NoError(t, index.Reserve(ClassroomResource, "R1", 0, 0, 0))

		//** Act
		err := index.Reserve(ClassroomResource, "R1", 0, 0, 0)

		//** Assert
		assert.ErrorContains(t, err, "already reserved")
	})

	t.Run("Unknown resources", func(t *testing.T) {
		//** Arrange
		index := NewConstraintIndex(input)

		//** Act
		err := index.Reserve(InstructorResource, "nobody", 0, 0, 0)

		//** Assert
		assert.ErrorContains(t, err, "unknown instructor")
		assert.True(t, index.IsFree(InstructorResource, "nobody", 0, 0))
	})

	t.Run("Resource kinds are independent", func(t *testing.T) {
		//** Arrange
		index := NewConstraintIndex(input)

		//** Act
		require.NoError(t, index.Reserve(InstructorResource, "I1", 0, 1, 0))

		//** Assert
		assert.False(t, index.IsFree(InstructorResource, "I1", 0, 1))
		assert.True(t, index.IsFree(ClassroomResource, "R1", 0, 1))
		assert.True(t, index.IsFree(StudentResource, "s1", 0, 1))
	})
}

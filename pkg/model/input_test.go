package model

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid() Grid {
	return Grid{
		Days:    []time.Weekday{time.Monday, time.Wednesday},
		Periods: []Period{{Start: NewClockTime(8, 0), End: NewClockTime(9, 0)}, {Start: NewClockTime(9, 0), End: NewClockTime(10, 0)}},
	}
}

func testRawInput() RawModelInput {
	return RawModelInput{
		Scope: Scope{Semester: "fall", Year: 2025},
		Grid:  testGrid(),
		Sections: []Section{
			{Id: "B", CourseCode: "MATH200", SectionNumber: "01", RequiredWeeklyMeetings: 2, MeetingDurationMinutes: 60, AssignedInstructorId: "I1", EnrolledStudentIds: []string{"s2", "s1", "s2"}},
			{Id: "A", CourseCode: "CS101", SectionNumber: "01", RequiredWeeklyMeetings: 1, MeetingDurationMinutes: 60, AssignedInstructorId: "I1"},
		},
		Classrooms:  []Classroom{{Id: "R1", Capacity: 30}},
		Instructors: []Instructor{{Id: "I1"}},
		Enrollments: []Enrollment{{SectionId: "A", StudentId: "s1"}},
	}
}

func TestNewModelInput(t *testing.T) {
	t.Run("Sorts, deduplicates and folds enrollments", func(t *testing.T) {
		//** Arrange
		raw := testRawInput()

		//** Act
		input, err := NewModelInput(raw)

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, "A", input.Sections[0].Id)
		assert.Equal(t, []string{"s1"}, input.Sections[0].EnrolledStudentIds)
		assert.Equal(t, []string{"s1", "s2"}, input.Sections[1].EnrolledStudentIds)
		assert.Equal(t, uint64(3), input.TotalMeetings())
		assert.Equal(t, []Enrollment{{SectionId: "A", StudentId: "s1"}, {SectionId: "B", StudentId: "s1"}, {SectionId: "B", StudentId: "s2"}}, input.Enrollments())
		index, ok := input.SectionIndex("B")
		assert.True(t, ok)
		assert.Equal(t, 1, index)
	})

	t.Run("Rejects malformed scopes", func(t *testing.T) {
		//** Arrange
		raw := testRawInput()
		raw.Scope.Semester = "autumn"

		//** Act
		_, err := NewModelInput(raw)

		//** Assert
		assert.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("Rejects scopes without sections", func(t *testing.T) {
		//** Arrange
		raw := testRawInput()
		raw.Sections = nil
		raw.Enrollments = nil

		//** Act
		_, err := NewModelInput(raw)

		//** Assert
		assert.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("Names the offending field", func(t *testing.T) {
		//** Arrange
		raw := testRawInput()
		raw.Sections[1].RequiredWeeklyMeetings = 0

		//** Act
		_, err := NewModelInput(raw)

		//** Assert
		var validationError *ValidationError
		require.True(t, errors.As(err, &validationError))
		assert.Contains(t, validationError.Field, "RequiredWeeklyMeetings")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Rejects unknown references", func(t *testing.T) {
		//** Arrange
		unknownInstructor := testRawInput()
		unknownInstructor.Sections[0].AssignedInstructorId = "nobody"
		unknownSection := testRawInput()
		unknownSection.Enrollments = append(unknownSection.Enrollments, Enrollment{SectionId: "Z", StudentId: "s9"})
		duplicated := testRawInput()
		duplicated.Classrooms = append(duplicated.Classrooms, Classroom{Id: "R1", Capacity: 10})

		//** Act
		_, instructorErr := NewModelInput(unknownInstructor)
		_, sectionErr := NewModelInput(unknownSection)
		_, duplicateErr := NewModelInput(duplicated)

		//** Assert
		assert.ErrorContains(t, instructorErr, "unknown instructor")
		assert.ErrorContains(t, sectionErr, "unknown section")
		assert.ErrorContains(t, duplicateErr, "duplicate id")
	})

	t.Run("Rejects availability matrices that do not match the grid", func(t *testing.T) {
		//** Arrange
		raw := testRawInput()
		raw.Instructors[0].Availability = [][]bool{{true, true}}

		//** Act
		_, err := NewModelInput(raw)

		//** Assert
		assert.ErrorContains(t, err, "Availability")
	})

	t.Run("Rejects over-enrolled sections", func(t *testing.T) {
		//** Arrange
		raw := testRawInput()
		raw.Sections[0].Capacity = 1

		//** Act
		_, err := NewModelInput(raw)

		//** Assert
		assert.ErrorContains(t, err, "exceed the section capacity")
	})
}

func TestInputFromJson(t *testing.T) {
	//** Arrange
	content := `{
		"scope": {"semester": "spring", "year": 2026},
		"grid": {"days": ["mon", "Tuesday"], "periods": ["08:00-09:30", {"start": "10:00", "end": "11:30"}]},
		"sections": [{"id": "S1", "courseCode": "CS101", "sectionNumber": "02", "requiredWeeklyMeetings": 2, "meetingDurationMinutes": 90, "assignedInstructorId": "I1", "enrolledStudentIds": ["a", "b"]}],
		"classrooms": [{"id": "R1", "capacity": 40, "features": ["lab"]}],
		"instructors": [{"id": "I1", "availability": [[true, false], [true, true]]}]
	}`
	file := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(file, []byte(content), 0666))

	//** Act
	input, err := InputFromJson(file)

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday}, input.Grid.Days)
	assert.Equal(t, NewClockTime(10, 0), input.Grid.Periods[1].Start)
	assert.Equal(t, uint64(90), input.Grid.Periods[0].Minutes())
	assert.Equal(t, uint64(2), input.Sections[0].RequiredWeeklyMeetings)
	assert.False(t, input.Instructors[0].Available(1, 0))
	assert.True(t, input.Instructors[0].Available(1, 1))
}

func TestGrid(t *testing.T) {
	t.Run("Slot ids are dense and locatable", func(t *testing.T) {
		grid := testGrid()
		for _, slot := range grid.Slots() {
			day, period, ok := grid.Locate(slot.Day, slot.Start, slot.End)
			assert.True(t, ok)
			assert.Equal(t, slot, grid.Slot(day, period))
		}
		assert.Len(t, grid.Slots(), 4)
	})

	t.Run("Parses configuration strings", func(t *testing.T) {
		grid, err := ParseGrid("mon,wed,fri", "08:00-09:00,09:00-10:00")
		require.NoError(t, err)
		assert.Equal(t, uint64(6), grid.TotalSlots())

		_, err = ParseGrid("mon", "09:00-08:00")
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = ParseGrid("mon", "08:00-09:00,08:30-09:30")
		assert.ErrorContains(t, err, "overlaps")
	})

	t.Run("Clock times", func(t *testing.T) {
		clock, err := ParseClockTime("13:05")
		require.NoError(t, err)
		assert.Equal(t, "13:05", clock.String())

		_, err = ParseClockTime("25:00")
		assert.Error(t, err)
	})
}

func TestRandomInput(t *testing.T) {
	params := RandomParams{Days: 5, Periods: 6, Sections: 20, Classrooms: 6, Instructors: 8, Students: 60, MaxMeetings: 3, StudentsPerSection: 15, AvailabilityDensity: 0.8, FeatureDensity: 0.2}

	first, err := RandomInput(rand.New(rand.NewSource(7)), params)
	require.NoError(t, err)
	second, err := RandomInput(rand.New(rand.NewSource(7)), params)
	require.NoError(t, err)

	assert.Equal(t, first.Sections, second.Sections)
	assert.Len(t, first.Sections, 20)
}

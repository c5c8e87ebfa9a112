package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fall2025 = model.Scope{Semester: "fall", Year: 2025}

func feasible(generatedAt time.Time, sections ...string) model.Schedule {
	schedule := model.Schedule{
		Id:          uuid.New(),
		Scope:       fall2025,
		GeneratedAt: generatedAt,
		Status:      model.StatusFeasible,
	}
	for i, section := range sections {
		schedule.Entries = append(schedule.Entries, model.ScheduleEntry{
			SectionId:     section,
			CourseCode:    "CS101",
			SectionNumber: "01",
			InstructorId:  "I1",
			Day:           time.Monday,
			StartTime:     model.NewClockTime(8+i, 0),
			EndTime:       model.NewClockTime(9+i, 0),
			ClassroomId:   "R1",
		})
	}
	return schedule
}

func TestMemoryScheduleRepository(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Regeneration supersedes the previous schedule", func(t *testing.T) {
		//** Arrange
		repository := NewMemoryScheduleRepository()
		first := feasible(start, "A")
		second := feasible(start.Add(time.Hour), "A", "B")
		require.NoError(t, repository.Supersede(ctx, first, uuid.Nil))

		//** Act
		err := repository.Supersede(ctx, second, first.Id)

		//** Assert
		require.NoError(t, err)
		current, err := repository.GetCurrent(ctx, fall2025)
		require.NoError(t, err)
		assert.Equal(t, second.Id, current.Id)
		assert.Len(t, current.Entries, 2)
		previous, err := repository.GetByID(ctx, first.Id)
		require.NoError(t, err)
		require.NotNil(t, previous.SupersededAt)
		assert.Equal(t, second.GeneratedAt, *previous.SupersededAt)
		assert.Len(t, previous.Entries, 1)
	})

	t.Run("Stale expectation conflicts", func(t *testing.T) {
		//** Arrange
		repository := NewMemoryScheduleRepository()
		first := feasible(start, "A")
		require.NoError(t, repository.Supersede(ctx, first, uuid.Nil))

		//** Act
		err := repository.Supersede(ctx, feasible(start.Add(time.Hour), "B"), uuid.Nil)

		//** Assert
		assert.ErrorIs(t, err, model.ErrPersistenceConflict)
		current, err := repository.GetCurrent(ctx, fall2025)
		require.NoError(t, err)
		assert.Equal(t, first.Id, current.Id)
		assert.Nil(t, current.SupersededAt)
	})

	t.Run("Recorded failures never become current", func(t *testing.T) {
		//** Arrange
		repository := NewMemoryScheduleRepository()
		failure := model.Schedule{Id: uuid.New(), Scope: fall2025, GeneratedAt: start, Status: model.StatusInfeasible, Outcome: model.OutcomeProvenInfeasible, Reason: "no room"}

		//** Act
		err := repository.Record(ctx, failure)

		//** Assert
		require.NoError(t, err)
		_, err = repository.GetCurrent(ctx, fall2025)
		assert.ErrorIs(t, err, model.ErrNotFound)
		stored, err := repository.GetByID(ctx, failure.Id)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeProvenInfeasible, stored.Outcome)
		assert.Empty(t, stored.Entries)
	})

	t.Run("Stored entries are isolated from callers", func(t *testing.T) {
		//** Arrange
		repository := NewMemoryScheduleRepository()
		schedule := feasible(start, "A")
		require.NoError(t, repository.Supersede(ctx, schedule, uuid.Nil))

		//** Act
		schedule.Entries[0].ClassroomId = "changed"
		stored, err := repository.GetByID(ctx, schedule.Id)

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, "R1", stored.Entries[0].ClassroomId)
	})

	t.Run("Unknown id", func(t *testing.T) {
		_, err := NewMemoryScheduleRepository().GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestSnapshotProvider(t *testing.T) {
	//** Arrange
	file := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"Sections": [
			{"Id": "A", "CourseCode": "CS101", "SectionNumber": "01", "DepartmentId": "CS", "Semester": "fall", "Year": 2025, "RequiredWeeklyMeetings": 2, "MeetingDurationMinutes": 50, "AssignedInstructorId": "I1"},
			{"Id": "B", "CourseCode": "MA200", "SectionNumber": "01", "DepartmentId": "MA", "Semester": "fall", "Year": 2025, "RequiredWeeklyMeetings": 1, "MeetingDurationMinutes": 50, "AssignedInstructorId": "I1"},
			{"Id": "C", "CourseCode": "CS102", "SectionNumber": "01", "DepartmentId": "CS", "Semester": "spring", "Year": 2026, "RequiredWeeklyMeetings": 1, "MeetingDurationMinutes": 50, "AssignedInstructorId": "I1"}
		],
		"Classrooms": [{"Id": "R1", "Capacity": 30, "Features": ["lab"]}],
		"Instructors": [{"Id": "I1", "Name": "Ada"}],
		"Enrollments": [{"SectionId": "A", "StudentId": "s1"}, {"SectionId": "B", "StudentId": "s2"}]
	}`), 0o644))

	//** Act
	provider, err := LoadSnapshot(file)
	require.NoError(t, err)
	sections, enrollments, err := provider.ListSections(context.Background(), model.Scope{Semester: "fall", Year: 2025, DepartmentId: "CS"})
	require.NoError(t, err)
	classrooms, err := provider.ListClassrooms(context.Background())
	require.NoError(t, err)

	//** Assert
	require.Len(t, sections, 1)
	assert.Equal(t, "A", sections[0].Id)
	assert.Equal(t, []model.Enrollment{{SectionId: "A", StudentId: "s1"}}, enrollments)
	assert.Equal(t, []string{"lab"}, classrooms[0].Features)
}

func TestAvailabilityMatrix(t *testing.T) {
	//** Arrange
	grid, err := model.ParseGrid("Mon,Tue", "08:00-09:00,09:00-10:00,10:00-11:00")
	require.NoError(t, err)
	windows := []window{
		{Day: time.Monday, Start: model.NewClockTime(8, 0), End: model.NewClockTime(10, 0)},
		{Day: time.Tuesday, Start: model.NewClockTime(10, 30), End: model.NewClockTime(12, 0)},
		{Day: time.Friday, Start: model.NewClockTime(8, 0), End: model.NewClockTime(18, 0)},
	}

	//** Act
	matrix := availabilityMatrix(grid, windows)

	//** Assert
	assert.Equal(t, [][]bool{
		{true, false},
		{true, false},
		{false, false},
	}, matrix)
	assert.Nil(t, availabilityMatrix(grid, nil))
}

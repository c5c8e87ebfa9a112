package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/pkg/model"
)

// ScheduleRepository stores generated schedules. A scope has at most one current schedule: the latest feasible one
// that nothing superseded.
type ScheduleRepository interface {
	// Supersede stores a feasible schedule and makes it the current one of its scope. It fails with
	// model.ErrPersistenceConflict when the current schedule is not the expected one (uuid.Nil for none).
	Supersede(ctx context.Context, schedule model.Schedule, expected uuid.UUID) error
	// Record stores the header of a schedule that never becomes current
	Record(ctx context.Context, schedule model.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	GetCurrent(ctx context.Context, scope model.Scope) (*model.Schedule, error)
}

// SectionProvider lists the sections of a scope together with their enrollments
type SectionProvider interface {
	ListSections(ctx context.Context, scope model.Scope) ([]model.Section, []model.Enrollment, error)
}

type ClassroomProvider interface {
	ListClassrooms(ctx context.Context) ([]model.Classroom, error)
}

// AvailabilityProvider lists instructors with their availability laid over the grid
type AvailabilityProvider interface {
	ListInstructors(ctx context.Context, grid model.Grid) ([]model.Instructor, error)
}

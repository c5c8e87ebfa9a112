package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
)

// MemoryScheduleRepository keeps schedules in process, for single instance deployments and tests
type MemoryScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]model.Schedule
	current   map[string]uuid.UUID
}

func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{
		schedules: make(map[uuid.UUID]model.Schedule),
		current:   make(map[string]uuid.UUID),
	}
}

func (r *MemoryScheduleRepository) Supersede(_ context.Context, schedule model.Schedule, expected uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := schedule.Scope.Key()
	current, ok := r.current[key]
	if !ok {
		current = uuid.Nil
	}
	if current != expected {
		return fmt.Errorf("%w: scope %v moved to schedule %v while generating from %v", model.ErrPersistenceConflict, key, current, expected)
	}
	if _, ok := r.schedules[schedule.Id]; ok {
		return fmt.Errorf("%w: schedule %v already stored", model.ErrPersistenceConflict, schedule.Id)
	}

	if current != uuid.Nil {
		previous := r.schedules[current]
		supersededAt := schedule.GeneratedAt
		previous.SupersededAt = &supersededAt
		r.schedules[current] = previous
	}
	schedule.Entries = slices.Clone(schedule.Entries)
	schedule.Enrollments = slices.Clone(schedule.Enrollments)
	r.schedules[schedule.Id] = schedule
	r.current[key] = schedule.Id
	return nil
}

func (r *MemoryScheduleRepository) Record(_ context.Context, schedule model.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[schedule.Id]; ok {
		return fmt.Errorf("%w: schedule %v already stored", model.ErrPersistenceConflict, schedule.Id)
	}
	schedule.Entries = nil
	schedule.Enrollments = nil
	r.schedules[schedule.Id] = schedule
	return nil
}

func (r *MemoryScheduleRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.schedules[id]
	if !ok {
		return nil, fmt.Errorf("%w: schedule %v", model.ErrNotFound, id)
	}
	schedule.Entries = slices.Clone(schedule.Entries)
	schedule.Enrollments = slices.Clone(schedule.Enrollments)
	if schedule.Entries == nil {
		schedule.Entries = []model.ScheduleEntry{}
	}
	return &schedule, nil
}

func (r *MemoryScheduleRepository) GetCurrent(ctx context.Context, scope model.Scope) (*model.Schedule, error) {
	r.mu.RLock()
	id, ok := r.current[scope.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no current schedule for %v", model.ErrNotFound, scope.Key())
	}
	return r.GetByID(ctx, id)
}

// SnapshotProvider serves sections, classrooms and instructors from a fixed catalog
type SnapshotProvider struct {
	sections    []model.Section
	enrollments []model.Enrollment
	classrooms  []model.Classroom
	instructors []model.Instructor
}

func NewSnapshotProvider(raw model.RawModelInput) *SnapshotProvider {
	return &SnapshotProvider{
		sections:    slices.Clone(raw.Sections),
		enrollments: slices.Clone(raw.Enrollments),
		classrooms:  slices.Clone(raw.Classrooms),
		instructors: slices.Clone(raw.Instructors),
	}
}

// LoadSnapshot reads a catalog file in the same JSON layout the command line tool consumes. Its scope and grid are
// ignored: sections are filtered per request and the grid comes from the configuration.
func LoadSnapshot(file string) (*SnapshotProvider, error) {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("%w: snapshot %v: %v", model.ErrInvalidInput, file, err)
	}
	var raw model.RawModelInput
	if err := model.DecodeRawInput(data, &raw); err != nil {
		return nil, err
	}
	return NewSnapshotProvider(raw), nil
}

func (p *SnapshotProvider) ListSections(_ context.Context, scope model.Scope) ([]model.Section, []model.Enrollment, error) {
	sections := lo.Filter(p.sections, func(section model.Section, _ int) bool { return scope.Contains(section) })
	ids := lo.Keyify(lo.Map(sections, func(section model.Section, _ int) string { return section.Id }))
	enrollments := lo.Filter(p.enrollments, func(enrollment model.Enrollment, _ int) bool {
		_, ok := ids[enrollment.SectionId]
		return ok
	})
	return sections, enrollments, nil
}

func (p *SnapshotProvider) ListClassrooms(context.Context) ([]model.Classroom, error) {
	return slices.Clone(p.classrooms), nil
}

func (p *SnapshotProvider) ListInstructors(context.Context, model.Grid) ([]model.Instructor, error) {
	return slices.Clone(p.instructors), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/internal/lock"
	"github.com/limaJavier/campus-timetabling/internal/repository"
	"github.com/limaJavier/campus-timetabling/pkg/calendar"
	"github.com/limaJavier/campus-timetabling/pkg/engine"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Time granted to store a finished run once the search is over
const persistTimeout = 30 * time.Second

type Dependencies struct {
	Sections    repository.SectionProvider
	Classrooms  repository.ClassroomProvider
	Instructors repository.AvailabilityProvider
	Schedules   repository.ScheduleRepository
	Locker      lock.ScopeLocker
	Grid        model.Grid
	Terms       calendar.TermDates
	Location    *time.Location
	Options     engine.Options
	Logger      *zap.Logger
}

// GenerateRequest names the scope to generate; zero budgets fall back to the configured ones
type GenerateRequest struct {
	Semester          string
	Year              int
	DepartmentId      string
	MaxBacktrackSteps uint64
	TimeBudget        time.Duration
}

type Handle struct {
	ScheduleId uuid.UUID    `json:"scheduleId"`
	Status     model.Status `json:"status"`
}

type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// GenerationService runs timetable generations as background jobs, one at a time per scope
type GenerationService struct {
	deps          Dependencies
	assembler     *ScheduleAssembler
	jobs          *jobStore
	newTimetabler func(engine.Options, *zap.Logger) engine.Timetabler
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGenerationService(deps Dependencies) *GenerationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GenerationService{
		deps:          deps,
		assembler:     NewScheduleAssembler(deps.Schedules, deps.Logger),
		jobs:          newJobStore(),
		newTimetabler: engine.NewBacktrackingTimetabler,
		logger:        deps.Logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Generate snapshots the scope's inputs and starts the search in the background. Malformed scopes and inputs are
// reported right away; search outcomes are recorded on the schedule the returned handle points to.
func (s *GenerationService) Generate(ctx context.Context, request GenerateRequest) (Handle, error) {
	scope, err := model.NewScope(request.Semester, request.Year, request.DepartmentId)
	if err != nil {
		return Handle{}, err
	}
	options := s.deps.Options
	if request.MaxBacktrackSteps > 0 {
		options.MaxBacktrackSteps = request.MaxBacktrackSteps
	}
	if request.TimeBudget > 0 {
		options.TimeBudget = request.TimeBudget
	}
	budget := options.TimeBudget
	if budget <= 0 {
		budget = engine.DefaultTimeBudget
	}

	unlock, err := s.deps.Locker.TryLock(ctx, scope.Key(), budget+persistTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return Handle{}, fmt.Errorf("%w: scope %v", model.ErrGenerationInProgress, scope.Key())
		}
		return Handle{}, err
	}

	input, err := s.snapshot(ctx, scope)
	if err != nil {
		unlock()
		return Handle{}, err
	}
	basedOn, err := s.currentId(ctx, scope)
	if err != nil {
		unlock()
		return Handle{}, err
	}

	pending := model.Schedule{
		Id:          uuid.New(),
		Scope:       scope,
		GeneratedAt: time.Now().UTC(),
		Status:      model.StatusPending,
		Entries:     []model.ScheduleEntry{},
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	s.jobs.start(pending, cancel)

	s.logger.Info("generation started",
		zap.String("schedule", pending.Id.String()),
		zap.String("scope", scope.Key()),
		zap.Int("sections", len(input.Sections)),
		zap.Uint64("meetings", input.TotalMeetings()),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unlock()
		defer cancel()
		s.run(runCtx, pending.Id, input, basedOn, options)
	}()

	return Handle{ScheduleId: pending.Id, Status: model.StatusPending}, nil
}

func (s *GenerationService) run(ctx context.Context, id uuid.UUID, input model.ModelInput, basedOn uuid.UUID, options engine.Options) {
	timetabler := s.newTimetabler(options, s.logger.With(zap.String("schedule", id.String())))
	result, err := timetabler.Build(ctx, input)

	// A finished search is stored even while the service shuts down
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err != nil {
		s.jobs.finish(s.assembler.RecordFailure(persistCtx, id, input.Scope, err))
		return
	}
	schedule, err := s.assembler.Persist(persistCtx, id, input, result.Entries, basedOn)
	if err != nil {
		s.jobs.finish(s.assembler.RecordFailure(persistCtx, id, input.Scope, err))
		return
	}
	s.jobs.finish(schedule)
}

func (s *GenerationService) snapshot(ctx context.Context, scope model.Scope) (model.ModelInput, error) {
	sections, enrollments, err := s.deps.Sections.ListSections(ctx, scope)
	if err != nil {
		return model.ModelInput{}, fmt.Errorf("load sections: %w", err)
	}
	classrooms, err := s.deps.Classrooms.ListClassrooms(ctx)
	if err != nil {
		return model.ModelInput{}, fmt.Errorf("load classrooms: %w", err)
	}
	instructors, err := s.deps.Instructors.ListInstructors(ctx, s.deps.Grid)
	if err != nil {
		return model.ModelInput{}, fmt.Errorf("load instructors: %w", err)
	}

	// Only instructors teaching in the scope take part in the run
	teaching := lo.Keyify(lo.Map(sections, func(section model.Section, _ int) string { return section.AssignedInstructorId }))
	instructors = lo.Filter(instructors, func(instructor model.Instructor, _ int) bool {
		_, ok := teaching[instructor.Id]
		return ok
	})

	return model.NewModelInput(model.RawModelInput{
		Scope:       scope,
		Grid:        s.deps.Grid,
		Sections:    sections,
		Classrooms:  classrooms,
		Instructors: instructors,
		Enrollments: enrollments,
	})
}

func (s *GenerationService) currentId(ctx context.Context, scope model.Scope) (uuid.UUID, error) {
	current, err := s.deps.Schedules.GetCurrent(ctx, scope)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("get current schedule: %w", err)
	}
	return current.Id, nil
}

// GetSchedule returns a schedule with its entries, pending runs included
func (s *GenerationService) GetSchedule(ctx context.Context, id uuid.UUID) (model.Schedule, error) {
	tracked, ok := s.jobs.get(id)
	if ok && tracked.Status == model.StatusPending {
		return tracked, nil
	}
	schedule, err := s.deps.Schedules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) && ok {
			return tracked, nil
		}
		return model.Schedule{}, err
	}
	return *schedule, nil
}

// GetScheduleForStudent filters the scope's current schedule down to the sections the student was enrolled in when
// it was generated. Later enrollments show up only after the next generation.
func (s *GenerationService) GetScheduleForStudent(ctx context.Context, studentId string, scope model.Scope) (model.Schedule, error) {
	scope, err := model.NewScope(scope.Semester, scope.Year, scope.DepartmentId)
	if err != nil {
		return model.Schedule{}, err
	}
	current, err := s.deps.Schedules.GetCurrent(ctx, scope)
	if err != nil {
		return model.Schedule{}, err
	}
	return current.ForSections(current.SectionsOfStudent(studentId)), nil
}

// ExportIcal renders the recipient's share of a feasible schedule. The recipient is a student (enrolled sections) or
// an instructor (taught sections).
func (s *GenerationService) ExportIcal(ctx context.Context, id uuid.UUID, recipientId string) (Export, error) {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return Export{}, err
	}
	if schedule.Status != model.StatusFeasible {
		return Export{}, fmt.Errorf("%w: schedule %v is %v", model.ErrNotFound, id, schedule.Status)
	}

	sectionIds := schedule.SectionsOfStudent(recipientId)
	for _, entry := range schedule.Entries {
		if entry.InstructorId == recipientId {
			sectionIds = append(sectionIds, entry.SectionId)
		}
	}
	entries := schedule.ForSections(lo.Uniq(sectionIds)).Entries
	if len(entries) == 0 {
		return Export{}, fmt.Errorf("%w: %v has no meetings in schedule %v", model.ErrNotFound, recipientId, id)
	}

	term, err := s.deps.Terms.Term(schedule.Scope, s.deps.Location)
	if err != nil {
		return Export{}, err
	}
	body, err := calendar.Export(schedule, slices.Clone(entries), term, fmt.Sprintf("%v schedule of %v", schedule.Scope.Key(), recipientId))
	if err != nil {
		return Export{}, fmt.Errorf("export calendar: %w", err)
	}
	return Export{
		Filename:    calendar.Filename(schedule.Scope, recipientId),
		ContentType: calendar.ContentType,
		Body:        body,
	}, nil
}

// Cancel aborts a running generation; its schedule ends up infeasible with the cancelled outcome
func (s *GenerationService) Cancel(_ context.Context, id uuid.UUID) error {
	if !s.jobs.cancel(id) {
		if schedule, ok := s.jobs.get(id); ok {
			return fmt.Errorf("%w: schedule %v is already %v", model.ErrPersistenceConflict, id, schedule.Status)
		}
		return fmt.Errorf("%w: no running generation %v", model.ErrNotFound, id)
	}
	s.logger.Info("generation cancelled", zap.String("schedule", id.String()))
	return nil
}

// Shutdown cancels every running generation and waits for them to record their outcome
func (s *GenerationService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for generations: %w", ctx.Err())
	}
}

// Wait blocks until every generation started so far has finished
func (s *GenerationService) Wait() {
	s.wg.Wait()
}

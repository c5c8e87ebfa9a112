package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/internal/repository"
	"github.com/limaJavier/campus-timetabling/pkg/engine"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"go.uber.org/zap"
)

// ScheduleAssembler turns finished runs into stored schedules
type ScheduleAssembler struct {
	schedules repository.ScheduleRepository
	clock     func() time.Time
	logger    *zap.Logger
}

func NewScheduleAssembler(schedules repository.ScheduleRepository, logger *zap.Logger) *ScheduleAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleAssembler{schedules: schedules, clock: time.Now, logger: logger}
}

// Persist gates the entries through the post-hoc validator and stores them as the new current schedule of the scope.
// basedOn is the current schedule the run started from (uuid.Nil for none).
func (a *ScheduleAssembler) Persist(ctx context.Context, id uuid.UUID, input model.ModelInput, entries []model.ScheduleEntry, basedOn uuid.UUID) (model.Schedule, error) {
	if validation := engine.Validate(input, entries); !validation.Valid {
		a.logger.Error("refusing to store an invalid schedule",
			zap.String("schedule", id.String()),
			zap.Stringer("invariant", validation.Violation.Invariant),
			zap.String("violation", validation.Violation.Message),
		)
		return model.Schedule{}, fmt.Errorf("assembled schedule breaks %v: %w", validation.Violation.Invariant, validation.Violation)
	}

	schedule := model.Schedule{
		Id:          id,
		Scope:       input.Scope,
		GeneratedAt: a.clock().UTC(),
		Status:      model.StatusFeasible,
		Entries:     entries,
		Enrollments: input.Enrollments(),
	}
	model.SortEntries(schedule.Entries)

	if err := a.schedules.Supersede(ctx, schedule, basedOn); err != nil {
		return model.Schedule{}, fmt.Errorf("persist schedule %v: %w", id, err)
	}
	a.logger.Info("schedule stored",
		zap.String("schedule", id.String()),
		zap.String("scope", input.Scope.Key()),
		zap.Int("entries", len(entries)),
		zap.String("supersedes", basedOn.String()),
	)
	return schedule, nil
}

// RecordFailure stores the outcome of a run that produced no schedule. The scope's current schedule is untouched.
func (a *ScheduleAssembler) RecordFailure(ctx context.Context, id uuid.UUID, scope model.Scope, cause error) model.Schedule {
	schedule := model.Schedule{
		Id:          id,
		Scope:       scope,
		GeneratedAt: a.clock().UTC(),
		Status:      model.StatusInfeasible,
		Outcome:     model.OutcomeOf(cause),
		Reason:      cause.Error(),
		Entries:     []model.ScheduleEntry{},
	}
	if err := a.schedules.Record(ctx, schedule); err != nil {
		a.logger.Error("failed to record generation failure", zap.String("schedule", id.String()), zap.Error(err))
	}
	return schedule
}

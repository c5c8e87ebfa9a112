package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/limaJavier/campus-timetabling/pkg/model"
	"go.uber.org/zap"
)

const (
	DefaultMaxBacktrackSteps uint64 = 200_000
	DefaultTimeBudget               = 30 * time.Second
	DefaultMatchingLimit            = 400_000
)

type Options struct {
	MaxBacktrackSteps uint64        // Zero selects DefaultMaxBacktrackSteps
	TimeBudget        time.Duration // Zero selects DefaultTimeBudget
	Scorer            Scorer        // Nil selects the PreferenceScorer defaults
	SkipPrecheck      bool          // Go straight to the search without the feasibility pre-check
	MatchingLimit     int           // Largest meetings x (slot, classroom) product the matching pre-check will build
}

func (options Options) withDefaults() Options {
	if options.MaxBacktrackSteps == 0 {
		options.MaxBacktrackSteps = DefaultMaxBacktrackSteps
	}
	if options.TimeBudget <= 0 {
		options.TimeBudget = DefaultTimeBudget
	}
	if options.Scorer == nil {
		options.Scorer = NewPreferenceScorer()
	}
	if options.MatchingLimit == 0 {
		options.MatchingLimit = DefaultMatchingLimit
	}
	return options
}

type Stats struct {
	Iterations uint64        `json:"iterations"`
	Backtracks uint64        `json:"backtracks"`
	Elapsed    time.Duration `json:"elapsed"`
}

type Result struct {
	Entries []model.ScheduleEntry `json:"entries"`
	Stats   Stats                 `json:"stats"`
}

// InfeasibleError is the terminal outcome of a run that produced no schedule.
// Kind is one of model.ErrProvenInfeasible, model.ErrSearchBudgetExceeded or model.ErrCancelled.
type InfeasibleError struct {
	Kind    error
	Witness *Violation
	Stats   Stats
}

func (err *InfeasibleError) Error() string {
	if err.Witness == nil {
		return fmt.Sprintf("%v after %d backtracks", err.Kind, err.Stats.Backtracks)
	}
	return fmt.Sprintf("%v after %d backtracks: %v", err.Kind, err.Stats.Backtracks, err.Witness.Message)
}

func (err *InfeasibleError) Unwrap() error {
	return err.Kind
}

type Timetabler interface {
	// Build searches a schedule satisfying every hard constraint of the input.
	// Failures are *InfeasibleError values; the Result always carries the search statistics.
	Build(ctx context.Context, input model.ModelInput) (Result, error)

	Verify(entries []model.ScheduleEntry, input model.ModelInput) ValidationResult
}

type backtrackingTimetabler struct {
	options Options
	logger  *zap.Logger
}

func NewBacktrackingTimetabler(options Options, logger *zap.Logger) Timetabler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backtrackingTimetabler{
		options: options.withDefaults(),
		logger:  logger,
	}
}

func (timetabler *backtrackingTimetabler) Build(ctx context.Context, input model.ModelInput) (Result, error) {
	started := time.Now()
	logger := timetabler.logger.With(zap.String("scope", input.Scope.Key()))

	//** Initialize dependencies
	index := NewConstraintIndex(input)
	validator := NewConflictValidator(input, index)
	deadline := started.Add(timetabler.options.TimeBudget)
	domains := make([][]Candidate, len(input.Sections))
	for section := range input.Sections {
		if err := interruption(ctx, deadline, true, nil); err != nil {
			return timetabler.interrupted(logger, started, err)
		}
		domains[section] = staticDomain(input, section)
	}

	//** Pre-check necessary conditions
	if !timetabler.options.SkipPrecheck {
		if err := interruption(ctx, deadline, true, nil); err != nil {
			return timetabler.interrupted(logger, started, err)
		}
		if witness := precheck(input, domains, timetabler.options.MatchingLimit); witness != nil {
			stats := Stats{Elapsed: time.Since(started)}
			logger.Info("generation proven infeasible by pre-check", zap.String("witness", witness.Message))
			return Result{Stats: stats}, &InfeasibleError{Kind: model.ErrProvenInfeasible, Witness: witness, Stats: stats}
		}
	}

	//** Search
	search := newAllocator(input, index, validator, domains, timetabler.options)
	placements, err := search.run(ctx, started)
	stats := search.stats
	stats.Elapsed = time.Since(started)
	if err != nil {
		logger.Info("generation failed",
			zap.Error(err),
			zap.Uint64("iterations", stats.Iterations),
			zap.Uint64("backtracks", stats.Backtracks),
			zap.Duration("elapsed", stats.Elapsed),
		)
		if infeasible, ok := err.(*InfeasibleError); ok {
			infeasible.Stats = stats
		}
		return Result{Stats: stats}, err
	}

	entries := make([]model.ScheduleEntry, 0, len(placements))
	for _, placement := range placements {
		entries = append(entries, placement.Entry(input))
	}
	model.SortEntries(entries)

	logger.Info("generation found a schedule",
		zap.Int("entries", len(entries)),
		zap.Uint64("iterations", stats.Iterations),
		zap.Uint64("backtracks", stats.Backtracks),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return Result{Entries: entries, Stats: stats}, nil
}

func (timetabler *backtrackingTimetabler) Verify(entries []model.ScheduleEntry, input model.ModelInput) ValidationResult {
	return Validate(input, entries)
}

// interrupted ends a run stopped before the search started
func (timetabler *backtrackingTimetabler) interrupted(logger *zap.Logger, started time.Time, err error) (Result, error) {
	stats := Stats{Elapsed: time.Since(started)}
	logger.Info("generation stopped before the search", zap.Error(err), zap.Duration("elapsed", stats.Elapsed))
	if infeasible, ok := err.(*InfeasibleError); ok {
		infeasible.Stats = stats
	}
	return Result{Stats: stats}, err
}

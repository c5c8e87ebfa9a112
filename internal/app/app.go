package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/limaJavier/campus-timetabling/internal/config"
	"github.com/limaJavier/campus-timetabling/internal/lock"
	"github.com/limaJavier/campus-timetabling/internal/repository"
	"github.com/limaJavier/campus-timetabling/internal/service"
	transport "github.com/limaJavier/campus-timetabling/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	handler    http.Handler
	generation *service.GenerationService
	pool       *pgxpool.Pool
	redis      *redis.Client
	logger     *zap.Logger
}

// New wires storage, scope locks, the generation service and the HTTP router from the configuration
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	grid, err := cfg.Grid()
	if err != nil {
		return nil, fmt.Errorf("parse grid: %w", err)
	}
	terms, err := cfg.TermDates()
	if err != nil {
		return nil, fmt.Errorf("parse semester dates: %w", err)
	}
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{logger: logger}
	deps := service.Dependencies{
		Grid:     grid,
		Terms:    terms,
		Location: location,
		Options:  cfg.EngineOptions(),
		Logger:   logger,
	}

	//** Storage
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		a.pool = pool
		if err := pool.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if cfg.RunMigrations {
			if err := migrate(ctx, pool, logger); err != nil {
				a.Close()
				return nil, err
			}
		}
		catalog := repository.NewCatalogRepository(pool)
		deps.Sections, deps.Classrooms, deps.Instructors = catalog, catalog, catalog
		deps.Schedules = repository.NewPostgresScheduleRepository(pool)
		logger.Info("using postgres storage")
	} else {
		snapshot, err := repository.LoadSnapshot(cfg.SnapshotFile)
		if err != nil {
			return nil, err
		}
		deps.Sections, deps.Classrooms, deps.Instructors = snapshot, snapshot, snapshot
		deps.Schedules = repository.NewMemoryScheduleRepository()
		logger.Info("using in-memory storage", zap.String("snapshot", cfg.SnapshotFile))
	}

	//** Scope locks
	if cfg.RedisAddr != "" {
		client, err := lock.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		deps.Locker = lock.NewRedisLocker(client, logger)
		logger.Info("using redis scope locks", zap.String("addr", cfg.RedisAddr))
	} else {
		deps.Locker = lock.NewMemoryLocker()
	}

	a.generation = service.NewGenerationService(deps)
	a.handler = transport.NewRouter(transport.NewScheduleHandler(a.generation, logger), logger)
	return a, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrator, err := NewMigrator(pool, logger)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Run(ctx)
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Shutdown stops running generations and releases connections
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.generation != nil {
		err = a.generation.Shutdown(ctx)
	}
	return errors.Join(err, a.Close())
}

func (a *App) Close() error {
	var err error
	if a.redis != nil {
		err = a.redis.Close()
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return err
}

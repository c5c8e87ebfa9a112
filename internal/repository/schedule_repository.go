package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/limaJavier/campus-timetabling/pkg/model"
)

const (
	lockScopeQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	selectCurrentIdQuery = `
		SELECT id
		FROM schedules
		WHERE scope_key = $1 AND status = 'feasible' AND superseded_at IS NULL
	`

	supersedeQuery = `
		UPDATE schedules
		SET superseded_at = $2, superseded_by = $3
		WHERE id = $1
	`

	insertScheduleQuery = `
		INSERT INTO schedules (id, scope_key, semester, year, department_id, status, outcome, reason, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	selectScheduleQuery = `
		SELECT id, semester, year, department_id, status, outcome, reason, generated_at, superseded_at
		FROM schedules
		WHERE id = $1
	`

	selectEntriesQuery = `
		SELECT section_id, course_code, section_number, instructor_id, day, start_minute, end_minute, classroom_id
		FROM schedule_entries
		WHERE schedule_id = $1
		ORDER BY position
	`

	selectScheduleEnrollmentsQuery = `
		SELECT section_id, student_id
		FROM schedule_enrollments
		WHERE schedule_id = $1
		ORDER BY section_id, student_id
	`
)

var entryColumns = []string{
	"schedule_id", "position", "section_id", "course_code", "section_number",
	"instructor_id", "day", "start_minute", "end_minute", "classroom_id",
}

var enrollmentColumns = []string{"schedule_id", "section_id", "student_id"}

type PostgresScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresScheduleRepository(pool *pgxpool.Pool) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{pool: pool}
}

// Supersede serializes same-scope writers with a transaction-scoped advisory lock, checks the current schedule and
// swaps it for the new one together with its entries
func (r *PostgresScheduleRepository) Supersede(ctx context.Context, schedule model.Schedule, expected uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin supersede: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	key := schedule.Scope.Key()
	if _, err := tx.Exec(ctx, lockScopeQuery, key); err != nil {
		return fmt.Errorf("lock scope %v: %w", key, err)
	}

	current := uuid.Nil
	err = tx.QueryRow(ctx, selectCurrentIdQuery, key).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("get current schedule: %w", err)
	}
	if current != expected {
		return fmt.Errorf("%w: scope %v moved to schedule %v while generating from %v", model.ErrPersistenceConflict, key, current, expected)
	}

	if current != uuid.Nil {
		if _, err := tx.Exec(ctx, supersedeQuery, current, schedule.GeneratedAt, schedule.Id); err != nil {
			return fmt.Errorf("supersede schedule %v: %w", current, err)
		}
	}
	if err := insertHeader(ctx, tx, schedule); err != nil {
		return err
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"schedule_entries"}, entryColumns, pgx.CopyFromSlice(len(schedule.Entries), func(i int) ([]any, error) {
		entry := schedule.Entries[i]
		return []any{
			schedule.Id, int32(i), entry.SectionId, entry.CourseCode, entry.SectionNumber,
			entry.InstructorId, int16(entry.Day), int16(entry.StartTime), int16(entry.EndTime), entry.ClassroomId,
		}, nil
	}))
	if err != nil {
		return fmt.Errorf("insert schedule entries: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"schedule_enrollments"}, enrollmentColumns, pgx.CopyFromSlice(len(schedule.Enrollments), func(i int) ([]any, error) {
		enrollment := schedule.Enrollments[i]
		return []any{schedule.Id, enrollment.SectionId, enrollment.StudentId}, nil
	}))
	if err != nil {
		return fmt.Errorf("insert schedule enrollments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit supersede: %w", err)
	}
	return nil
}

func (r *PostgresScheduleRepository) Record(ctx context.Context, schedule model.Schedule) error {
	return insertHeader(ctx, r.pool, schedule)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertHeader(ctx context.Context, db execer, schedule model.Schedule) error {
	_, err := db.Exec(
		ctx, insertScheduleQuery,
		schedule.Id,
		schedule.Scope.Key(),
		schedule.Scope.Semester,
		schedule.Scope.Year,
		schedule.Scope.DepartmentId,
		string(schedule.Status),
		string(schedule.Outcome),
		schedule.Reason,
		schedule.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule %v: %w", schedule.Id, err)
	}
	return nil
}

func (r *PostgresScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	var (
		schedule model.Schedule
		status   string
		outcome  string
	)
	err := r.pool.QueryRow(ctx, selectScheduleQuery, id).Scan(
		&schedule.Id,
		&schedule.Scope.Semester,
		&schedule.Scope.Year,
		&schedule.Scope.DepartmentId,
		&status,
		&outcome,
		&schedule.Reason,
		&schedule.GeneratedAt,
		&schedule.SupersededAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: schedule %v", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get schedule by id: %w", err)
	}
	schedule.Status = model.Status(status)
	schedule.Outcome = model.Outcome(outcome)

	rows, err := r.pool.Query(ctx, selectEntriesQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule entries: %w", err)
	}
	defer rows.Close()

	schedule.Entries = []model.ScheduleEntry{}
	for rows.Next() {
		var (
			entry           model.ScheduleEntry
			day, start, end int16
		)
		if err := rows.Scan(
			&entry.SectionId,
			&entry.CourseCode,
			&entry.SectionNumber,
			&entry.InstructorId,
			&day,
			&start,
			&end,
			&entry.ClassroomId,
		); err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		entry.Day = time.Weekday(day)
		entry.StartTime = model.ClockTime(start)
		entry.EndTime = model.ClockTime(end)
		schedule.Entries = append(schedule.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule entries: %w", err)
	}

	rows, err = r.pool.Query(ctx, selectScheduleEnrollmentsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule enrollments: %w", err)
	}
	schedule.Enrollments, err = pgx.CollectRows(rows, pgx.RowToStructByPos[model.Enrollment])
	if err != nil {
		return nil, fmt.Errorf("scan schedule enrollments: %w", err)
	}

	return &schedule, nil
}

func (r *PostgresScheduleRepository) GetCurrent(ctx context.Context, scope model.Scope) (*model.Schedule, error) {
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, selectCurrentIdQuery, scope.Key()).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no current schedule for %v", model.ErrNotFound, scope.Key())
		}
		return nil, fmt.Errorf("get current schedule: %w", err)
	}
	return r.GetByID(ctx, id)
}

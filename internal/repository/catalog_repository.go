package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
)

const (
	selectSectionsQuery = `
		SELECT id, course_code, section_number, department_id, semester, year,
		       required_weekly_meetings, meeting_duration_minutes, instructor_id, capacity, required_features
		FROM sections
		WHERE semester = $1 AND year = $2 AND ($3 = '' OR department_id = $3)
		ORDER BY id
	`

	selectEnrollmentsQuery = `
		SELECT e.section_id, e.student_id
		FROM enrollments e
		JOIN sections s ON s.id = e.section_id
		WHERE s.semester = $1 AND s.year = $2 AND ($3 = '' OR s.department_id = $3)
		ORDER BY e.section_id, e.student_id
	`

	selectClassroomsQuery = `
		SELECT id, name, capacity, features
		FROM classrooms
		ORDER BY id
	`

	selectInstructorsQuery = `
		SELECT id, name
		FROM instructors
		ORDER BY id
	`

	selectAvailabilityQuery = `
		SELECT instructor_id, day, start_minute, end_minute
		FROM instructor_availability
		ORDER BY instructor_id, day, start_minute
	`
)

// CatalogRepository reads the upstream registrar tables: sections, enrollments, classrooms and instructors
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) ListSections(ctx context.Context, scope model.Scope) ([]model.Section, []model.Enrollment, error) {
	rows, err := r.pool.Query(ctx, selectSectionsQuery, scope.Semester, scope.Year, scope.DepartmentId)
	if err != nil {
		return nil, nil, fmt.Errorf("list sections: %w", err)
	}
	sections, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Section, error) {
		var section model.Section
		err := row.Scan(
			&section.Id,
			&section.CourseCode,
			&section.SectionNumber,
			&section.DepartmentId,
			&section.Semester,
			&section.Year,
			&section.RequiredWeeklyMeetings,
			&section.MeetingDurationMinutes,
			&section.AssignedInstructorId,
			&section.Capacity,
			&section.RequiredFeatures,
		)
		return section, err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan sections: %w", err)
	}

	rows, err = r.pool.Query(ctx, selectEnrollmentsQuery, scope.Semester, scope.Year, scope.DepartmentId)
	if err != nil {
		return nil, nil, fmt.Errorf("list enrollments: %w", err)
	}
	enrollments, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Enrollment])
	if err != nil {
		return nil, nil, fmt.Errorf("scan enrollments: %w", err)
	}

	return sections, enrollments, nil
}

func (r *CatalogRepository) ListClassrooms(ctx context.Context) ([]model.Classroom, error) {
	rows, err := r.pool.Query(ctx, selectClassroomsQuery)
	if err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	classrooms, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Classroom])
	if err != nil {
		return nil, fmt.Errorf("scan classrooms: %w", err)
	}
	return classrooms, nil
}

func (r *CatalogRepository) ListInstructors(ctx context.Context, grid model.Grid) ([]model.Instructor, error) {
	rows, err := r.pool.Query(ctx, selectInstructorsQuery)
	if err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	instructors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Instructor, error) {
		var instructor model.Instructor
		err := row.Scan(&instructor.Id, &instructor.Name)
		return instructor, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan instructors: %w", err)
	}

	rows, err = r.pool.Query(ctx, selectAvailabilityQuery)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	type availabilityRow struct {
		InstructorId string
		Day          int16
		Start        int16
		End          int16
	}
	windowRows, err := pgx.CollectRows(rows, pgx.RowToStructByPos[availabilityRow])
	if err != nil {
		return nil, fmt.Errorf("scan availability: %w", err)
	}

	windows := lo.GroupBy(windowRows, func(row availabilityRow) string { return row.InstructorId })
	for i := range instructors {
		instructors[i].Availability = availabilityMatrix(grid, lo.Map(windows[instructors[i].Id], func(row availabilityRow, _ int) window {
			return window{Day: time.Weekday(row.Day), Start: model.ClockTime(row.Start), End: model.ClockTime(row.End)}
		}))
	}
	return instructors, nil
}

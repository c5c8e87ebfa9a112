package model

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/samber/lo"
)

type RandomParams struct {
	Days                int
	Periods             int
	Sections            int
	Classrooms          int
	Instructors         int
	Students            int
	MaxMeetings         int     // Meetings per section are drawn from [1, MaxMeetings]
	StudentsPerSection  int     // Enrolled students per section are drawn from [0, StudentsPerSection]
	AvailabilityDensity float64 // Probability that an instructor is available at a slot
	FeatureDensity      float64 // Probability that a section requires the "lab" feature
}

// RandomInput draws a synthetic instance; the same source always yields the same input
func RandomInput(random *rand.Rand, params RandomParams) (ModelInput, error) {
	grid := Grid{
		Days: lo.Map(lo.Range(params.Days), func(day int, _ int) time.Weekday { return time.Weekday((day + 1) % 7) }),
		Periods: lo.Map(lo.Range(params.Periods), func(period int, _ int) Period {
			start := NewClockTime(8+period, 0)
			return Period{Start: start, End: start + 50}
		}),
	}

	instructors := lo.Map(lo.Range(params.Instructors), func(i int, _ int) Instructor {
		availability := make([][]bool, params.Periods)
		for period := range availability {
			availability[period] = make([]bool, params.Days)
			for day := range availability[period] {
				availability[period][day] = random.Float64() < params.AvailabilityDensity
			}
		}
		return Instructor{Id: fmt.Sprintf("I%03d", i), Name: fmt.Sprintf("Instructor %d", i), Availability: availability}
	})

	classrooms := lo.Map(lo.Range(params.Classrooms), func(i int, _ int) Classroom {
		classroom := Classroom{
			Id:       fmt.Sprintf("R%03d", i),
			Name:     fmt.Sprintf("Room %d", i),
			Capacity: uint64(params.StudentsPerSection/2 + 1 + random.Intn(params.StudentsPerSection+1)),
		}
		if i%2 == 0 {
			classroom.Features = []string{"lab"}
		}
		return classroom
	})

	sections := lo.Map(lo.Range(params.Sections), func(i int, _ int) Section {
		enrolled := lo.Map(lo.Range(random.Intn(params.StudentsPerSection+1)), func(_ int, _ int) string {
			return fmt.Sprintf("S%04d", random.Intn(params.Students))
		})
		section := Section{
			Id:                     fmt.Sprintf("SEC%03d", i),
			CourseCode:             fmt.Sprintf("C%03d", i/2),
			SectionNumber:          fmt.Sprintf("%02d", i%2+1),
			RequiredWeeklyMeetings: uint64(1 + random.Intn(params.MaxMeetings)),
			MeetingDurationMinutes: 50,
			EnrolledStudentIds:     enrolled,
			AssignedInstructorId:   instructors[random.Intn(len(instructors))].Id,
		}
		if random.Float64() < params.FeatureDensity {
			section.RequiredFeatures = []string{"lab"}
		}
		return section
	})

	scope, err := NewScope("fall", 2025, "")
	if err != nil {
		return ModelInput{}, err
	}

	return NewModelInput(RawModelInput{
		Scope:       scope,
		Grid:        grid,
		Sections:    sections,
		Classrooms:  classrooms,
		Instructors: instructors,
	})
}

package repository

import (
	"time"

	"github.com/limaJavier/campus-timetabling/pkg/model"
)

// window is a stretch of a weekday in which an instructor can teach
type window struct {
	Day   time.Weekday
	Start model.ClockTime
	End   model.ClockTime
}

// availabilityMatrix lays windows over the grid: a period is available when a single window covers it whole.
// No windows at all means the instructor is always available.
func availabilityMatrix(grid model.Grid, windows []window) [][]bool {
	if len(windows) == 0 {
		return nil
	}
	matrix := make([][]bool, grid.TotalPeriods())
	for p, period := range grid.Periods {
		matrix[p] = make([]bool, grid.TotalDays())
		for d, day := range grid.Days {
			for _, w := range windows {
				if w.Day == day && w.Start <= period.Start && period.End <= w.End {
					matrix[p][d] = true
					break
				}
			}
		}
	}
	return matrix
}

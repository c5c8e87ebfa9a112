package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/limaJavier/campus-timetabling/pkg/engine"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
)

const MB float32 = 1024 * 1024

type ScorerType int

const (
	preference ScorerType = iota
	neutral
)

type ResultType int

const (
	solved ResultType = iota
	infeasible
	timeout
	cancelled
)

var (
	scorerTypes = map[ScorerType]string{
		preference: "preference",
		neutral:    "neutral",
	}
	scorers = map[ScorerType]engine.Scorer{
		preference: engine.NewPreferenceScorer(),
		neutral:    engine.NeutralScorer,
	}
	resultTypes = map[ResultType]string{
		solved:     "solved",
		infeasible: "infeasible",
		timeout:    "timeout",
		cancelled:  "cancelled",
	}
)

type TestMetadata struct {
	Name        string
	Seed        int64
	Params      model.RandomParams
	Sections    int
	Meetings    uint64
	Classrooms  int
	Instructors int
}

type TimetablerMetadata struct {
	Scorer       ScorerType
	SkipPrecheck bool
}

type BenchmarkResult struct {
	Timetabler TimetablerMetadata
	Test       TestMetadata
	Duration   int64
	Memory     float32
	Iterations uint64
	Backtracks uint64
	Result     ResultType
}

func main() {
	sizesPtr := flag.String("sizes", "10,20,40,80,160", "Comma separated section counts of the generated instances")
	seedsPtr := flag.Int("seeds", 3, "Instances generated per size")
	budgetPtr := flag.Duration("time-budget", 10*time.Second, "Wall-clock budget of each run")
	maxBacktracksPtr := flag.Uint64("max-backtracks", engine.DefaultMaxBacktrackSteps, "Backtracks allowed per run")
	outPtr := flag.String("out", "benchmark_results.csv", "Path of the CSV report")
	flag.Parse()

	sizes, err := parseSizes(*sizesPtr)
	if err != nil {
		log.Fatalf("invalid sizes: %v", err)
	}

	tests := getTests(sizes, *seedsPtr)
	timetablers := getTimetablers()
	results := make([]BenchmarkResult, 0, len(tests)*len(timetablers))

	for _, test := range tests {
		input, err := model.RandomInput(rand.New(rand.NewSource(test.Seed)), test.Params)
		if err != nil {
			log.Fatalf("cannot generate test \"%v\": %v", test.Name, err)
		}
		test.Sections, test.Meetings = len(input.Sections), input.TotalMeetings()
		test.Classrooms, test.Instructors = len(input.Classrooms), len(input.Instructors)

		for _, timetabler := range timetablers {
			fmt.Printf("Benchmarking test \"%v\" with scorer \"%v\" and skip-precheck \"%v\"\n", test.Name, scorerTypes[timetabler.Scorer], timetabler.SkipPrecheck)

			options := engine.Options{
				MaxBacktrackSteps: *maxBacktracksPtr,
				TimeBudget:        *budgetPtr,
				Scorer:            scorers[timetabler.Scorer],
				SkipPrecheck:      timetabler.SkipPrecheck,
			}
			result := measure(options, input)
			result.Timetabler = timetabler
			result.Test = test
			results = append(results, result)
		}
	}

	if err := toCsv(*outPtr, results); err != nil {
		log.Fatalf("cannot write report: %v", err)
	}
}

func getTests(sizes []int, seeds int) []TestMetadata {
	tests := make([]TestMetadata, 0, len(sizes)*seeds)
	for _, size := range sizes {
		for seed := range seeds {
			params := model.RandomParams{
				Days:                5,
				Periods:             6,
				Sections:            size,
				Classrooms:          max(2, size/6),
				Instructors:         max(2, size/3),
				Students:            size * 10,
				MaxMeetings:         3,
				StudentsPerSection:  20,
				AvailabilityDensity: 0.8,
				FeatureDensity:      0.2,
			}
			tests = append(tests, TestMetadata{
				Name:   fmt.Sprintf("random-%d-%d", size, seed),
				Seed:   int64(size*1000 + seed),
				Params: params,
			})
		}
	}
	return tests
}

func getTimetablers() []TimetablerMetadata {
	return []TimetablerMetadata{
		{Scorer: preference},
		{Scorer: neutral},
		{Scorer: preference, SkipPrecheck: true},
	}
}

func measure(options engine.Options, input model.ModelInput) BenchmarkResult {
	runtime.GC()
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	result, err := engine.NewBacktrackingTimetabler(options, nil).Build(context.Background(), input)

	runtime.ReadMemStats(&after)
	return BenchmarkResult{
		Duration:   result.Stats.Elapsed.Milliseconds(),
		Memory:     float32(after.TotalAlloc-before.TotalAlloc) / MB,
		Iterations: result.Stats.Iterations,
		Backtracks: result.Stats.Backtracks,
		Result:     resultOf(err),
	}
}

func resultOf(err error) ResultType {
	switch {
	case err == nil:
		return solved
	case errors.Is(err, model.ErrProvenInfeasible):
		return infeasible
	case errors.Is(err, model.ErrSearchBudgetExceeded):
		return timeout
	case errors.Is(err, model.ErrCancelled):
		return cancelled
	}
	log.Fatalf("unexpected error: %v", err)
	return cancelled
}

func toCsv(path string, results []BenchmarkResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Scorer", "Skip-Precheck", "Test", "Sections", "Meetings", "Classrooms", "Instructors", "Duration(ms)", "Allocated(MB)", "Iterations", "Backtracks", "Result"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("cannot write CSV header: %w", err)
	}

	for _, result := range results {
		record := []string{
			scorerTypes[result.Timetabler.Scorer],
			fmt.Sprintf("%v", result.Timetabler.SkipPrecheck),
			result.Test.Name,
			fmt.Sprintf("%d", result.Test.Sections),
			fmt.Sprintf("%d", result.Test.Meetings),
			fmt.Sprintf("%d", result.Test.Classrooms),
			fmt.Sprintf("%d", result.Test.Instructors),
			fmt.Sprintf("%d", result.Duration),
			fmt.Sprintf("%.1f", result.Memory),
			fmt.Sprintf("%d", result.Iterations),
			fmt.Sprintf("%d", result.Backtracks),
			resultTypes[result.Result],
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("cannot write CSV record: %w", err)
		}
	}
	return nil
}

func parseSizes(value string) ([]int, error) {
	parts := lo.Filter(strings.Split(value, ","), func(part string, _ int) bool { return strings.TrimSpace(part) != "" })
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		size, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if size <= 0 {
			return nil, fmt.Errorf("size must be positive: %d", size)
		}
		sizes = append(sizes, size)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no sizes given")
	}
	return sizes, nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/internal/app"
	"github.com/limaJavier/campus-timetabling/pkg/calendar"
	"github.com/limaJavier/campus-timetabling/pkg/engine"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	exitFeasible     = 10
	exitVerification = 15
	exitInfeasible   = 20
)

var Days = map[time.Weekday]string{
	time.Monday:    "Monday",
	time.Tuesday:   "Tuesday",
	time.Wednesday: "Wednesday",
	time.Thursday:  "Thursday",
	time.Friday:    "Friday",
	time.Saturday:  "Saturday",
	time.Sunday:    "Sunday",
}

type output struct {
	Scope   model.Scope                      `json:"scope"`
	Status  model.Status                     `json:"status"`
	Entries []model.ScheduleEntry            `json:"entries"`
	ByDay   map[string][]model.ScheduleEntry `json:"byDay"`
	Stats   engine.Stats                     `json:"stats"`
}

func main() {
	// Define arguments
	filePathPtr := flag.String("file", "", "Path to the input file")
	outFilePathPtr := flag.String("out", "", "Path to the file where the output will be written; if empty, it'll be written into the Standard Output")
	maxBacktracksPtr := flag.Uint64("max-backtracks", engine.DefaultMaxBacktrackSteps, "Backtracks allowed before giving up with a search-budget-exceeded outcome")
	timeBudgetPtr := flag.Duration("time-budget", engine.DefaultTimeBudget, "Wall-clock budget of the search")
	skipPrecheckPtr := flag.Bool("skip-precheck", false, "Go straight to the search without the feasibility pre-check")
	icsRecipientPtr := flag.String("ics-recipient", "", "Student or instructor id whose calendar will be exported")
	icsOutPtr := flag.String("ics-out", "", "Path of the exported calendar; defaults to the suggested file name")
	timezonePtr := flag.String("timezone", "UTC", "IANA timezone of the exported calendar")
	semesterDatesPtr := flag.String("semester-dates", calendar.DefaultTermDates, "Semester date ranges used by the calendar export")
	verbosePtr := flag.Bool("verbose", false, "Log the search progress")
	flag.Parse()

	// Validate arguments
	if *filePathPtr == "" {
		log.Fatal("an input file must be specified")
	} else if *timeBudgetPtr <= 0 {
		log.Fatalf("time-budget must be positive: %v", *timeBudgetPtr)
	}

	// Extract input
	input, err := model.InputFromJson(*filePathPtr)
	if err != nil {
		log.Fatalf("cannot parse input file: %v", err)
	}

	// Initialize engine
	var logger *zap.Logger
	if *verbosePtr {
		logger = app.NewLogger("development")
		defer logger.Sync() //nolint:errcheck
	}
	timetabler := engine.NewBacktrackingTimetabler(engine.Options{
		MaxBacktrackSteps: *maxBacktracksPtr,
		TimeBudget:        *timeBudgetPtr,
		SkipPrecheck:      *skipPrecheckPtr,
	}, logger)

	// Build timetable
	result, err := timetabler.Build(context.Background(), input)
	var infeasible *engine.InfeasibleError
	if errors.As(err, &infeasible) {
		fmt.Printf("Outcome: %v\n", model.OutcomeOf(err))
		if infeasible.Witness != nil {
			fmt.Printf("Witness: %v\n", infeasible.Witness.Message)
		}
		printStats(result.Stats)
		os.Exit(exitInfeasible)
	} else if err != nil {
		log.Fatalf("an error occurred during timetable construction: %v", err)
	}

	// Verify timetable correctness
	if validation := timetabler.Verify(result.Entries, input); !validation.Valid {
		fmt.Printf("Violation: %v\n", validation.Violation.Message)
		printStats(result.Stats)
		os.Exit(exitVerification)
	}

	// Build output from timetable
	out := output{
		Scope:   input.Scope,
		Status:  model.StatusFeasible,
		Entries: result.Entries,
		ByDay: lo.MapKeys(
			lo.GroupBy(result.Entries, func(entry model.ScheduleEntry) time.Weekday { return entry.Day }),
			func(_ []model.ScheduleEntry, day time.Weekday) string { return Days[day] },
		),
		Stats: result.Stats,
	}
	outJson, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatalf("an error occurred while building output json: %v", err)
	}

	// Verify outfile is empty, if so then write the results to the Standard Output
	if *outFilePathPtr == "" {
		fmt.Println(string(outJson))
	} else if err := os.WriteFile(*outFilePathPtr, outJson, 0666); err != nil {
		log.Fatalf("an error occurred while writing to the output file: %v", err)
	}

	if *icsRecipientPtr != "" {
		exportCalendar(input, result.Entries, *icsRecipientPtr, *icsOutPtr, *timezonePtr, *semesterDatesPtr)
	}

	printStats(result.Stats)
	os.Exit(exitFeasible)
}

func exportCalendar(input model.ModelInput, entries []model.ScheduleEntry, recipient, outFile, timezone, semesterDates string) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		log.Fatalf("unknown timezone: %v", err)
	}
	dates, err := calendar.ParseTermDates(semesterDates)
	if err != nil {
		log.Fatalf("cannot parse semester dates: %v", err)
	}
	term, err := dates.Term(input.Scope, location)
	if err != nil {
		log.Fatalf("cannot resolve the term: %v", err)
	}

	schedule := model.Schedule{
		Id:          uuid.New(),
		Scope:       input.Scope,
		GeneratedAt: time.Now().UTC(),
		Status:      model.StatusFeasible,
		Entries:     entries,
	}
	recipientEntries := schedule.ForSections(model.SectionsOf(recipient, input.Sections)).Entries
	if len(recipientEntries) == 0 {
		log.Fatalf("%v has no meetings in the schedule", recipient)
	}

	document, err := calendar.Export(schedule, recipientEntries, term, fmt.Sprintf("%v schedule of %v", input.Scope.Key(), recipient))
	if err != nil {
		log.Fatalf("cannot export calendar: %v", err)
	}
	if _, err := calendar.Parse(bytes.NewReader(document)); err != nil {
		log.Fatalf("exported calendar does not parse back: %v", err)
	}
	if outFile == "" {
		outFile = calendar.Filename(input.Scope, recipient)
	}
	if err := os.WriteFile(outFile, document, 0666); err != nil {
		log.Fatalf("an error occurred while writing the calendar: %v", err)
	}
}

func printStats(stats engine.Stats) {
	fmt.Printf("Iterations: %v\n", stats.Iterations)
	fmt.Printf("Backtracks: %v\n", stats.Backtracks)
	fmt.Printf("Elapsed: %v\n", stats.Elapsed)
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/internal/repository"
	"github.com/limaJavier/campus-timetabling/internal/service"
	"github.com/limaJavier/campus-timetabling/pkg/calendar"
	"github.com/limaJavier/campus-timetabling/pkg/engine"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.GenerationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	grid, err := model.ParseGrid("Mon,Wed,Fri", "08:00-09:30,10:00-11:30")
	require.NoError(t, err)
	terms, err := calendar.ParseTermDates(calendar.DefaultTermDates)
	require.NoError(t, err)
	provider := repository.NewSnapshotProvider(model.RawModelInput{
		Sections: []model.Section{
			{Id: "S1", CourseCode: "CS101", SectionNumber: "01", Semester: "fall", Year: 2025, RequiredWeeklyMeetings: 2, MeetingDurationMinutes: 90, AssignedInstructorId: "I1"},
			{Id: "S2", CourseCode: "CS102", SectionNumber: "01", Semester: "fall", Year: 2025, RequiredWeeklyMeetings: 1, MeetingDurationMinutes: 90, AssignedInstructorId: "I1"},
		},
		Classrooms:  []model.Classroom{{Id: "R1", Capacity: 40}},
		Instructors: []model.Instructor{{Id: "I1"}},
		Enrollments: []model.Enrollment{{SectionId: "S1", StudentId: "s1"}, {SectionId: "S2", StudentId: "s1"}},
	})
	generation := service.NewGenerationService(service.Dependencies{
		Sections:    provider,
		Classrooms:  provider,
		Instructors: provider,
		Schedules:   repository.NewMemoryScheduleRepository(),
		Grid:        grid,
		Terms:       terms,
		Options:     engine.Options{TimeBudget: 5 * time.Second},
	})
	t.Cleanup(func() { _ = generation.Shutdown(context.Background()) })
	return NewRouter(NewScheduleHandler(generation, nil), nil), generation
}

func serve(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestScheduleHandler(t *testing.T) {
	router, generation := newTestRouter(t)

	//** Generate and wait for the run
	response := serve(router, http.MethodPost, "/api/v1/schedules", `{"semester": "fall", "year": 2025, "timeBudget": "2s"}`)
	require.Equal(t, http.StatusAccepted, response.Code, response.Body.String())
	var handle service.Handle
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &handle))
	assert.Equal(t, model.StatusPending, handle.Status)
	assert.Equal(t, "/api/v1/schedules/"+handle.ScheduleId.String(), response.Header().Get("Location"))
	generation.Wait()

	t.Run("Get schedule", func(t *testing.T) {
		//** Act
		response := serve(router, http.MethodGet, "/api/v1/schedules/"+handle.ScheduleId.String(), "")

		//** Assert
		require.Equal(t, http.StatusOK, response.Code)
		var schedule model.Schedule
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &schedule))
		assert.Equal(t, model.StatusFeasible, schedule.Status)
		assert.Len(t, schedule.Entries, 3)
	})

	t.Run("Student schedule", func(t *testing.T) {
		response := serve(router, http.MethodGet, "/api/v1/students/s1/schedule?semester=fall&year=2025", "")

		require.Equal(t, http.StatusOK, response.Code)
		var schedule model.Schedule
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &schedule))
		assert.Len(t, schedule.Entries, 3)
	})

	t.Run("Calendar export", func(t *testing.T) {
		//** Act
		response := serve(router, http.MethodGet, "/api/v1/schedules/"+handle.ScheduleId.String()+"/ical?recipient=s1", "")

		//** Assert
		require.Equal(t, http.StatusOK, response.Code)
		assert.Equal(t, calendar.ContentType, response.Header().Get("Content-Type"))
		assert.Contains(t, response.Header().Get("Content-Disposition"), "schedule-fall-2025-s1.ics")
		events, err := calendar.Parse(response.Body)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("Cancelling a finished run conflicts", func(t *testing.T) {
		response := serve(router, http.MethodPost, "/api/v1/schedules/"+handle.ScheduleId.String()+"/cancel", "")
		assert.Equal(t, http.StatusConflict, response.Code)
	})

	t.Run("Error mapping", func(t *testing.T) {
		cases := []struct {
			name   string
			method string
			target string
			body   string
			status int
		}{
			{"Missing body fields", http.MethodPost, "/api/v1/schedules", `{"year": 2025}`, http.StatusBadRequest},
			{"Unknown semester", http.MethodPost, "/api/v1/schedules", `{"semester": "autumn", "year": 2025}`, http.StatusBadRequest},
			{"Malformed budget", http.MethodPost, "/api/v1/schedules", `{"semester": "fall", "year": 2025, "timeBudget": "soon"}`, http.StatusBadRequest},
			{"Scope without sections", http.MethodPost, "/api/v1/schedules", `{"semester": "spring", "year": 2025}`, http.StatusBadRequest},
			{"Malformed id", http.MethodGet, "/api/v1/schedules/not-a-uuid", "", http.StatusBadRequest},
			{"Unknown schedule", http.MethodGet, "/api/v1/schedules/" + uuid.NewString(), "", http.StatusNotFound},
			{"Missing recipient", http.MethodGet, "/api/v1/schedules/" + handle.ScheduleId.String() + "/ical", "", http.StatusBadRequest},
			{"Recipient without meetings", http.MethodGet, "/api/v1/schedules/" + handle.ScheduleId.String() + "/ical?recipient=nobody", "", http.StatusNotFound},
			{"Student schedule without year", http.MethodGet, "/api/v1/students/s1/schedule?semester=fall", "", http.StatusBadRequest},
			{"Student schedule of an empty scope", http.MethodGet, "/api/v1/students/s1/schedule?semester=spring&year=2025", "", http.StatusNotFound},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				response := serve(router, tc.method, tc.target, tc.body)
				assert.Equal(t, tc.status, response.Code, response.Body.String())
			})
		}
	})
}

package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/limaJavier/campus-timetabling/internal/service"
	"github.com/limaJavier/campus-timetabling/pkg/model"
	"go.uber.org/zap"
)

// ScheduleService is what the handlers need from the generation service
type ScheduleService interface {
	Generate(ctx context.Context, request service.GenerateRequest) (service.Handle, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (model.Schedule, error)
	GetScheduleForStudent(ctx context.Context, studentId string, scope model.Scope) (model.Schedule, error)
	ExportIcal(ctx context.Context, id uuid.UUID, recipientId string) (service.Export, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

type ScheduleHandler struct {
	service ScheduleService
	logger  *zap.Logger
}

func NewScheduleHandler(service ScheduleService, logger *zap.Logger) *ScheduleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleHandler{service: service, logger: logger}
}

func (h *ScheduleHandler) Register(router gin.IRouter) {
	schedules := router.Group("/schedules")
	schedules.POST("", h.Generate)
	schedules.GET("/:id", h.GetSchedule)
	schedules.POST("/:id/cancel", h.Cancel)
	schedules.GET("/:id/ical", h.ExportIcal)
	router.GET("/students/:studentId/schedule", h.GetScheduleForStudent)
}

type generateRequest struct {
	Semester          string `json:"semester" binding:"required"`
	Year              int    `json:"year" binding:"required"`
	DepartmentId      string `json:"departmentId"`
	MaxBacktrackSteps uint64 `json:"maxBacktrackSteps"`
	TimeBudget        string `json:"timeBudget"` // Go duration, "30s"
}

func (h *ScheduleHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	var budget time.Duration
	if req.TimeBudget != "" {
		parsed, err := time.ParseDuration(req.TimeBudget)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeBudget must be a positive duration such as 30s"})
			return
		}
		budget = parsed
	}

	handle, err := h.service.Generate(c.Request.Context(), service.GenerateRequest{
		Semester:          req.Semester,
		Year:              req.Year,
		DepartmentId:      req.DepartmentId,
		MaxBacktrackSteps: req.MaxBacktrackSteps,
		TimeBudget:        budget,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Location", "/api/v1/schedules/"+handle.ScheduleId.String())
	c.JSON(http.StatusAccepted, handle)
}

func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	id, ok := scheduleId(c)
	if !ok {
		return
	}
	schedule, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (h *ScheduleHandler) Cancel(c *gin.Context) {
	id, ok := scheduleId(c)
	if !ok {
		return
	}
	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ScheduleHandler) ExportIcal(c *gin.Context) {
	id, ok := scheduleId(c)
	if !ok {
		return
	}
	recipient := c.Query("recipient")
	if recipient == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient is required"})
		return
	}
	export, err := h.service.ExportIcal(c.Request.Context(), id, recipient)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	c.Data(http.StatusOK, export.ContentType, export.Body)
}

func (h *ScheduleHandler) GetScheduleForStudent(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year must be a number"})
		return
	}
	scope := model.Scope{Semester: c.Query("semester"), Year: year, DepartmentId: c.Query("department")}
	schedule, err := h.service.GetScheduleForStudent(c.Request.Context(), c.Param("studentId"), scope)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func scheduleId(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *ScheduleHandler) writeError(c *gin.Context, err error) {
	var validationError *model.ValidationError
	switch {
	case errors.As(err, &validationError):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validationError.Field})
	case errors.Is(err, model.ErrInvalidScope), errors.Is(err, model.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrPersistenceConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/logger"
	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/service"
)

type Handler struct {
	log     *logger.Logger
	planner *service.PlannerService
	tasks   *service.TaskService
}

func NewHandler(log *logger.Logger, planner *service.PlannerService, tasks *service.TaskService) *Handler {
	return &Handler{
		log:     log.With("component", "httpapi"),
		planner: planner,
		tasks:   tasks,
	}
}

type completionRequest struct {
	TaskID         uuid.UUID `json:"task_id" binding:"required"`
	OccurrenceDate string    `json:"occurrence_date" binding:"required"`
	ActualMinutes  *int      `json:"actual_minutes" binding:"required"`
}

type taskRequest struct {
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Course           string  `json:"course"`
	Topic            string  `json:"topic"`
	RRule            string  `json:"rrule"`
	Priority         int     `json:"priority"`
	EstimatedMinutes *int    `json:"estimated_minutes"`
	DueAt            *string `json:"due_at"`
	CalendarEventID  string  `json:"calendar_event_id"`
}

func HealthCheck(c *gin.Context) {
	RespondOK(c, gin.H{"status": "ok"})
}

func userParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("user_id", "must be a UUID")
	}
	return id, nil
}

// GET /api/users/:userID/plan?date=YYYY-MM-DD&budget=N
func (h *Handler) GetPlan(c *gin.Context) {
	userID, err := userParam(c)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	date := c.DefaultQuery("date", h.planner.Today())

	var budget *int
	if raw := c.Query("budget"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondServiceError(c, apperr.InvalidInput("budget_minutes", "must be an integer"))
			return
		}
		budget = &n
	}

	plan, err := h.planner.GetDailyPlan(c.Request.Context(), userID, date, budget)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, plan)
}

// POST /api/users/:userID/completions
func (h *Handler) CompleteOccurrence(c *gin.Context) {
	userID, err := userParam(c)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	plan, err := h.planner.CompleteOccurrence(c.Request.Context(), service.CompleteInput{
		UserID:         userID,
		TaskID:         req.TaskID,
		OccurrenceDate: req.OccurrenceDate,
		ActualMinutes:  *req.ActualMinutes,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, plan)
}

// GET /api/users/:userID/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	userID, err := userParam(c)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	tasks, err := h.tasks.ListTasks(c.Request.Context(), userID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	RespondOK(c, gin.H{"tasks": tasks})
}

// POST /api/users/:userID/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	userID, err := userParam(c)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	input := service.TaskInput{
		Title:            req.Title,
		Description:      req.Description,
		Course:           req.Course,
		Topic:            req.Topic,
		RRule:            req.RRule,
		Priority:         req.Priority,
		EstimatedMinutes: req.EstimatedMinutes,
		CalendarEventID:  req.CalendarEventID,
	}
	if req.DueAt != nil && *req.DueAt != "" {
		due, err := service.ParseDue(*req.DueAt, h.planner.Location())
		if err != nil {
			h.respondServiceError(c, err)
			return
		}
		input.DueAt = &due
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), userID, input)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// DELETE /api/users/:userID/tasks/:taskID
func (h *Handler) CancelTask(c *gin.Context) {
	userID, err := userParam(c)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	taskID, err := uuid.Parse(c.Param("taskID"))
	if err != nil {
		h.respondServiceError(c, apperr.InvalidInput("task_id", "must be a UUID"))
		return
	}
	task, err := h.tasks.CancelTask(c.Request.Context(), userID, taskID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, task)
}

// GET /api/users/:userID/stats
func (h *Handler) Stats(c *gin.Context) {
	userID, err := userParam(c)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	stats, err := h.planner.Stats(c.Request.Context(), userID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, stats)
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/cache"
	"github.com/nidhi752/pacepilot-os/internal/logger"
	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/planner"
	"github.com/nidhi752/pacepilot-os/internal/repository"
)

// TaskInput holds user-provided data for a new task.
type TaskInput struct {
	Title            string     `json:"title" validate:"notblank,max=200"`
	Description      string     `json:"description" validate:"max=2000"`
	Course           string     `json:"course" validate:"max=64"`
	Topic            string     `json:"topic" validate:"max=128"`
	RRule            string     `json:"rrule" validate:"max=512"`
	Priority         int        `json:"priority" validate:"omitempty,min=1,max=3"`
	EstimatedMinutes *int       `json:"estimated_minutes" validate:"omitempty,min=1,max=1440"`
	DueAt            *time.Time `json:"due_at"`
	CalendarEventID  string     `json:"calendar_event_id" validate:"max=256"`
}

// TaskService handles task templates and courses.
type TaskService struct {
	repos *repository.Repositories
	cache cache.PlanCache
	log   *logger.Logger
	loc   *time.Location
}

func NewTaskService(repos *repository.Repositories, planCache cache.PlanCache, log *logger.Logger, loc *time.Location) *TaskService {
	if planCache == nil {
		planCache = cache.Nop{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{repos: repos, cache: planCache, log: log, loc: loc}
}

func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, input TaskInput) (*model.Task, error) {
	if err := validate.Struct(input); err != nil {
		return nil, inputError(err)
	}
	rrule := strings.ToUpper(strings.TrimSpace(input.RRule))
	if rrule != "" {
		rule, err := planner.ParseRule(rrule, s.loc)
		if err != nil {
			return nil, err
		}
		if input.DueAt == nil {
			return nil, apperr.InvalidInput("due_at", "recurring tasks need an anchor date")
		}
		if err := rule.CheckAnchor(*input.DueAt, s.loc); err != nil {
			return nil, err
		}
	}

	priority := model.Priority(input.Priority)
	if priority == 0 {
		priority = model.PriorityMedium
	}
	task := &model.Task{
		UserID:           userID,
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		Topic:            strings.TrimSpace(input.Topic),
		RRule:            rrule,
		Priority:         priority,
		EstimatedMinutes: input.EstimatedMinutes,
		DueAt:            input.DueAt,
		CalendarEventID:  strings.TrimSpace(input.CalendarEventID),
	}

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Users.Ensure(ctx, userID); err != nil {
			return err
		}
		course, err := tx.Courses.GetOrCreate(ctx, userID, input.Course)
		if err != nil {
			return err
		}
		if course != nil {
			task.CourseID = &course.ID
		}
		return tx.Tasks.Create(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	s.log.Info("task created", "user_id", userID, "task_id", task.ID, "recurring", task.IsRecurring())
	return task, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	return s.repos.Tasks.ListByUser(ctx, userID)
}

func (s *TaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*model.Task, error) {
	return s.repos.Tasks.FindByID(ctx, userID, taskID)
}

func (s *TaskService) ListCourses(ctx context.Context, userID uuid.UUID) ([]model.Course, error) {
	return s.repos.Courses.ListByUser(ctx, userID)
}

// CancelTask closes a task without recording a completion; it stops producing occurrences.
func (s *TaskService) CancelTask(ctx context.Context, userID, taskID uuid.UUID) (*model.Task, error) {
	task, err := s.repos.Tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if !task.IsOpen() {
		return nil, apperr.InvalidInput("status", "task is already "+string(task.Status))
	}
	task.Status = model.StatusCancelled
	if err := s.repos.Tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) error {
	if err := s.repos.Tasks.Delete(ctx, userID, taskID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *TaskService) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("plan cache invalidation failed", "user_id", userID, "error", err)
	}
}

// ParseDue accepts RFC 3339, "YYYY-MM-DD HH:MM" or a bare date (end of day) in loc.
func ParseDue(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(model.DateLayout, raw, loc); err == nil {
		return t.Add(23*time.Hour + 59*time.Minute), nil
	}
	return time.Time{}, apperr.InvalidInput("due_at", "expected RFC 3339, YYYY-MM-DD HH:MM or YYYY-MM-DD")
}

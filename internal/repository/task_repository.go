package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
)

var openStatuses = []model.TaskStatus{model.StatusPending, model.StatusInProgress, ""}

// TaskRepository handles CRUD for task templates.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = model.StatusPending
	}
	normalizeTimes(task)
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ListRelevant returns open templates that may produce an occurrence up to windowEnd:
// every recurring template plus one-off tasks due no later than windowEnd.
func (r *TaskRepository) ListRelevant(ctx context.Context, userID uuid.UUID, windowEnd time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, openStatuses).
		Where("(rrule <> '' AND rrule IS NOT NULL) OR (due_at IS NOT NULL AND due_at <= ?)", windowEnd.UTC()).
		Order("due_at NULLS LAST, id").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list relevant tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("due_at NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uuid.UUID) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.NotFound("task", taskID.String())
	default:
		return nil, fmt.Errorf("find task: %w", err)
	}
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	normalizeTimes(task)
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Delete removes a task for the given user, regardless of it being recurring or not.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("task", taskID.String())
	}
	return nil
}

// normalizeTimes stores instants in UTC so that SQLite's text timestamps compare in order.
func normalizeTimes(task *model.Task) {
	if task.DueAt != nil {
		due := task.DueAt.UTC()
		task.DueAt = &due
	}
	if task.CompletedAt != nil {
		done := task.CompletedAt.UTC()
		task.CompletedAt = &done
	}
}

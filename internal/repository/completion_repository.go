package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
)

// CompletionRepository appends to and reads the occurrence completion log.
type CompletionRepository struct {
	db *gorm.DB
}

func NewCompletionRepository(db *gorm.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// Append adds a completion. A second entry for the same task and occurrence date
// fails with an InvalidInputError on occurrence_date.
func (r *CompletionRepository) Append(ctx context.Context, completion *model.OccurrenceCompletion) error {
	if completion.ID == uuid.Nil {
		completion.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(completion).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.InvalidInput("occurrence_date", "occurrence on "+completion.OccurrenceDate+" is already completed")
	}
	if err != nil {
		return fmt.Errorf("append completion: %w", err)
	}
	return nil
}

// ListForDates returns the user's completions whose occurrence date is in dates.
func (r *CompletionRepository) ListForDates(ctx context.Context, userID uuid.UUID, dates []string) ([]model.OccurrenceCompletion, error) {
	var out []model.OccurrenceCompletion
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND occurrence_date IN ?", userID, dates).
		Order("occurrence_at, task_id").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return out, nil
}

func (r *CompletionRepository) Exists(ctx context.Context, taskID uuid.UUID, occurrenceDate string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.OccurrenceCompletion{}).
		Where("task_id = ? AND occurrence_date = ?", taskID, occurrenceDate).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return count > 0, nil
}

// Accuracy aggregates the completion log of a user.
type Accuracy struct {
	Count             int64   `json:"count" yaml:"count"`
	TotalPredicted    float64 `json:"total_predicted_minutes" yaml:"total_predicted_minutes"`
	TotalActual       float64 `json:"total_actual_minutes" yaml:"total_actual_minutes"`
	MeanAbsoluteError float64 `json:"mean_absolute_error_minutes" yaml:"mean_absolute_error_minutes"`
}

func (r *CompletionRepository) Accuracy(ctx context.Context, userID uuid.UUID) (Accuracy, error) {
	var acc Accuracy
	err := r.db.WithContext(ctx).Model(&model.OccurrenceCompletion{}).
		Select("COUNT(*) AS count, "+
			"COALESCE(SUM(predicted_minutes), 0) AS total_predicted, "+
			"COALESCE(SUM(actual_minutes), 0) AS total_actual, "+
			"COALESCE(AVG(ABS(actual_minutes - predicted_minutes)), 0) AS mean_absolute_error").
		Where("user_id = ? AND actual_minutes > 0", userID).
		Scan(&acc).Error
	if err != nil {
		return Accuracy{}, fmt.Errorf("completion accuracy: %w", err)
	}
	return acc, nil
}

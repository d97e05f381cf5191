package planner

import (
	"time"

	"github.com/google/uuid"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
)

// CompletionResult is the new state the caller must persist.
type CompletionResult struct {
	Task       model.Task
	Profile    Profile
	Completion model.OccurrenceCompletion
}

// RecordCompletion computes the state after finishing the occurrence of task due at
// occurrenceDue. One-off tasks become completed; recurring templates stay untouched
// and only the completion entry and profile change. Early and late completions are
// both accepted.
func RecordCompletion(task model.Task, occurrenceDue time.Time, actualMinutes int, completedAt time.Time, p Profile) (CompletionResult, error) {
	if task.ID == uuid.Nil {
		return CompletionResult{}, apperr.NotFound("task", "")
	}
	if actualMinutes < 0 {
		return CompletionResult{}, apperr.InvalidInput("actual_minutes", "must not be negative")
	}
	if !task.IsRecurring() && !task.IsOpen() {
		return CompletionResult{}, apperr.InvalidInput("status", "task is already "+string(task.Status))
	}

	predicted := Predict(task, p)
	profile, err := Update(p, task, float64(actualMinutes))
	if err != nil {
		return CompletionResult{}, err
	}

	next := task
	if !task.IsRecurring() {
		done := completedAt
		minutes := actualMinutes
		next.Status = model.StatusCompleted
		next.CompletedAt = &done
		next.ActualMinutes = &minutes
	}

	return CompletionResult{
		Task:    next,
		Profile: profile,
		Completion: model.OccurrenceCompletion{
			ID:               uuid.New(),
			UserID:           task.UserID,
			TaskID:           task.ID,
			OccurrenceDate:   occurrenceDue.Format(model.DateLayout),
			OccurrenceAt:     occurrenceDue,
			PredictedMinutes: predicted,
			ActualMinutes:    actualMinutes,
			CompletedAt:      completedAt,
		},
	}, nil
}

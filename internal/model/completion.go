package model

import (
	"time"

	"github.com/google/uuid"
)

// OccurrenceCompletion is one entry of the append-only completion log, keyed by
// task and occurrence date. Recurring templates are never marked completed themselves.
type OccurrenceCompletion struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	TaskID           uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_completion_occurrence" json:"task_id"`
	OccurrenceDate   string    `gorm:"size:10;uniqueIndex:idx_completion_occurrence" json:"occurrence_date"`
	OccurrenceAt     time.Time `json:"occurrence_at"`
	PredictedMinutes float64   `json:"predicted_minutes"`
	ActualMinutes    int       `json:"actual_minutes"`
	CompletedAt      time.Time `json:"completed_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// DateLayout is the calendar-date format used for occurrence dates.
const DateLayout = "2006-01-02"

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is the base priority tier of a task.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// Tier clamps stored values into the known range; unset rows count as low.
func (p Priority) Tier() Priority {
	switch {
	case p <= PriorityLow:
		return PriorityLow
	case p >= PriorityHigh:
		return PriorityHigh
	default:
		return p
	}
}

func (p Priority) String() string {
	switch p.Tier() {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// DefaultTopic is the estimation bucket for tasks without topic or course.
const DefaultTopic = "general"

// Task is a user-owned task template. A non-empty RRule makes it recurring and
// DueAt is then the rule's anchor instant.
type Task struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	CourseID         *uuid.UUID `gorm:"type:uuid;index" json:"course_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Topic            string     `json:"topic,omitempty"`
	RRule            string     `gorm:"column:rrule" json:"rrule,omitempty"`
	Priority         Priority   `gorm:"default:1" json:"priority"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	Status           TaskStatus `gorm:"default:pending;index" json:"status"`
	DueAt            *time.Time `gorm:"index" json:"due_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ActualMinutes    *int       `json:"actual_minutes,omitempty"`
	CalendarEventID  string     `json:"calendar_event_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (t Task) IsRecurring() bool {
	return strings.TrimSpace(t.RRule) != ""
}

// IsOpen reports whether the task can still produce occurrences.
func (t Task) IsOpen() bool {
	return t.Status == "" || t.Status == StatusPending || t.Status == StatusInProgress
}

// TopicKey is the estimation bucket: explicit topic, then course, then DefaultTopic.
func (t Task) TopicKey() string {
	if topic := strings.TrimSpace(t.Topic); topic != "" {
		return topic
	}
	if t.CourseID != nil {
		return "course:" + t.CourseID.String()
	}
	return DefaultTopic
}

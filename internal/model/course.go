package model

import (
	"time"

	"github.com/google/uuid"
)

// Course groups tasks by subject (calculus, history, etc.).
type Course struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index:idx_user_course_code,unique" json:"user_id"`
	Code      string    `gorm:"index:idx_user_course_code,unique" json:"code"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tasks     []Task    `gorm:"foreignKey:CourseID" json:"-"`
}

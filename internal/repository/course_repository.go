package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nidhi752/pacepilot-os/internal/model"
)

// CourseRepository manages courses that own tasks.
type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetOrCreate returns the user's course with code, creating it when missing.
func (r *CourseRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, code string) (*model.Course, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	var course model.Course
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND code = ?", userID, code).First(&course).Error
	switch {
	case err == nil:
		return &course, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		course = model.Course{ID: uuid.New(), UserID: userID, Code: code, Title: code}
		if err := db.Create(&course).Error; err != nil {
			return nil, fmt.Errorf("create course: %w", err)
		}
		return &course, nil
	default:
		return nil, fmt.Errorf("find course: %w", err)
	}
}

func (r *CourseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Course, error) {
	var courses []model.Course
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("code ASC").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

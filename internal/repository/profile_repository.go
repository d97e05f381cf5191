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

// ProfileRepository stores the single study profile row per user.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*model.StudyProfile, error) {
	var profile model.StudyProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	switch {
	case err == nil:
		return &profile, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.NotFound("study profile", userID.String())
	default:
		return nil, fmt.Errorf("find study profile: %w", err)
	}
}

// GetOrCreate returns the user's profile, creating one with defaults on first use.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.StudyProfile, error) {
	profile, err := r.FindByUser(ctx, userID)
	if err == nil || !apperr.IsNotFound(err) {
		return profile, err
	}
	fresh := model.NewStudyProfile(userID)
	if err := r.db.WithContext(ctx).Create(&fresh).Error; err != nil {
		// Lost a creation race; the other writer's row wins.
		if again, findErr := r.FindByUser(ctx, userID); findErr == nil {
			return again, nil
		}
		return nil, fmt.Errorf("create study profile: %w", err)
	}
	return &fresh, nil
}

// Save writes profile if nobody changed it since it was read and bumps its version.
// A concurrent writer makes it return apperr.ErrVersionConflict.
func (r *ProfileRepository) Save(ctx context.Context, profile *model.StudyProfile) error {
	res := r.db.WithContext(ctx).Model(&model.StudyProfile{}).
		Where("id = ? AND version = ?", profile.ID, profile.Version).
		Updates(map[string]interface{}{
			"avg_pomodoro_minutes": profile.AvgPomodoroMinutes,
			"target_daily_minutes": profile.TargetDailyMinutes,
			"learning_velocity":    profile.LearningVelocity,
			"section_estimates":    profile.SectionEstimates,
			"version":              profile.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("save study profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrVersionConflict
	}
	profile.Version++
	return nil
}

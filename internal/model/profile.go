package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
)

const (
	DefaultPomodoroMinutes    = 25
	DefaultTargetDailyMinutes = 240
	DefaultLearningVelocity   = 1.0
)

// StudyProfile is the single per-user row the estimation model reads and updates.
type StudyProfile struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	AvgPomodoroMinutes int            `gorm:"default:25" json:"avg_pomodoro_minutes"`
	TargetDailyMinutes int            `gorm:"default:240" json:"target_daily_minutes"`
	LearningVelocity   float64        `gorm:"default:1" json:"learning_velocity"`
	SectionEstimates   datatypes.JSON `json:"section_estimates,omitempty"`
	Version            int            `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewStudyProfile returns the defaults used on first use.
func NewStudyProfile(userID uuid.UUID) StudyProfile {
	return StudyProfile{
		ID:                 uuid.New(),
		UserID:             userID,
		AvgPomodoroMinutes: DefaultPomodoroMinutes,
		TargetDailyMinutes: DefaultTargetDailyMinutes,
		LearningVelocity:   DefaultLearningVelocity,
		Version:            1,
	}
}

// Sections decodes the per-topic estimates. An empty column is an empty map.
func (p StudyProfile) Sections() (map[string]float64, error) {
	out := make(map[string]float64)
	if len(p.SectionEstimates) == 0 || string(p.SectionEstimates) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(p.SectionEstimates, &out); err != nil {
		return nil, apperr.Validation("section_estimates", "must be an object of topic to minutes")
	}
	for key, minutes := range out {
		if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes <= 0 {
			return nil, apperr.Validation("section_estimates", fmt.Sprintf("estimate for %q must be positive", key))
		}
	}
	return out, nil
}

// SetSections encodes the per-topic estimates into the JSON column.
func (p *StudyProfile) SetSections(sections map[string]float64) error {
	raw, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("encode section estimates: %w", err)
	}
	p.SectionEstimates = datatypes.JSON(raw)
	return nil
}

package planner

import (
	"math"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
)

const (
	MinVelocity = 0.25
	MaxVelocity = 4.0
	// Smoothing is the weight of the newest completion in every moving average.
	Smoothing = 0.2
)

// Profile is the estimation view of a study profile. Sections hold velocity-neutral
// minutes per topic key; Predict divides them by Velocity.
type Profile struct {
	PomodoroMinutes    float64            `json:"pomodoro_minutes"`
	TargetDailyMinutes int                `json:"target_daily_minutes"`
	Velocity           float64            `json:"learning_velocity"`
	Sections           map[string]float64 `json:"section_estimates,omitempty"`
}

// DefaultProfile mirrors model.NewStudyProfile.
func DefaultProfile() Profile {
	return Profile{
		PomodoroMinutes:    model.DefaultPomodoroMinutes,
		TargetDailyMinutes: model.DefaultTargetDailyMinutes,
		Velocity:           model.DefaultLearningVelocity,
		Sections:           map[string]float64{},
	}
}

func (p Profile) velocity() float64 {
	if p.Velocity <= 0 || math.IsNaN(p.Velocity) || math.IsInf(p.Velocity, 0) {
		return model.DefaultLearningVelocity
	}
	return p.Velocity
}

func (p Profile) pomodoro() float64 {
	if p.PomodoroMinutes <= 0 {
		return model.DefaultPomodoroMinutes
	}
	return p.PomodoroMinutes
}

// Predict returns the expected minutes to finish task, always positive.
func Predict(task model.Task, p Profile) float64 {
	v := p.velocity()
	if task.EstimatedMinutes != nil && *task.EstimatedMinutes > 0 {
		return float64(*task.EstimatedMinutes) / v
	}
	if est, ok := p.Sections[task.TopicKey()]; ok && est > 0 {
		return est / v
	}
	return p.pomodoro()
}

// Update folds one completion into a copy of p.
//
// actualMinutes == 0 means the time was not tracked: the returned profile equals p
// and neither velocity nor section estimates move, so a real zero-minute session
// cannot be told apart from an untracked one. Negative or NaN minutes fail with an
// InvalidInputError on actual_minutes.
func Update(p Profile, task model.Task, actualMinutes float64) (Profile, error) {
	if actualMinutes < 0 || math.IsNaN(actualMinutes) {
		return p, apperr.InvalidInput("actual_minutes", "must not be negative")
	}
	next := p
	next.Sections = make(map[string]float64, len(p.Sections)+1)
	for k, v := range p.Sections {
		next.Sections[k] = v
	}
	if actualMinutes == 0 {
		return next, nil
	}

	predicted := Predict(task, p)
	if predicted <= 0 {
		predicted = 1
	}
	ratio := actualMinutes / predicted
	old := p.velocity()
	next.Velocity = clamp(old*(1+Smoothing*(1/ratio-1)), MinVelocity, MaxVelocity)

	// Sections are stored at velocity 1 so that Predict can rescale them.
	key := task.TopicKey()
	target := actualMinutes * old
	if est, ok := p.Sections[key]; ok && est > 0 {
		next.Sections[key] = est + Smoothing*(target-est)
	} else {
		next.Sections[key] = target
	}
	return next, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

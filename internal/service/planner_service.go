package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/cache"
	"github.com/nidhi752/pacepilot-os/internal/logger"
	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/planner"
	"github.com/nidhi752/pacepilot-os/internal/repository"
)

// maxCompleteAttempts bounds retries after a study profile version conflict.
const maxCompleteAttempts = 3

// CompleteInput identifies one finished occurrence.
type CompleteInput struct {
	UserID         uuid.UUID `json:"user_id"`
	TaskID         uuid.UUID `json:"task_id"`
	OccurrenceDate string    `json:"occurrence_date" validate:"required,datetime=2006-01-02"`
	ActualMinutes  int       `json:"actual_minutes" validate:"gte=0"`
}

// StudyStats summarizes estimation accuracy for a user.
type StudyStats struct {
	repository.Accuracy `yaml:",inline"`
	LearningVelocity    float64            `json:"learning_velocity" yaml:"learning_velocity"`
	SectionEstimates    map[string]float64 `json:"section_estimates" yaml:"section_estimates"`
}

// PlannerService builds daily plans and records completions. It keeps no state
// between calls; every call is an independent unit of work against the store.
type PlannerService struct {
	repos         *repository.Repositories
	cache         cache.PlanCache
	log           *logger.Logger
	loc           *time.Location
	defaultBudget int
	now           func() time.Time
}

type PlannerOption func(*PlannerService)

func WithPlanCache(c cache.PlanCache) PlannerOption {
	return func(s *PlannerService) { s.cache = c }
}

func WithClock(now func() time.Time) PlannerOption {
	return func(s *PlannerService) { s.now = now }
}

// WithDefaultBudget overrides the profile target when no per-request budget is given.
func WithDefaultBudget(minutes int) PlannerOption {
	return func(s *PlannerService) { s.defaultBudget = minutes }
}

func NewPlannerService(repos *repository.Repositories, log *logger.Logger, loc *time.Location, opts ...PlannerOption) *PlannerService {
	if loc == nil {
		loc = time.Local
	}
	s := &PlannerService{
		repos: repos,
		cache: cache.Nop{},
		log:   log,
		loc:   loc,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the zone calendar days are computed in.
func (s *PlannerService) Location() *time.Location {
	return s.loc
}

// Today returns the current calendar date.
func (s *PlannerService) Today() string {
	return s.now().In(s.loc).Format(model.DateLayout)
}

func (s *PlannerService) dayBounds(date string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(model.DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.InvalidInput("date", fmt.Sprintf("expected YYYY-MM-DD, got %q", date))
	}
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// GetDailyPlan expands the user's templates over date and fits them into the budget.
// budgetMinutes overrides the configured and profile budgets when non-nil.
func (s *PlannerService) GetDailyPlan(ctx context.Context, userID uuid.UUID, date string, budgetMinutes *int) (*planner.Plan, error) {
	dayStart, dayEnd, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	if budgetMinutes != nil && *budgetMinutes < 0 {
		return nil, apperr.InvalidInput("budget_minutes", "must not be negative")
	}

	cacheKey := date + "/default"
	if budgetMinutes != nil {
		cacheKey = date + "/" + strconv.Itoa(*budgetMinutes)
	}
	entry, cacheErr := s.cache.Get(ctx, userID, cacheKey)
	if cacheErr != nil {
		s.log.Warn("plan cache read failed", "user_id", userID, "error", cacheErr)
	} else if entry.Hit() {
		return entry.Plan, nil
	}

	row, err := s.repos.Profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := profileFromRow(*row)
	if err != nil {
		return nil, err
	}

	var (
		tasks       []model.Task
		completions []model.OccurrenceCompletion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = s.repos.Tasks.ListRelevant(gctx, userID, dayEnd)
		return err
	})
	g.Go(func() error {
		var err error
		completions, err = s.repos.Completions.ListForDates(gctx, userID, []string{date})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	occurrences, err := s.collectOccurrences(tasks, completions, dayStart, dayEnd, now)
	if err != nil {
		return nil, err
	}

	budget := profile.TargetDailyMinutes
	if s.defaultBudget > 0 {
		budget = s.defaultBudget
	}
	if budgetMinutes != nil {
		budget = *budgetMinutes
	}

	plan := planner.Allocate(occurrences, profile, float64(budget), now)
	plan.Date = date

	// Without a generation from the lookup the write could outlive an invalidation.
	if cacheErr == nil {
		if err := s.cache.Set(ctx, userID, entry.Generation, cacheKey, &plan); err != nil {
			s.log.Warn("plan cache write failed", "user_id", userID, "error", err)
		}
	}
	s.log.Info("daily plan built",
		"user_id", userID,
		"date", date,
		"scheduled", len(plan.Scheduled),
		"deferred", len(plan.Deferred),
		"used_minutes", plan.UsedMinutes,
	)
	return &plan, nil
}

// collectOccurrences expands every template over the day, drops occurrences already
// in the completion log and carries overdue one-off tasks into the day. A one-off
// dated on an earlier day that is still ahead of now belongs to that day only.
func (s *PlannerService) collectOccurrences(tasks []model.Task, completions []model.OccurrenceCompletion, dayStart, dayEnd, now time.Time) ([]planner.Occurrence, error) {
	done := make(map[string]bool, len(completions))
	for _, c := range completions {
		done[c.TaskID.String()+"/"+c.OccurrenceDate] = true
	}

	var out []planner.Occurrence
	for _, task := range tasks {
		task = s.inLocation(task)
		if !task.IsOpen() {
			continue
		}
		if !task.IsRecurring() && task.DueAt != nil && task.DueAt.Before(dayStart) {
			if task.DueAt.Before(now) {
				out = append(out, planner.Occurrence{Task: task, Due: *task.DueAt})
			}
			continue
		}
		instants, err := planner.Expand(task, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("expand task %s: %w", task.ID, err)
		}
		for _, due := range instants {
			if done[task.ID.String()+"/"+due.Format(model.DateLayout)] {
				continue
			}
			out = append(out, planner.Occurrence{Task: task, Due: due})
		}
	}
	return out, nil
}

// inLocation moves stored instants into the planning zone so recurrence keeps wall-clock time.
func (s *PlannerService) inLocation(task model.Task) model.Task {
	if task.DueAt != nil {
		due := task.DueAt.In(s.loc)
		task.DueAt = &due
	}
	return task
}

// CompleteOccurrence records the completion of taskID's occurrence on the given date,
// persists the template, log entry and profile, and returns the refreshed plan.
func (s *PlannerService) CompleteOccurrence(ctx context.Context, in CompleteInput) (*planner.Plan, error) {
	if err := validate.Struct(in); err != nil {
		return nil, inputError(err)
	}
	dayStart, dayEnd, err := s.dayBounds(in.OccurrenceDate)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			return s.completeOnce(ctx, tx, in, dayStart, dayEnd)
		})
		if !errors.Is(err, apperr.ErrVersionConflict) || attempt >= maxCompleteAttempts {
			break
		}
		s.log.Warn("study profile changed concurrently, retrying", "user_id", in.UserID, "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, in.UserID); err != nil {
		s.log.Warn("plan cache invalidation failed", "user_id", in.UserID, "error", err)
	}
	s.log.Info("occurrence completed",
		"user_id", in.UserID,
		"task_id", in.TaskID,
		"date", in.OccurrenceDate,
		"actual_minutes", in.ActualMinutes,
	)
	return s.GetDailyPlan(ctx, in.UserID, in.OccurrenceDate, nil)
}

func (s *PlannerService) completeOnce(ctx context.Context, tx *repository.Repositories, in CompleteInput, dayStart, dayEnd time.Time) error {
	stored, err := tx.Tasks.FindByID(ctx, in.UserID, in.TaskID)
	if err != nil {
		return err
	}
	task := s.inLocation(*stored)

	row, err := tx.Profiles.GetOrCreate(ctx, in.UserID)
	if err != nil {
		return err
	}
	profile, err := profileFromRow(*row)
	if err != nil {
		return err
	}

	due := dayStart
	if task.IsRecurring() {
		instants, err := planner.Expand(task, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if len(instants) == 0 {
			return apperr.InvalidInput("occurrence_date", "task has no occurrence on "+in.OccurrenceDate)
		}
		due = instants[0]
		exists, err := tx.Completions.Exists(ctx, task.ID, due.Format(model.DateLayout))
		if err != nil {
			return err
		}
		if exists {
			return apperr.InvalidInput("occurrence_date", "occurrence on "+in.OccurrenceDate+" is already completed")
		}
	} else if task.DueAt != nil {
		due = *task.DueAt
	}

	res, err := planner.RecordCompletion(task, due, in.ActualMinutes, s.now(), profile)
	if err != nil {
		return err
	}
	if !task.IsRecurring() {
		if err := tx.Tasks.Save(ctx, &res.Task); err != nil {
			return err
		}
	}
	if err := tx.Completions.Append(ctx, &res.Completion); err != nil {
		return err
	}
	if err := applyProfile(row, res.Profile); err != nil {
		return err
	}
	return tx.Profiles.Save(ctx, row)
}

// Stats reports estimation accuracy from the completion log.
func (s *PlannerService) Stats(ctx context.Context, userID uuid.UUID) (*StudyStats, error) {
	row, err := s.repos.Profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := profileFromRow(*row)
	if err != nil {
		return nil, err
	}
	acc, err := s.repos.Completions.Accuracy(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &StudyStats{
		Accuracy:         acc,
		LearningVelocity: profile.Velocity,
		SectionEstimates: profile.Sections,
	}, nil
}

func profileFromRow(row model.StudyProfile) (planner.Profile, error) {
	sections, err := row.Sections()
	if err != nil {
		return planner.Profile{}, err
	}
	if row.LearningVelocity <= 0 {
		return planner.Profile{}, apperr.Validation("learning_velocity", "must be positive")
	}
	return planner.Profile{
		PomodoroMinutes:    float64(row.AvgPomodoroMinutes),
		TargetDailyMinutes: row.TargetDailyMinutes,
		Velocity:           row.LearningVelocity,
		Sections:           sections,
	}, nil
}

func applyProfile(row *model.StudyProfile, p planner.Profile) error {
	row.LearningVelocity = p.Velocity
	return row.SetSections(p.Sections)
}

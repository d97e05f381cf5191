package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/repository/repotest"
)

func seedDay(t *testing.T, f *fixture) (weekly, evening, overdue *model.Task) {
	t.Helper()
	ctx := context.Background()
	var err error
	weekly, err = f.tasks.CreateTask(ctx, f.user, TaskInput{
		Title: "Problem set", RRule: "FREQ=WEEKLY;BYDAY=MO", Priority: 3,
		EstimatedMinutes: ptr(60), DueAt: stamp(t, "2024-02-05T09:00"),
	})
	require.NoError(t, err)
	evening, err = f.tasks.CreateTask(ctx, f.user, TaskInput{
		Title: "Read chapter 4", Priority: 2, EstimatedMinutes: ptr(30), DueAt: stamp(t, "2024-03-04T18:00"),
	})
	require.NoError(t, err)
	overdue, err = f.tasks.CreateTask(ctx, f.user, TaskInput{
		Title: "Lab report", Priority: 1, EstimatedMinutes: ptr(20), DueAt: stamp(t, "2024-03-01T12:00"),
	})
	require.NoError(t, err)
	_, err = f.tasks.CreateTask(ctx, f.user, TaskInput{
		Title: "Next week", Priority: 3, EstimatedMinutes: ptr(10), DueAt: stamp(t, "2024-03-09T12:00"),
	})
	require.NoError(t, err)
	return weekly, evening, overdue
}

func TestGetDailyPlan(t *testing.T) {
	f := newFixture(t)
	seedDay(t, f)

	plan, err := f.planner.GetDailyPlan(context.Background(), f.user, "2024-03-04", ptr(90))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-04", plan.Date)
	assert.Equal(t, []string{"Lab report", "Problem set"}, titles(plan.Scheduled))
	assert.Equal(t, []string{"Read chapter 4"}, titles(plan.Deferred))
	assert.Equal(t, 80.0, plan.UsedMinutes)
	assert.Equal(t, 10.0, plan.RemainingMinutes)
	assert.True(t, plan.Scheduled[0].Overdue)
	assert.Equal(t, 4, plan.Scheduled[1].EffectivePriority)
}

func TestGetDailyPlanBudgetPrecedence(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	seedDay(t, f)
	plan, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(model.DefaultTargetDailyMinutes), plan.BudgetMinutes)
	assert.Len(t, plan.Scheduled, 3)

	f = newFixture(t, WithDefaultBudget(25))
	seedDay(t, f)
	plan, err = f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", nil)
	require.NoError(t, err)
	assert.Equal(t, 25.0, plan.BudgetMinutes)
	assert.Equal(t, []string{"Lab report"}, titles(plan.Scheduled))

	plan, err = f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", ptr(0))
	require.NoError(t, err)
	assert.Empty(t, plan.Scheduled)
	assert.Len(t, plan.Deferred, 3)
}

func TestGetDailyPlanOtherDay(t *testing.T) {
	f := newFixture(t)
	seedDay(t, f)

	plan, err := f.planner.GetDailyPlan(context.Background(), f.user, "2024-03-05", ptr(600))
	require.NoError(t, err)
	// No Tuesday occurrence of the weekly task. Only the one-off already past due
	// carries over; Monday evening's reading is not late yet.
	assert.Equal(t, []string{"Lab report"}, titles(plan.Scheduled))
	assert.True(t, plan.Scheduled[0].Overdue)
	assert.Empty(t, plan.Deferred)
}

func TestGetDailyPlanFutureOneOffStaysOnItsDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.tasks.CreateTask(ctx, f.user, TaskInput{
		Title: "Essay", EstimatedMinutes: ptr(60), DueAt: stamp(t, "2024-03-05T18:00"),
	})
	require.NoError(t, err)

	tests := []struct {
		date string
		want []string
	}{
		{date: "2024-03-04", want: []string{}},
		{date: "2024-03-05", want: []string{"Essay"}},
		{date: "2024-03-06", want: []string{}},
		{date: "2024-03-07", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			plan, err := f.planner.GetDailyPlan(ctx, f.user, tt.date, ptr(600))
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(plan.Scheduled))
		})
	}
}

func TestGetDailyPlanUsesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDay(t, f)

	first, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", nil)
	require.NoError(t, err)
	second, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", nil)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = f.tasks.CreateTask(ctx, f.user, TaskInput{Title: "Flashcards", DueAt: stamp(t, "2024-03-04T20:00")})
	require.NoError(t, err)
	third, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", nil)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Len(t, third.Scheduled, 4)
}

func TestGetDailyPlanDoesNotCacheAcrossInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, evening, _ := seedDay(t, f)

	// A completion commits while this plan is being computed.
	f.cache.beforeSet = func() {
		_, err := f.planner.CompleteOccurrence(ctx, CompleteInput{
			UserID: f.user, TaskID: evening.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 30,
		})
		require.NoError(t, err)
	}
	stale, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", ptr(600))
	require.NoError(t, err)
	assert.Contains(t, titles(stale.Scheduled), "Read chapter 4")

	fresh, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", ptr(600))
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
	assert.NotContains(t, titles(fresh.Scheduled), "Read chapter 4")
}

func TestGetDailyPlanRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.planner.GetDailyPlan(ctx, f.user, "04.03.2024", nil)
	assert.True(t, apperr.IsInvalidInput(err))

	_, err = f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", ptr(-1))
	assert.True(t, apperr.IsInvalidInput(err))
}

func TestCompleteRecurringOccurrence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	weekly, _, _ := seedDay(t, f)

	plan, err := f.planner.CompleteOccurrence(ctx, CompleteInput{
		UserID: f.user, TaskID: weekly.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 30,
	})
	require.NoError(t, err)
	assert.NotContains(t, titles(plan.Scheduled), "Problem set")
	assert.NotContains(t, titles(plan.Deferred), "Problem set")
	assert.Equal(t, 5, f.cache.invalidations, "four created tasks and one completion")

	stored, err := f.repos.Tasks.FindByID(ctx, f.user, weekly.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Nil(t, stored.CompletedAt)

	profile, err := f.repos.Profiles.FindByUser(ctx, f.user)
	require.NoError(t, err)
	assert.Greater(t, profile.LearningVelocity, 1.0)
	assert.Equal(t, 2, profile.Version)

	// Next week the occurrence is back.
	next, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-11", ptr(600))
	require.NoError(t, err)
	assert.Contains(t, titles(next.Scheduled), "Problem set")

	_, err = f.planner.CompleteOccurrence(ctx, CompleteInput{
		UserID: f.user, TaskID: weekly.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 30,
	})
	var ierr *apperr.InvalidInputError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "occurrence_date", ierr.Field)

	_, err = f.planner.CompleteOccurrence(ctx, CompleteInput{
		UserID: f.user, TaskID: weekly.ID, OccurrenceDate: "2024-03-05", ActualMinutes: 30,
	})
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "occurrence_date", ierr.Field)
}

func TestCompleteOneOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, evening, _ := seedDay(t, f)

	in := CompleteInput{UserID: f.user, TaskID: evening.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 45}
	plan, err := f.planner.CompleteOccurrence(ctx, in)
	require.NoError(t, err)
	assert.NotContains(t, titles(plan.Scheduled), "Read chapter 4")

	stored, err := f.repos.Tasks.FindByID(ctx, f.user, evening.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	require.NotNil(t, stored.ActualMinutes)
	assert.Equal(t, 45, *stored.ActualMinutes)

	_, err = f.planner.CompleteOccurrence(ctx, in)
	var ierr *apperr.InvalidInputError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "status", ierr.Field)
}

func TestCompleteOccurrenceFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, evening, _ := seedDay(t, f)

	tests := []struct {
		name  string
		in    CompleteInput
		field string
	}{
		{name: "negative minutes", in: CompleteInput{TaskID: evening.ID, OccurrenceDate: "2024-03-04", ActualMinutes: -1}, field: "actual_minutes"},
		{name: "bad date", in: CompleteInput{TaskID: evening.ID, OccurrenceDate: "4 March", ActualMinutes: 10}, field: "occurrence_date"},
		{name: "missing date", in: CompleteInput{TaskID: evening.ID, ActualMinutes: 10}, field: "occurrence_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.UserID = f.user
			_, err := f.planner.CompleteOccurrence(ctx, tt.in)
			var ierr *apperr.InvalidInputError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tt.field, ierr.Field)
		})
	}

	_, err := f.planner.CompleteOccurrence(ctx, CompleteInput{UserID: f.user, TaskID: uuid.New(), OccurrenceDate: "2024-03-04", ActualMinutes: 10})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.planner.CompleteOccurrence(ctx, CompleteInput{UserID: uuid.New(), TaskID: evening.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 10})
	assert.True(t, apperr.IsNotFound(err), "tasks are scoped to their owner")
}

func TestCompleteRetriesProfileConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	weekly, _, _ := seedDay(t, f)
	forced := repotest.ConflictProfileSaves(t, f.db, maxCompleteAttempts-1)

	plan, err := f.planner.CompleteOccurrence(ctx, CompleteInput{
		UserID: f.user, TaskID: weekly.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, maxCompleteAttempts-1, forced())
	assert.NotContains(t, titles(plan.Scheduled), "Problem set")

	profile, err := f.repos.Profiles.FindByUser(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.Version, "failed attempts roll back")
	assert.Greater(t, profile.LearningVelocity, 1.0)

	done, err := f.repos.Completions.Exists(ctx, weekly.ID, "2024-03-04")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCompleteGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	weekly, _, _ := seedDay(t, f)
	forced := repotest.ConflictProfileSaves(t, f.db, -1)
	invalidations := f.cache.invalidations

	_, err := f.planner.CompleteOccurrence(ctx, CompleteInput{
		UserID: f.user, TaskID: weekly.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 30,
	})
	assert.ErrorIs(t, err, apperr.ErrVersionConflict)
	assert.Equal(t, maxCompleteAttempts, forced())
	assert.Equal(t, invalidations, f.cache.invalidations)

	done, err := f.repos.Completions.Exists(ctx, weekly.ID, "2024-03-04")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCompleteWithZeroMinutesKeepsProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, evening, _ := seedDay(t, f)

	_, err := f.planner.CompleteOccurrence(ctx, CompleteInput{UserID: f.user, TaskID: evening.ID, OccurrenceDate: "2024-03-04"})
	require.NoError(t, err)

	profile, err := f.repos.Profiles.FindByUser(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLearningVelocity, profile.LearningVelocity)

	stats, err := f.planner.Stats(ctx, f.user)
	require.NoError(t, err)
	assert.Zero(t, stats.Count, "untracked completions are not scored")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	weekly, evening, _ := seedDay(t, f)

	_, err := f.planner.CompleteOccurrence(ctx, CompleteInput{UserID: f.user, TaskID: weekly.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 50})
	require.NoError(t, err)
	_, err = f.planner.CompleteOccurrence(ctx, CompleteInput{UserID: f.user, TaskID: evening.ID, OccurrenceDate: "2024-03-04", ActualMinutes: 40})
	require.NoError(t, err)

	stats, err := f.planner.Stats(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, 90.0, stats.TotalActual)
	assert.Greater(t, stats.MeanAbsoluteError, 0.0)
	assert.NotEqual(t, model.DefaultLearningVelocity, stats.LearningVelocity)
}

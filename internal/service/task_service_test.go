package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
)

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	task, err := f.tasks.CreateTask(ctx, f.user, TaskInput{
		Title:  "  Essay draft ",
		Course: "HIST-101",
		RRule:  "freq=daily;interval=2",
		DueAt:  stamp(t, "2024-03-01T19:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Essay draft", task.Title)
	assert.Equal(t, "FREQ=DAILY;INTERVAL=2", task.RRule)
	assert.Equal(t, model.PriorityMedium, task.Priority)
	assert.Equal(t, model.StatusPending, task.Status)
	require.NotNil(t, task.CourseID)

	user, err := f.repos.Users.FindByID(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, f.user, user.ID)

	courses, err := f.tasks.ListCourses(ctx, f.user)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "HIST-101", courses[0].Code)

	again, err := f.tasks.CreateTask(ctx, f.user, TaskInput{Title: "Sources", Course: "HIST-101"})
	require.NoError(t, err)
	assert.Equal(t, *task.CourseID, *again.CourseID)

	got, err := f.tasks.GetTask(ctx, f.user, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)

	all, err := f.tasks.ListTasks(ctx, f.user)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateTaskValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name  string
		in    TaskInput
		field string
	}{
		{name: "blank title", in: TaskInput{Title: "   "}, field: "title"},
		{name: "priority out of range", in: TaskInput{Title: "x", Priority: 4}, field: "priority"},
		{name: "zero estimate", in: TaskInput{Title: "x", EstimatedMinutes: ptr(0)}, field: "estimated_minutes"},
		{name: "recurring without anchor", in: TaskInput{Title: "x", RRule: "FREQ=WEEKLY"}, field: "due_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.CreateTask(ctx, f.user, tt.in)
			var ierr *apperr.InvalidInputError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tt.field, ierr.Field)
		})
	}

	_, err := f.tasks.CreateTask(ctx, f.user, TaskInput{Title: "x", RRule: "FREQ=HOURLY", DueAt: stamp(t, "2024-03-01T19:00")})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "FREQ", verr.Field)

	// 2024-03-01 is a Friday.
	_, err = f.tasks.CreateTask(ctx, f.user, TaskInput{Title: "x", RRule: "FREQ=WEEKLY;BYDAY=MO,WE", DueAt: stamp(t, "2024-03-01T19:00")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "due_at", verr.Field)

	all, err := f.tasks.ListTasks(ctx, f.user)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCancelAndDeleteTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	task, err := f.tasks.CreateTask(ctx, f.user, TaskInput{Title: "Quiz prep", DueAt: stamp(t, "2024-03-04T15:00")})
	require.NoError(t, err)

	cancelled, err := f.tasks.CancelTask(ctx, f.user, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	plan, err := f.planner.GetDailyPlan(ctx, f.user, "2024-03-04", nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Scheduled)

	_, err = f.tasks.CancelTask(ctx, f.user, task.ID)
	assert.True(t, apperr.IsInvalidInput(err))

	require.NoError(t, f.tasks.DeleteTask(ctx, f.user, task.ID))
	assert.True(t, apperr.IsNotFound(f.tasks.DeleteTask(ctx, f.user, task.ID)))
	_, err = f.tasks.GetTask(ctx, f.user, uuid.New())
	assert.True(t, apperr.IsNotFound(err))
}

func TestParseDue(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	got, err := ParseDue("2024-03-04", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 23, 59, 0, 0, loc), got)

	got, err = ParseDue(" 2024-03-04 07:15", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 7, 15, 0, 0, loc), got)

	got, err = ParseDue("2024-03-04T07:15:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 4, 7, 15, 0, 0, time.UTC)))

	_, err = ParseDue("soon", loc)
	assert.True(t, apperr.IsInvalidInput(err))
}

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nidhi752/pacepilot-os/internal/cache"
	"github.com/nidhi752/pacepilot-os/internal/logger"
	"github.com/nidhi752/pacepilot-os/internal/planner"
	"github.com/nidhi752/pacepilot-os/internal/repository"
	"github.com/nidhi752/pacepilot-os/internal/repository/repotest"
)

// Monday morning.
var testNow = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	repos   *repository.Repositories
	cache   *recordingCache
	planner *PlannerService
	tasks   *TaskService
	user    uuid.UUID
}

func newFixture(t *testing.T, opts ...PlannerOption) *fixture {
	t.Helper()
	db := repotest.DB(t)
	repos := repository.New(db)
	c := newRecordingCache()
	opts = append([]PlannerOption{WithClock(func() time.Time { return testNow }), WithPlanCache(c)}, opts...)
	return &fixture{
		db:      db,
		repos:   repos,
		cache:   c,
		planner: NewPlannerService(repos, logger.Nop(), time.UTC, opts...),
		tasks:   NewTaskService(repos, c, logger.Nop(), time.UTC),
		user:    uuid.New(),
	}
}

func ptr[T any](v T) *T { return &v }

func stamp(t *testing.T, value string) *time.Time {
	t.Helper()
	v, err := time.Parse("2006-01-02T15:04", value)
	require.NoError(t, err)
	return &v
}

// recordingCache is an in-memory PlanCache that counts invalidations. beforeSet,
// when set, runs after the caller built its plan and before the write.
type recordingCache struct {
	plans         map[string]*planner.Plan
	generations   map[uuid.UUID]int64
	invalidations int
	beforeSet     func()
}

func newRecordingCache() *recordingCache {
	return &recordingCache{plans: map[string]*planner.Plan{}, generations: map[uuid.UUID]int64{}}
}

func (c *recordingCache) key(userID uuid.UUID, generation int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", userID, generation, key)
}

func (c *recordingCache) Get(_ context.Context, userID uuid.UUID, key string) (cache.Entry, error) {
	gen := c.generations[userID]
	return cache.Entry{Plan: c.plans[c.key(userID, gen, key)], Generation: gen}, nil
}

func (c *recordingCache) Set(_ context.Context, userID uuid.UUID, generation int64, key string, plan *planner.Plan) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.plans[c.key(userID, generation, key)] = plan
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.invalidations++
	c.generations[userID]++
	return nil
}

func titles(occs []planner.Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, occ := range occs {
		out = append(out, occ.Task.Title)
	}
	return out
}

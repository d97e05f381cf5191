package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nidhi752/pacepilot-os/internal/planner"
)

// PlanCache stores computed daily plans. Invalidate drops every plan of a user.
//
// Get reports the user's current generation even on a miss. Set writes under
// the generation it is given, so a plan computed before an Invalidate lands
// in a generation nobody reads any more.
type PlanCache interface {
	Get(ctx context.Context, userID uuid.UUID, key string) (Entry, error)
	Set(ctx context.Context, userID uuid.UUID, generation int64, key string, plan *planner.Plan) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Entry is the result of a cache lookup.
type Entry struct {
	Plan       *planner.Plan
	Generation int64
}

func (e Entry) Hit() bool { return e.Plan != nil }

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, uuid.UUID, string) (Entry, error)              { return Entry{}, nil }
func (Nop) Set(context.Context, uuid.UUID, int64, string, *planner.Plan) error { return nil }
func (Nop) Invalidate(context.Context, uuid.UUID) error                        { return nil }

// Redis keeps plans under a per-user generation number; bumping the generation
// invalidates all of the user's plans without scanning keys.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, ttl), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func generationKey(userID uuid.UUID) string {
	return "pacepilot:plan:gen:" + userID.String()
}

func planKey(userID uuid.UUID, generation int64, key string) string {
	return fmt.Sprintf("pacepilot:plan:%s:%d:%s", userID, generation, key)
}

func (r *Redis) generation(ctx context.Context, userID uuid.UUID) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *Redis) Get(ctx context.Context, userID uuid.UUID, key string) (Entry, error) {
	gen, err := r.generation(ctx, userID)
	if err != nil {
		return Entry{}, fmt.Errorf("read plan generation: %w", err)
	}
	raw, err := r.client.Get(ctx, planKey(userID, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{Generation: gen}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read cached plan: %w", err)
	}
	var plan planner.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return Entry{}, fmt.Errorf("decode cached plan: %w", err)
	}
	return Entry{Plan: &plan, Generation: gen}, nil
}

func (r *Redis) Set(ctx context.Context, userID uuid.UUID, generation int64, key string, plan *planner.Plan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := r.client.Set(ctx, planKey(userID, generation, key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("write cached plan: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Incr(ctx, generationKey(userID)).Err(); err != nil {
		return fmt.Errorf("bump plan generation: %w", err)
	}
	return nil
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nidhi752/pacepilot-os/internal/logger"
	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/planner"
	"github.com/nidhi752/pacepilot-os/internal/repository"
	"github.com/nidhi752/pacepilot-os/internal/repository/repotest"
	"github.com/nidhi752/pacepilot-os/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestRouterOn(t, repotest.DB(t))
}

func newTestRouterOn(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repos := repository.New(db)
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	plans := service.NewPlannerService(repos, logger.Nop(), time.UTC, service.WithClock(func() time.Time { return now }))
	tasks := service.NewTaskService(repos, nil, logger.Nop(), time.UTC)
	return NewRouter(logger.Nop(), NewHandler(logger.Nop(), plans, tasks))
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestRouter(t), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestPlanAndCompleteFlow(t *testing.T) {
	r := newTestRouter(t)
	user := uuid.New()
	base := "/api/users/" + user.String()

	w := do(t, r, http.MethodPost, base+"/tasks", map[string]any{
		"title": "Flashcards", "rrule": "FREQ=DAILY", "estimated_minutes": 20,
		"priority": 3, "due_at": "2024-03-01 19:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decode[model.Task](t, w)

	w = do(t, r, http.MethodPost, base+"/tasks", map[string]any{"title": "Essay", "estimated_minutes": 90, "due_at": "2024-03-04"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, base+"/plan?date=2024-03-04&budget=60", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plan := decode[planner.Plan](t, w)
	require.Len(t, plan.Scheduled, 1)
	assert.Equal(t, "Flashcards", plan.Scheduled[0].Task.Title)
	require.Len(t, plan.Deferred, 1)
	assert.Equal(t, 40.0, plan.RemainingMinutes)

	w = do(t, r, http.MethodPost, base+"/completions", map[string]any{
		"task_id": task.ID, "occurrence_date": "2024-03-04", "actual_minutes": 25,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plan = decode[planner.Plan](t, w)
	require.Len(t, plan.Scheduled, 1, "the refreshed plan uses the profile budget")
	assert.Equal(t, "Essay", plan.Scheduled[0].Task.Title)

	w = do(t, r, http.MethodGet, base+"/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Tasks []model.Task `json:"tasks"`
	}](t, w)
	assert.Len(t, listed.Tasks, 2)

	w = do(t, r, http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[service.StudyStats](t, w)
	assert.Equal(t, int64(1), stats.Count)
	assert.Equal(t, 25.0, stats.TotalActual)
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t)
	base := "/api/users/" + uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		field  string
	}{
		{name: "bad user id", method: http.MethodGet, path: "/api/users/nope/plan", status: http.StatusBadRequest, field: "user_id"},
		{name: "bad date", method: http.MethodGet, path: base + "/plan?date=tomorrow", status: http.StatusBadRequest, field: "date"},
		{name: "bad budget", method: http.MethodGet, path: base + "/plan?budget=lots", status: http.StatusBadRequest, field: "budget_minutes"},
		{name: "negative budget", method: http.MethodGet, path: base + "/plan?budget=-5", status: http.StatusBadRequest, field: "budget_minutes"},
		{name: "missing body fields", method: http.MethodPost, path: base + "/completions", body: map[string]any{}, status: http.StatusBadRequest},
		{
			name: "unknown task", method: http.MethodPost, path: base + "/completions",
			body:   map[string]any{"task_id": uuid.NewString(), "occurrence_date": "2024-03-04", "actual_minutes": 5},
			status: http.StatusNotFound,
		},
		{
			name: "negative minutes", method: http.MethodPost, path: base + "/completions",
			body:   map[string]any{"task_id": uuid.NewString(), "occurrence_date": "2024-03-04", "actual_minutes": -5},
			status: http.StatusBadRequest, field: "actual_minutes",
		},
		{name: "blank title", method: http.MethodPost, path: base + "/tasks", body: map[string]any{"title": ""}, status: http.StatusBadRequest, field: "title"},
		{
			name: "bad rule", method: http.MethodPost, path: base + "/tasks",
			body:   map[string]any{"title": "x", "rrule": "FREQ=DAILY;BYDAY=XX", "due_at": "2024-03-04"},
			status: http.StatusUnprocessableEntity, field: "BYDAY",
		},
		{name: "cancel unknown", method: http.MethodDelete, path: base + "/tasks/" + uuid.NewString(), status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			env := decode[ErrorEnvelope](t, w)
			assert.NotEmpty(t, env.Error.Message)
			assert.Equal(t, tt.field, env.Error.Field)
		})
	}
}

func TestCompletionConflict(t *testing.T) {
	db := repotest.DB(t)
	r := newTestRouterOn(t, db)
	base := "/api/users/" + uuid.NewString()

	w := do(t, r, http.MethodPost, base+"/tasks", map[string]any{"title": "Essay", "estimated_minutes": 30, "due_at": "2024-03-04"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decode[model.Task](t, w)

	repotest.ConflictProfileSaves(t, db, -1)
	w = do(t, r, http.MethodPost, base+"/completions", map[string]any{
		"task_id": task.ID, "occurrence_date": "2024-03-04", "actual_minutes": 25,
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	env := decode[ErrorEnvelope](t, w)
	assert.Equal(t, "conflict", env.Error.Code)

	w = do(t, r, http.MethodGet, base+"/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	listed := decode[struct {
		Tasks []model.Task `json:"tasks"`
	}](t, w)
	require.Len(t, listed.Tasks, 1)
	assert.Equal(t, model.StatusPending, listed.Tasks[0].Status, "the failed completion rolled back")
}

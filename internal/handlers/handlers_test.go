package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metricboard/notifier/internal/auth"
	"github.com/metricboard/notifier/internal/engine"
	"github.com/metricboard/notifier/internal/models"
	"github.com/metricboard/notifier/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func init() { gin.SetMode(gin.TestMode) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeRunner struct {
	err   error
	at    time.Time
	calls int
	// backfill is set when the run came through RunAt directly.
	backfill bool
}

func (f *fakeRunner) Run(ctx context.Context) (*engine.Result, error) {
	res, err := f.RunAt(ctx, time.Date(2024, time.May, 20, 10, 0, 0, 0, time.UTC))
	f.backfill = false
	return res, err
}

func (f *fakeRunner) RunAt(_ context.Context, at time.Time) (*engine.Result, error) {
	f.calls++
	f.backfill = true
	f.at = at
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{NotificationsSent: 3, Status: engine.StatusSuccess, Strategy: engine.Strategy, ProcessedAt: at}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.NewSQLite(":memory:", quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newRouter(t *testing.T, runner Runner, v *auth.Verifier) (*gin.Engine, *store.DB) {
	db := newTestDB(t)
	return NewRouter(Deps{
		DB:           db.DB,
		Health:       fakePinger{},
		Engine:       runner,
		Verifier:     v,
		TriggerRoles: []string{"service_role"},
		Logger:       quietLogger(),
	}), db
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type triggerResponse struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error"`
	Timestamp string         `json:"timestamp"`
	Result    map[string]any `json:"result"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) triggerResponse {
	t.Helper()
	var out triggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTriggerRunsEngine(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Manager{ID: "a", UserID: ptr("u-admin"), Role: models.RoleAdmin, IsActive: true}).Error)
	require.NoError(t, db.Create(&models.MetricDefinition{ID: "m1", Name: "Visitas", Frequency: models.FrequencyDaily, IsActive: true}).Error)
	eng := engine.New(engine.Options{DB: db.DB, Logger: quietLogger()})
	r := NewRouter(Deps{DB: db.DB, Health: db, Engine: eng, Logger: quietLogger()})

	w := serve(r, http.MethodPost, "/functions/v1/automatic-notifications", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	out := decode(t, w)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.Timestamp)
	assert.Equal(t, "success", out.Result["status"])
	assert.Equal(t, "expanded_frequency_notifications", out.Result["strategy"])
	assert.EqualValues(t, 1, out.Result["metrics_without_targets"])
	assert.EqualValues(t, 1, out.Result["notifications_sent"])
	for _, k := range []string{"achievements_found", "pending_justifications", "overdue_missed_count", "processed_at"} {
		assert.Contains(t, out.Result, k)
	}
}

func TestTriggerReferenceTime(t *testing.T) {
	runner := &fakeRunner{}
	r, _ := newRouter(t, runner, nil)
	w := serve(r, http.MethodPost, "/api/v1/automatic-notifications", `{"reference_time":"2024-03-24T09:00:00-03:00"}`,
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, runner.backfill)
	assert.True(t, runner.at.Equal(time.Date(2024, time.March, 24, 12, 0, 0, 0, time.UTC)))
}

func TestTriggerMalformedReferenceTime(t *testing.T) {
	runner := &fakeRunner{}
	r, _ := newRouter(t, runner, nil)
	w := serve(r, http.MethodPost, "/api/v1/automatic-notifications", `{"reference_time":"yesterday"}`,
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decode(t, w).Success)
	assert.Zero(t, runner.calls)
}

func TestTriggerIgnoresNonJSONBody(t *testing.T) {
	for _, tc := range []struct {
		name, body, contentType string
	}{
		{"plain text", "ping", "text/plain"},
		{"no content type", `{"reference_time":"yesterday"}`, ""},
		{"form", "reference_time=2024-01-01", "application/x-www-form-urlencoded"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			r, _ := newRouter(t, runner, nil)
			header := map[string]string{}
			if tc.contentType != "" {
				header["Content-Type"] = tc.contentType
			}
			w := serve(r, http.MethodPost, "/functions/v1/automatic-notifications", tc.body, header)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.True(t, decode(t, w).Success)
			assert.Equal(t, 1, runner.calls)
			assert.False(t, runner.backfill)
		})
	}
}

func TestTriggerFailure(t *testing.T) {
	r, _ := newRouter(t, &fakeRunner{err: errors.New("goal audit: connection refused")}, nil)
	w := serve(r, http.MethodPost, "/functions/v1/automatic-notifications", "", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.False(t, out.Success)
	assert.Equal(t, "goal audit: connection refused", out.Error)
	assert.NotEmpty(t, out.Timestamp)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	r, _ := newRouter(t, &fakeRunner{}, nil)
	w := serve(r, http.MethodOptions, "/functions/v1/automatic-notifications", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, corsAllowHeaders, w.Header().Get("Access-Control-Allow-Headers"))
}

func TestTriggerRequiresServiceRole(t *testing.T) {
	v := auth.NewVerifier("s3cret")
	runner := &fakeRunner{}
	r, _ := newRouter(t, runner, v)

	w := serve(r, http.MethodPost, "/functions/v1/automatic-notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	user, err := v.IssueToken("u1", "authenticated", time.Minute)
	require.NoError(t, err)
	w = serve(r, http.MethodPost, "/functions/v1/automatic-notifications", "", map[string]string{"Authorization": "Bearer " + user})
	assert.Equal(t, http.StatusForbidden, w.Code)

	svc, err := v.IssueToken("scheduler", "service_role", time.Minute)
	require.NoError(t, err)
	w = serve(r, http.MethodPost, "/functions/v1/automatic-notifications", "", map[string]string{"Authorization": "Bearer " + svc})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	r := NewRouter(Deps{Health: fakePinger{}, Engine: &fakeRunner{}, Logger: quietLogger()})
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "", nil).Code)

	r = NewRouter(Deps{Health: fakePinger{err: errors.New("down")}, Engine: &fakeRunner{}, Logger: quietLogger()})
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/health", "", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newRouter(t, &fakeRunner{}, nil)
	w := serve(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notifier_runs_total")
}

func ptr[T any](v T) *T { return &v }

func seedGoals(t *testing.T, db *store.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.Department{ID: "d1", Name: "Vendas"}).Error)
	require.NoError(t, db.Create(&models.MetricDefinition{ID: "m1", Name: "Receita", DepartmentID: ptr("d1"), Frequency: models.FrequencyMonthly, Target: ptr(100.0), IsActive: true}).Error)
	require.NoError(t, db.Create(&models.MetricDefinition{ID: "m2", Name: "Defeitos", Frequency: models.FrequencyWeekly, Target: ptr(10.0), LowerIsBetter: true, IsActive: true}).Error)
	require.NoError(t, db.Create(&models.MetricValue{ID: "v1", MetricsDefinitionID: "m1", Value: 120, Date: time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)}).Error)
}

func TestGoalsReportCSV(t *testing.T) {
	r, db := newRouter(t, &fakeRunner{}, nil)
	seedGoals(t, db)

	w := serve(r, http.MethodGet, "/api/v1/reports/goals?format=csv", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(goalHeaders, ","), lines[0])
	assert.Equal(t, "m2,Defeitos,,weekly,10,lower_is_better,,,false", lines[1])
	assert.Equal(t, "m1,Receita,Vendas,monthly,100,higher_is_better,120,2024-05-10,true", lines[2])
}

func TestGoalsReportExcel(t *testing.T) {
	r, db := newRouter(t, &fakeRunner{}, nil)
	seedGoals(t, db)

	w := serve(r, http.MethodGet, "/api/v1/reports/goals?format=xlsx", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Metas")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "metric_id", rows[0][0])
	assert.Equal(t, "Receita", rows[2][1])
	assert.Equal(t, "Vendas", rows[2][2])
}

func TestGoalsReportJSON(t *testing.T) {
	r, db := newRouter(t, &fakeRunner{}, nil)
	seedGoals(t, db)

	w := serve(r, http.MethodGet, "/api/v1/reports/goals", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Data []goalRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Data, 2)
	assert.Nil(t, out.Data[0].LatestValue)
	assert.True(t, out.Data[1].Achieved)
}

func TestStreamRequiresUser(t *testing.T) {
	db := newTestDB(t)
	r := NewRouter(Deps{DB: db.DB, Health: db, Engine: &fakeRunner{}, Hub: nil, Logger: quietLogger()})
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/notifications/stream", "", nil).Code)
}

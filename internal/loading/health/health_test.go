package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/storage/memory"
)

// =============================================================================
// Helpers
// =============================================================================

type countingTrigger struct {
	calls atomic.Int32
	ctx   context.Context
	err   error
}

func (c *countingTrigger) Trigger(ctx context.Context) error {
	c.calls.Add(1)
	c.ctx = ctx
	return c.err
}

func finishedSummary(id string, state domain.RunState, failed int) *domain.RunSummary {
	s := domain.NewRunSummary(id, time.Now())
	s.State = state
	s.InitializationRan = state == domain.RunStateCompleted
	for i := 0; i < 3; i++ {
		status := domain.OutcomeSucceeded
		if i < failed {
			status = domain.OutcomeFailed
		}
		s.Outcomes = append(s.Outcomes, domain.LoadOutcome{Index: i, ResourceID: "file", Status: status})
	}
	s.Tally()
	s.FinishedAt = time.Now()
	return s
}

// =============================================================================
// Monitor
// =============================================================================

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		rec  *domain.Record
		want SystemStatus
	}{
		{"no run yet", nil, StatusHealthy},
		{"clean run", &domain.Record{State: domain.RunStateCompleted, InitializationRan: true}, StatusHealthy},
		{"partial failure", &domain.Record{State: domain.RunStateCompleted, Failed: 2, InitializationRan: true}, StatusDegraded},
		{"init skipped", &domain.Record{State: domain.RunStateCompleted, Failed: 1}, StatusDegraded},
		{"manifest failed", &domain.Record{State: domain.RunStateManifestFailed}, StatusCritical},
		{"aborted", &domain.Record{State: domain.RunStateAborted}, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.rec); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMonitor_ObserveAndChecks(t *testing.T) {
	m := NewMonitor()

	var statuses []SystemStatus
	m.OnStatusChange(func(s SystemStatus) { statuses = append(statuses, s) })

	summary := finishedSummary("run-1", domain.RunStateCompleted, 1)
	m.RunStarted(summary)
	require.EqualValues(t, 1, m.CheckHealth(context.Background()).RunsInFlight)

	m.Observe(summary)
	report := m.CheckHealth(context.Background())
	require.Equal(t, StatusDegraded, report.SystemStatus)
	require.EqualValues(t, 0, report.RunsInFlight)
	require.EqualValues(t, 1, report.RunsTotal)
	require.Equal(t, "run-1", report.LastRun.ID)
	require.Equal(t, []SystemStatus{StatusDegraded}, statuses)

	m.AddCheck("storage", func(ctx context.Context) error { return errors.New("connection refused") })
	report = m.CheckHealth(context.Background())
	require.Equal(t, StatusCritical, report.SystemStatus)
	require.Len(t, report.Components, 1)
	require.Equal(t, "connection refused", report.Components[0].Error)
}

// =============================================================================
// HTTP
// =============================================================================

func newTestServer(t *testing.T) (*Server, *Monitor, *memory.RunRepo, *countingTrigger) {
	t.Helper()
	m := NewMonitor()
	repo := memory.NewRunRepo()
	trig := &countingTrigger{}
	return NewServer(context.Background(), m, repo, trig, 0, nil), m, repo, trig
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s, m, _, _ := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	m.Observe(finishedSummary("bad", domain.RunStateManifestFailed, 0))
	rec = do(t, s.Handler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/health/detailed")
	require.Equal(t, http.StatusOK, rec.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, StatusCritical, report.SystemStatus)
	require.Equal(t, "bad", report.LastRun.ID)
}

func TestServer_TriggerReturnsAccepted(t *testing.T) {
	s, _, _, trig := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, "/runs")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.EqualValues(t, 1, trig.calls.Load())
	require.Equal(t, context.Background(), trig.ctx)
}

func TestServer_TriggerRejectedWhileDraining(t *testing.T) {
	s, _, _, trig := newTestServer(t)
	trig.err = errors.New("orchestrator is draining")

	rec := do(t, s.Handler(), http.MethodPost, "/runs")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.EqualValues(t, 1, trig.calls.Load())
}

func TestServer_RunHistory(t *testing.T) {
	s, _, repo, _ := newTestServer(t)
	ctx := context.Background()

	older := finishedSummary("older", domain.RunStateCompleted, 0)
	older.StartedAt = older.StartedAt.Add(-time.Minute)
	require.NoError(t, repo.Save(ctx, older.Record()))
	require.NoError(t, repo.Save(ctx, finishedSummary("newer", domain.RunStateCompleted, 2).Record()))

	rec := do(t, s.Handler(), http.MethodGet, "/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, "newer", list[0].ID)

	rec = do(t, s.Handler(), http.MethodGet, "/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"id":"newer"`))

	rec = do(t, s.Handler(), http.MethodGet, "/runs/older")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/runs/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/runs?limit=zero")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// gRPC
// =============================================================================

func TestGRPCServer_ReflectsLastRun(t *testing.T) {
	m := NewMonitor()
	g := NewGRPCServer(m, 0, nil)

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := healthpb.NewHealthClient(conn)
	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	m.Observe(finishedSummary("bad", domain.RunStateInitializationFailed, 0))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	m.Observe(finishedSummary("good", domain.RunStateCompleted, 0))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
}

package health_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/triggerd/internal/health"
	"github.com/prometheus/client_golang/prometheus"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestChecker(deps ...health.Dependency) (*health.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	logger := slog.Default()
	return health.NewChecker(deps, logger, reg), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(health.Dependency{Name: "store", Pinger: &mockPinger{err: errors.New("db down")}})

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_AllUp(t *testing.T) {
	c, reg := newTestChecker(
		health.Dependency{Name: "store", Pinger: &mockPinger{}},
		health.Dependency{Name: "redis", Pinger: health.PingerFunc(func(context.Context) error { return nil })},
	)

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	for _, name := range []string{"store", "redis"} {
		check, ok := result.Checks[name]
		if !ok {
			t.Fatalf("missing %s check", name)
		}
		if check.Status != "up" {
			t.Fatalf("expected %s up, got %s", name, check.Status)
		}
		if gauge := testGauge(t, reg, "triggerd_health_check_up", name); gauge != 1 {
			t.Fatalf("expected %s gauge 1, got %f", name, gauge)
		}
	}
}

func TestReadiness_OneDependencyDown(t *testing.T) {
	c, reg := newTestChecker(
		health.Dependency{Name: "store", Pinger: &mockPinger{}},
		health.Dependency{Name: "redis", Pinger: &mockPinger{err: errors.New("connection refused")}},
	)

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down, got %s", result.Status)
	}
	redis := result.Checks["redis"]
	if redis.Status != "down" {
		t.Fatalf("expected redis down, got %s", redis.Status)
	}
	if redis.Error == "" {
		t.Fatal("expected error message")
	}
	if result.Checks["store"].Status != "up" {
		t.Fatal("expected store up")
	}

	if gauge := testGauge(t, reg, "triggerd_health_check_up", "redis"); gauge != 0 {
		t.Fatalf("expected gauge 0, got %f", gauge)
	}
}

func TestReadinessHandler_StatusCodes(t *testing.T) {
	up, _ := newTestChecker(health.Dependency{Name: "store", Pinger: &mockPinger{}})
	down, _ := newTestChecker(health.Dependency{Name: "store", Pinger: &mockPinger{err: errors.New("x")}})

	for _, tc := range []struct {
		checker *health.Checker
		want    int
	}{
		{up, http.StatusOK},
		{down, http.StatusServiceUnavailable},
	} {
		w := httptest.NewRecorder()
		tc.checker.ReadinessHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if w.Code != tc.want {
			t.Fatalf("expected %d, got %d", tc.want, w.Code)
		}
	}
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, depLabel string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "dependency" && lp.GetValue() == depLabel {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{dependency=%q} not found", name, depLabel)
	return 0
}

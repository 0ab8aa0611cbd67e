package httptransport_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/action"
	"github.com/ErlanBelekov/triggerd/internal/health"
	"github.com/ErlanBelekov/triggerd/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/triggerd/internal/schedule"
	httptransport "github.com/ErlanBelekov/triggerd/internal/transport/http"
	"github.com/ErlanBelekov/triggerd/internal/transport/http/handler"
	"github.com/ErlanBelekov/triggerd/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "router-test-secret-that-is-32-chars"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := action.NewRegistry(time.Second, logger)
	registry.Register("log", action.NewLogHandler(logger))

	uc := usecase.NewTriggerUsecase(sqlite.NewTriggerRepository(db, logger), schedule.NewEvaluator(schedule.IntervalAdvance), registry)
	checker := health.NewChecker([]health.Dependency{{Name: "store", Pinger: health.PingerFunc(db.PingContext)}}, logger, prometheus.NewRegistry())

	return httptransport.NewRouter(logger, handler.NewTriggerHandler(uc, logger), checker, []byte(testKey))
}

func TestRouter_ProbesAreOpen(t *testing.T) {
	r := newRouter(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_TriggersRequireToken(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/triggers", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := usecase.NewAuthUsecase([]byte(testKey)).IssueToken("ops", time.Hour)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/triggers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

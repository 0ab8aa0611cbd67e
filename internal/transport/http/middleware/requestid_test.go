package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/triggerd/internal/logctx"
	"github.com/ErlanBelekov/triggerd/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

func newRequestIDEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Security())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logctx.RequestID(c.Request.Context()))
	})
	return r
}

func TestRequestID_PreservesIncoming(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	newRequestIDEngine().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("header = %q, want abc-123", got)
	}
	if w.Body.String() != "abc-123" {
		t.Errorf("context id = %q, want abc-123", w.Body.String())
	}
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	w := httptest.NewRecorder()
	newRequestIDEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get("X-Request-ID")
	if len(id) != 36 {
		t.Errorf("generated id = %q, want a UUID", id)
	}
	if w.Body.String() != id {
		t.Errorf("context id = %q, header %q", w.Body.String(), id)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("missing Cache-Control: no-store")
	}
}

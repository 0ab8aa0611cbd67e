package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/triggerd/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("middleware-test-secret-32-chars!!")

func init() {
	gin.SetMode(gin.TestMode)
}

// protectedEngine echoes the subject Auth stored so tests can assert on it.
func protectedEngine() *gin.Engine {
	r := gin.New()
	r.GET("/triggers", middleware.Auth(testKey), func(c *gin.Context) {
		c.String(http.StatusOK, "%v", c.GetString(middleware.SubjectKey))
	})
	return r
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return s
}

func TestAuth_Rejects(t *testing.T) {
	now := time.Now()
	valid := func(sub string) jwt.MapClaims {
		return jwt.MapClaims{"sub": sub, "exp": now.Add(time.Hour).Unix()}
	}

	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"no header", func(*testing.T) string { return "" }},
		{"basic scheme", func(*testing.T) string { return "Basic dXNlcjpwYXNz" }},
		{"garbage token", func(*testing.T) string { return "Bearer not.a.jwt" }},
		{"expired", func(t *testing.T) string {
			return "Bearer " + sign(t, jwt.SigningMethodHS256, testKey, jwt.MapClaims{"sub": "ops", "exp": now.Add(-time.Hour).Unix()})
		}},
		{"no expiry", func(t *testing.T) string {
			return "Bearer " + sign(t, jwt.SigningMethodHS256, testKey, jwt.MapClaims{"sub": "ops"})
		}},
		{"wrong key", func(t *testing.T) string {
			return "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("different-key-that-is-32-chars!!"), valid("ops"))
		}},
		{"hs512 not accepted", func(t *testing.T) string {
			return "Bearer " + sign(t, jwt.SigningMethodHS512, testKey, valid("ops"))
		}},
		{"alg none", func(t *testing.T) string {
			return "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid("ops"))
		}},
		{"empty subject", func(t *testing.T) string {
			return "Bearer " + sign(t, jwt.SigningMethodHS256, testKey, valid(""))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/triggers", nil)
			if h := tt.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			w := httptest.NewRecorder()
			protectedEngine().ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestAuth_ValidTokenSetsSubject(t *testing.T) {
	tok := sign(t, jwt.SigningMethodHS256, testKey, jwt.MapClaims{
		"sub": "ops-bot",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/triggers", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	protectedEngine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "ops-bot" {
		t.Errorf("subject = %q, want ops-bot", got)
	}
}

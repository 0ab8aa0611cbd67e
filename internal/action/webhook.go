package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type WebhookPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"` // nil means no body
}

type WebhookConfig struct {
	// RatePerSecond caps outgoing requests across all hosts; zero disables it.
	RatePerSecond float64
	Burst         int
	// BreakerFailures consecutive failures open the per-host breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type Webhook struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     WebhookConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var errServerStatus = errors.New("server error status")

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = time.Minute
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RatePerSecond))
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Webhook{
		client:   &http.Client{}, // the registry bounds each call through ctx
		limiter:  limiter,
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (w *Webhook) Execute(ctx context.Context, raw json.RawMessage) Outcome {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Failure("decode webhook payload: %v", err)
	}
	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Failure("invalid webhook url %q", p.URL)
	}
	if p.Method == "" {
		p.Method = http.MethodPost
	}

	if w.limiter != nil && !w.limiter.Allow() {
		return RetrySoon("webhook rate limit exceeded")
	}

	var status int
	_, err = w.breaker(u.Host).Execute(func() (any, error) {
		var doErr error
		status, doErr = w.do(ctx, p)
		if doErr != nil {
			return nil, doErr
		}
		if status >= 500 {
			return nil, errServerStatus
		}
		return nil, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return RetrySoon("circuit open for %s", u.Host)
	case errors.Is(err, errServerStatus):
		return RetrySoon("unexpected status code: %d", status)
	case err != nil:
		return RetrySoon("%v", err)
	case status >= 200 && status < 300:
		return Success()
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return RetrySoon("unexpected status code: %d", status)
	default:
		return Failure("unexpected status code: %d", status)
	}
}

func (w *Webhook) do(ctx context.Context, p WebhookPayload) (int, error) {
	var body io.Reader
	if p.Body != nil {
		body = strings.NewReader(*p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if f, ok := FiringFromContext(ctx); ok {
		req.Header.Set("Idempotency-Key", f.Key())
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused by the pool

	return resp.StatusCode, nil
}

func (w *Webhook) breaker(host string) *gobreaker.CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()

	cb, ok := w.breakers[host]
	if !ok {
		threshold := w.cfg.BreakerFailures
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: 1,
			Timeout:     w.cfg.BreakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
		})
		w.breakers[host] = cb
	}
	return cb
}

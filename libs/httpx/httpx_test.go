package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mw("a"), nil, mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("expected a,b got %v", order)
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "abc-123" || rw.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected inbound id propagated, got ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Fatalf("expected generated id, got %q", seen)
	}
}

func TestMemoryLimiter(t *testing.T) {
	rl := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow(ctx, "k"); !ok {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	if ok, _ := rl.Allow(ctx, "k"); ok {
		t.Fatal("third hit should be limited")
	}
	if ok, _ := rl.Allow(ctx, "other"); !ok {
		t.Fatal("other key should have its own bucket")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, _ := rl.Allow(ctx, "k"); !ok {
		t.Fatal("bucket should reset after window")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_FailOpenAndClosed(t *testing.T) {
	open := RateLimit(failingLimiter{}, nil, discardLogger(), true)(okHandler())
	rw := httptest.NewRecorder()
	open.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("fail-open: expected 200, got %d", rw.Code)
	}

	closed := RateLimit(failingLimiter{}, nil, discardLogger(), false)(okHandler())
	rw = httptest.NewRecorder()
	closed.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed: expected 503, got %d", rw.Code)
	}
}

func TestRateLimit_TooManyRequests(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(1, time.Minute), ClientKey, discardLogger(), false)(okHandler())
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		if rw.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rw.Code)
		}
	}
}

// countingScripter stands in for Redis by counting EVALSHA calls per key.
type countingScripter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *countingScripter) incr(ctx context.Context, keys []string) *redis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[keys[0]]++
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(s.counts[keys[0]])
	return cmd
}

func (s *countingScripter) Eval(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.incr(ctx, keys)
}

func (s *countingScripter) EvalSha(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.incr(ctx, keys)
}

func (s *countingScripter) EvalRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.incr(ctx, keys)
}

func (s *countingScripter) EvalShaRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.incr(ctx, keys)
}

func (s *countingScripter) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceCmd(ctx)
}

func (s *countingScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	return redis.NewStringCmd(ctx)
}

func TestRedisLimiter(t *testing.T) {
	sc := &countingScripter{counts: map[string]int64{}}
	rl := NewRedisLimiter(sc, 2, time.Minute, "test")
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := rl.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if ok != want {
			t.Fatalf("hit %d: expected %v, got %v", i, want, ok)
		}
	}
	if sc.counts["test:user-1"] != 3 {
		t.Fatalf("expected prefixed key to be counted, got %v", sc.counts)
	}
}

func TestWithCORS(t *testing.T) {
	h := WithCORS(DefaultCORSPolicy([]string{"https://app.himsog.ph"}))(okHandler())

	pre := httptest.NewRequest(http.MethodOptions, "/v1/appointments", nil)
	pre.Header.Set("Origin", "https://app.himsog.ph")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, pre)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://app.himsog.ph" {
		t.Fatalf("unexpected allow-origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.Header.Set("Origin", "https://evil.example")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, other)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header for disallowed origin")
	}
}

func TestWithRecover(t *testing.T) {
	h := WithRecover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), `"success":false`) {
		t.Fatalf("expected error envelope, got %s", rw.Body.String())
	}
}

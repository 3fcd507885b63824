package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSPolicy allows the scheduling API's methods and headers for origins.
func DefaultCORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader, "Idempotency-Key"},
		MaxAge:         10 * time.Minute,
	}
}

type corsHeaders struct {
	origins     []string
	wildcard    bool
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

func (c corsHeaders) allowOrigin(origin string) (string, bool) {
	if c.wildcard {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	for _, o := range c.origins {
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	return "", false
}

// WithCORS adds CORS handling. With no allowed origins it is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := SplitTrimmed(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	ch := corsHeaders{
		origins:     origins,
		methods:     strings.Join(SplitTrimmed(cfg.AllowedMethods), ", "),
		headers:     strings.Join(SplitTrimmed(cfg.AllowedHeaders), ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range origins {
		if o == "*" {
			ch.wildcard = true
		}
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		ch.maxAge = strconv.Itoa(secs)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := ch.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			if ch.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if ch.methods != "" {
				h.Set("Access-Control-Allow-Methods", ch.methods)
			}
			if ch.headers != "" {
				h.Set("Access-Control-Allow-Headers", ch.headers)
			}
			if ch.maxAge != "" {
				h.Set("Access-Control-Max-Age", ch.maxAge)
			}
			h.Add("Vary", "Origin")

			// Preflight never reaches the router.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SplitTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

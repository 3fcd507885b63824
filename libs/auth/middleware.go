package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/himsog/himsog/libs/httpx"
)

// Identity is the verified caller, as seen by request handlers.
type Identity struct {
	Subject    string
	Role       string
	ProviderID string
}

type ctxKey struct{}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v *Verifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid Authorization header")
				return
			}
			claims, err := v.Verify(r.Context(), raw)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}
			ctx := ContextWithIdentity(r.Context(), Identity{
				Subject:    claims.Subject,
				Role:       strings.ToUpper(strings.TrimSpace(claims.Role)),
				ProviderID: claims.ProviderID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) httpx.Middleware {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[strings.ToUpper(r)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				httpx.WriteError(w, http.StatusForbidden, "Forbidden", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectKey buckets rate limits by user when authenticated, else by client address.
func SubjectKey(r *http.Request) string {
	if id, ok := IdentityFromContext(r.Context()); ok && id.Subject != "" {
		return "user:" + id.Subject
	}
	return "ip:" + httpx.ClientKey(r)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

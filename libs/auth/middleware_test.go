package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequireRole(t *testing.T) {
	h := RequireRole("PROVIDER", "ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), Identity{Subject: "u", Role: "USER"}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	reqOK := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqOK = reqOK.WithContext(ContextWithIdentity(reqOK.Context(), Identity{Subject: "u", Role: "PROVIDER"}))
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, reqOK)
	if rwOK.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rwOK.Code)
	}

	rwAnon := httptest.NewRecorder()
	h.ServeHTTP(rwAnon, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rwAnon.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rwAnon.Code)
	}
}

func TestRequireAuthHS256(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(testClaims("user-1", "provider", "prov-1", time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	h := RequireAuth(NewVerifier(secret, nil, ""))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || id.Subject != "user-1" || id.Role != "PROVIDER" || id.ProviderID != "prov-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}

	rwMissing := httptest.NewRecorder()
	h.ServeHTTP(rwMissing, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rwMissing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rwMissing.Code)
	}
}

func TestSubjectKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := SubjectKey(req); got != "ip:192.0.2.1" {
		t.Fatalf("unexpected anonymous key %q", got)
	}
	req = req.WithContext(ContextWithIdentity(req.Context(), Identity{Subject: "u-9"}))
	if got := SubjectKey(req); got != "user:u-9" {
		t.Fatalf("unexpected authenticated key %q", got)
	}
}

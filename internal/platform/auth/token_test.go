package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestManager(t *testing.T, opts ...TokenManagerOption) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager("unit-test-secret", opts...)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return manager
}

func TestTokenRoundTrip(t *testing.T) {
	manager := newTestManager(t, WithIssuer("cotidiano-api"))

	token, err := manager.Issue(Identity{UID: "usr_1", Email: "ana@example.com", Role: RoleStaff})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	identity, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UID != "usr_1" || identity.Email != "ana@example.com" || identity.Role != RoleStaff {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if !identity.IsStaff() {
		t.Fatal("expected staff identity")
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	clock := now
	manager := newTestManager(t,
		WithTokenTTL(time.Minute),
		WithClock(func() time.Time { return clock }),
	)

	token, err := manager.Issue(Identity{UID: "usr_1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock = now.Add(2 * time.Minute)
	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	manager := newTestManager(t)
	other, err := NewTokenManager("a-different-secret")
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	token, err := other.Issue(Identity{UID: "usr_1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenIssuerMismatch(t *testing.T) {
	issuing := newTestManager(t, WithIssuer("other-service"))
	verifying := newTestManager(t, WithIssuer("cotidiano-api"))

	token, err := issuing.Issue(Identity{UID: "usr_1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifying.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	manager := newTestManager(t)
	middleware := NewAuthenticator(manager).RequireAuth()

	handler := middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireAuthRoleGate(t *testing.T) {
	manager := newTestManager(t)
	token, err := manager.Issue(Identity{UID: "usr_1", Role: RoleCustomer})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var sawIdentity *Identity
	handler := NewAuthenticator(manager).RequireStaff()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		sawIdentity, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("customer should be rejected from staff routes, status = %d", rec.Code)
	}
	if sawIdentity != nil {
		t.Fatal("handler should not have run")
	}
}

func TestRequireAuthPassesIdentity(t *testing.T) {
	manager := newTestManager(t)
	token, err := manager.Issue(Identity{UID: "usr_9", Email: "leo@example.com", Role: RoleCustomer})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var sawIdentity *Identity
	handler := NewAuthenticator(manager).RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if sawIdentity == nil || sawIdentity.UID != "usr_9" {
		t.Fatalf("identity not propagated: %+v", sawIdentity)
	}
}

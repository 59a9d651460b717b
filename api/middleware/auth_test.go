package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/affiliate-ledger/pkg/auth"
	"github.com/angelmondragon/affiliate-ledger/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsAffiliateIdentity(t *testing.T) {
	affiliateID := uuid.New()
	token := mintTestToken(t, auth.RoleAffiliate, &affiliateID)

	var captured struct {
		user      string
		role      string
		affiliate uuid.UUID
	}
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		captured.affiliate = AffiliateIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user == "" {
		t.Fatal("expected user id in context")
	}
	if captured.role != string(auth.RoleAffiliate) {
		t.Fatalf("expected affiliate role got %s", captured.role)
	}
	if captured.affiliate != affiliateID {
		t.Fatalf("expected affiliate %s got %s", affiliateID, captured.affiliate)
	}
}

func TestRequireRole(t *testing.T) {
	adminToken := mintTestToken(t, auth.RoleAdmin, nil)
	affiliateID := uuid.New()
	affiliateToken := mintTestToken(t, auth.RoleAffiliate, &affiliateID)
	handler := Auth(testJWT, nil)(RequireRole(auth.RoleAdmin, nil)(okHandler()))

	for token, want := range map[string]int{adminToken: http.StatusOK, affiliateToken: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != want {
			t.Fatalf("expected %d got %d", want, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, role auth.Role, affiliateID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:      uuid.New(),
		Role:        role,
		AffiliateID: affiliateID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

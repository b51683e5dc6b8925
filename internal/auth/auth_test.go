package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"famfinance/internal/core"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	u := core.User{ID: "u1", FamilyID: "f1", Role: core.RoleAdmin}

	token, exp, err := tm.Issue(u)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if time.Until(exp) <= 59*time.Minute {
		t.Errorf("expiry %v is not one hour ahead", exp)
	}

	id, err := tm.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Identity{UserID: "u1", FamilyID: "f1", Role: core.RoleAdmin}
	if id != want {
		t.Errorf("Parse() = %+v, want %+v", id, want)
	}
	if !id.IsAdmin() {
		t.Errorf("admin role lost")
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	u := core.User{ID: "u1", FamilyID: "f1", Role: core.RoleMember}

	other, _, _ := NewTokenManager("other-secret", time.Hour).Issue(u)

	expiredTM := NewTokenManager("secret", time.Hour)
	expiredTM.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _ := expiredTM.Issue(u)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", other},
		{"expired", expired},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tm.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, core.ErrWeakPassword) {
		t.Fatalf("HashPassword(short) error = %v", err)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Errorf("CheckPassword() rejected the right password")
	}
	if CheckPassword(hash, "battery staple") {
		t.Errorf("CheckPassword() accepted a wrong password")
	}
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, _, _ := tm.Issue(core.User{ID: "u1", FamilyID: "f1", Role: core.RoleMember})

	var got Identity
	h := Middleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, "", http.StatusNoContent},
		{"query parameter", "", "?token=" + token, http.StatusNoContent},
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = Identity{}
			req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNoContent && got.UserID != "u1" {
				t.Errorf("identity not stored: %+v", got)
			}
		})
	}
}

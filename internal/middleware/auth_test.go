package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type fakeValidator struct {
	token string
	id    uuid.UUID
	role  string
}

func (v *fakeValidator) ValidateToken(_ context.Context, token string) (uuid.UUID, string, error) {
	if token != v.token {
		return uuid.Nil, "", errors.New("bad token")
	}
	return v.id, v.role, nil
}

func TestBearerAuth(t *testing.T) {
	validator := &fakeValidator{token: "good-token", id: uuid.New(), role: "judge"}

	var gotID uuid.UUID
	var gotRole string
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotID = AccountIDFromCtx(r.Context())
		gotRole = RoleFromCtx(r.Context())
	})
	handler := BearerAuth(validator)(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantNext   bool
	}{
		{"missing header", "", http.StatusUnauthorized, false},
		{"not bearer", "Basic abc123", http.StatusUnauthorized, false},
		{"invalid token", "Bearer wrong", http.StatusUnauthorized, false},
		{"valid token", "Bearer good-token", http.StatusOK, true},
		{"case insensitive scheme", "bearer good-token", http.StatusOK, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called = false
			gotID, gotRole = uuid.Nil, ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
			if called != tc.wantNext {
				t.Fatalf("next called: got %v, want %v", called, tc.wantNext)
			}
			if tc.wantNext {
				if gotID != validator.id {
					t.Errorf("account id in context: got %s, want %s", gotID, validator.id)
				}
				if gotRole != validator.role {
					t.Errorf("role in context: got %q, want %q", gotRole, validator.role)
				}
			}
		})
	}
}

func TestWithIdentity(t *testing.T) {
	id := uuid.New()
	ctx := WithIdentity(context.Background(), id, "participant")
	if AccountIDFromCtx(ctx) != id {
		t.Fatal("account id not carried in context")
	}
	if RoleFromCtx(ctx) != "participant" {
		t.Fatal("role not carried in context")
	}
	if AccountIDFromCtx(context.Background()) != uuid.Nil {
		t.Fatal("empty context should yield uuid.Nil")
	}
}

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("secret")
	token, err := svc.IssueToken("fair", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	key, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if key != "fair" {
		t.Errorf("key = %q, want fair", key)
	}
}

func TestValidateRejects(t *testing.T) {
	svc := NewService("secret")
	good, _ := svc.IssueToken("fair", time.Hour)
	other, _ := NewService("other").IssueToken("fair", time.Hour)

	past := NewService("secret")
	past.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, _ := past.IssueToken("fair", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", other},
		{"expired", expired},
		{"truncated", good[:len(good)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestIssueRequiresKey(t *testing.T) {
	if _, err := NewService("secret").IssueToken("", time.Hour); err == nil {
		t.Error("IssueToken(\"\") should fail")
	}
}

func TestRequireEdit(t *testing.T) {
	svc := NewService("secret")
	fair, _ := svc.IssueToken("fair", time.Hour)
	winter, _ := svc.IssueToken("winter", time.Hour)

	r := mux.NewRouter()
	r.Handle("/w/{key}", svc.RequireEdit("key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(WorkshopFromContext(r.Context())))
	})))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer", "/w/fair", "Bearer " + fair, http.StatusOK},
		{"query", "/w/fair?token=" + fair, "", http.StatusOK},
		{"missing", "/w/fair", "", http.StatusUnauthorized},
		{"bad scheme", "/w/fair", "Basic " + fair, http.StatusUnauthorized},
		{"invalid", "/w/fair", "Bearer nope", http.StatusUnauthorized},
		{"other workshop", "/w/fair", "Bearer " + winter, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusOK && rec.Body.String() != "fair" {
				t.Errorf("context workshop = %q", rec.Body.String())
			}
		})
	}
}

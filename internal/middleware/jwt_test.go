package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeValidator map[string]string

func (f fakeValidator) ValidateToken(_ context.Context, tok string) (string, error) {
	if u, ok := f[tok]; ok {
		return u, nil
	}
	return "", errors.New("unknown user or bad token")
}

func TestAuthMiddleware(t *testing.T) {
	am := NewAuthMiddleware(fakeValidator{"good": "alice"}, nil)
	h := am.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := Username(r.Context())
		w.Write([]byte(u))
	}))

	tests := []struct {
		name   string
		header string
		query  string
		code   int
	}{
		{"bearer header", "Bearer good", "", http.StatusOK},
		{"query fallback", "", "?token=good", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"lowercase scheme", "bearer good", "", http.StatusOK},
		{"padded token", "Bearer  good ", "", http.StatusOK},
		{"wrong scheme", "Basic good", "", http.StatusUnauthorized},
		{"scheme only", "Bearer", "", http.StatusUnauthorized},
		{"deleted user", "Bearer gone", "", http.StatusUnauthorized},
		{"invalid", "Bearer bad", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/online"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if tt.code == http.StatusOK && rec.Body.String() != "alice" {
				t.Errorf("username in context = %q", rec.Body.String())
			}
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledWhenNoKeys(t *testing.T) {
	h := Auth(nil)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	h := Auth([]string{"key-a", "key-b"})(okHandler())

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"bearer token", "Authorization", "Bearer key-a", http.StatusOK},
		{"second key", "X-API-Key", "key-b", http.StatusOK},
		{"missing token", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "key-c", http.StatusUnauthorized},
		{"wrong scheme", "Authorization", "Basic key-a", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "authentication token")
			}
		})
	}
}

func TestAdminGate(t *testing.T) {
	h := Admin([]string{"admin-key"}, okHandler())

	t.Run("admin key passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/markets", nil)
		req.Header.Set("Authorization", "Bearer admin-key")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("regular key is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/markets", nil)
		req.Header.Set("X-API-Key", "key-a")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "admin credentials required")
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markets", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no admin keys disables gate", func(t *testing.T) {
		open := Admin(nil, okHandler())
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markets", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

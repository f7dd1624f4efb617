package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// TestRouterIntegration_ProtectedRoute_WithMiddlewareChain は
// Session -> RateLimit -> CSRF のチェーンがchi.Routerで正しく動作することを検証する。
func TestRouterIntegration_ProtectedRoute_WithMiddlewareChain(t *testing.T) {
	repo := validSessionRepo("router-test-session", 55)
	csrfConfig := CSRFConfig{}

	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	r := chi.NewRouter()
	r.Get("/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(repo))
		r.Use(rl.GeneralMiddleware())
		r.Use(NewCSRFMiddleware(csrfConfig))

		r.Get("/my_profile", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]int64{"user_id": userID})
		})
		r.Post("/book_course/{id}", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]int64{"user_id": userID})
		})
	})

	sessionCookie := &http.Cookie{Name: SessionCookieName, Value: "router-test-session"}

	t.Run("GET_protected_with_session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/my_profile", nil)
		req.AddCookie(sessionCookie)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var body map[string]int64
		json.NewDecoder(w.Body).Decode(&body)
		if body["user_id"] != 55 {
			t.Errorf("user_id = %d, want 55", body["user_id"])
		}
	})

	t.Run("POST_with_session_and_csrf", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/book_course/3", nil)
		req.AddCookie(sessionCookie)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "test-csrf-token"})
		req.Header.Set(csrfHeaderName, "test-csrf-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("POST_without_csrf_returns_403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/book_course/3", nil)
		req.AddCookie(sessionCookie)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	// セッションチェックはCSRFチェックより先に行われる
	t.Run("POST_without_session_returns_401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/book_course/3", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("CSRF_token_endpoint_no_auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/coursebook/internal/middleware"
	"github.com/hitoshi/coursebook/internal/model"
	"github.com/hitoshi/coursebook/internal/storage"
)

// ImageOpener は保存済み画像を開く。storage.ImageStoreの部分集合。
type ImageOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewImageHandler は講座画像を配信するハンドラーを返す。
// GET /images/{key}
// 生成されたキー形式と既定画像のみを受け付ける。
func NewImageHandler(images ImageOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if key != model.DefaultImageURL && !storage.ValidKey(key) {
			http.NotFound(w, r)
			return
		}

		body, err := images.Open(r.Context(), key)
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			slog.Error("failed to open image",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			middleware.WriteInternalServerError(w)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", storage.ContentTypeFor(key))
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if _, err := io.Copy(w, body); err != nil {
			slog.Warn("failed to write image", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// HealthChecker は依存先の疎通を確認する。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckerFunc は関数をHealthCheckerとして扱うためのアダプター。
type HealthCheckerFunc func(ctx context.Context) error

// Ping はf(ctx)を呼ぶ。
func (f HealthCheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Landing はサービス情報とログイン状態を返す。
// GET /
func Landing(w http.ResponseWriter, r *http.Request) {
	_, err := middleware.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"service":       "coursebook",
		"authenticated": err == nil,
		"links": map[string]string{
			"register":  "/register",
			"login":     "/login",
			"dashboard": "/dashboard",
		},
	})
}

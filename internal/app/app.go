// Package app はコマンドライン引数に応じてサーバー・ワーカー・マイグレーションを起動する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/coursebook/internal/auth"
	"github.com/hitoshi/coursebook/internal/booking"
	"github.com/hitoshi/coursebook/internal/config"
	"github.com/hitoshi/coursebook/internal/course"
	"github.com/hitoshi/coursebook/internal/database"
	"github.com/hitoshi/coursebook/internal/handler"
	"github.com/hitoshi/coursebook/internal/logger"
	"github.com/hitoshi/coursebook/internal/metrics"
	"github.com/hitoshi/coursebook/internal/middleware"
	"github.com/hitoshi/coursebook/internal/repository"
	"github.com/hitoshi/coursebook/internal/security"
	"github.com/hitoshi/coursebook/internal/storage"
	"github.com/hitoshi/coursebook/internal/worker/cleanup"
)

// dbPingTimeout は起動時とヘルスチェック時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// multipartOverhead は画像以外のフォーム項目とmultipartの境界に許容するバイト数。
const multipartOverhead = 1 << 20

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// sessionStore はセッションリポジトリと、それが使う外部接続の後始末をまとめたもの。
type sessionStore struct {
	repo  repository.SessionRepository
	ping  func(ctx context.Context) error
	close func() error
}

// openSessionStore はSESSION_STOREに応じたセッションリポジトリを返す。
// postgresの場合はdbをそのまま共有し、redisの場合は新しいクライアントを作る。
func openSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (*sessionStore, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return &sessionStore{
			repo:  repository.NewPostgresSessionRepo(db),
			ping:  func(context.Context) error { return nil },
			close: func() error { return nil },
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis session store connected", slog.String("addr", cfg.RedisAddr))

	return &sessionStore{
		repo: repository.NewRedisSessionRepo(client),
		ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		close: client.Close,
	}, nil
}

// openImageStore はIMAGE_STOREに応じた画像ストアを返す。
// localの場合は保存ディレクトリが無ければ作成する。
func openImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if cfg.ImageStore == config.ImageStoreMinIO {
		store, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open minio image store: %w", err)
		}
		slog.Info("minio image store ready", slog.String("bucket", cfg.MinIOBucket))
		return store, nil
	}

	store, err := storage.NewLocalStore(cfg.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local image store: %w", err)
	}
	slog.Info("local image store ready", slog.String("dir", store.Dir()))
	return store, nil
}

// newMetricsRegistry はドメインカウンターとランタイム指標を登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newRouterDeps は設定と各ストアからルーターの依存関係を組み立てる。
func newRouterDeps(
	cfg *config.Config,
	db *sql.DB,
	sessions *sessionStore,
	images storage.ImageStore,
	rateLimiter *middleware.RateLimiter,
) (*handler.RouterDeps, error) {
	reg, collector := newMetricsRegistry()

	userRepo := repository.NewPostgresUserRepo(db)
	courseRepo := repository.NewPostgresCourseRepo(db)
	bookingRepo := repository.NewPostgresBookingRepo(db)

	authService, err := auth.NewService(userRepo, sessions.repo, collector, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	policy, err := course.ParseDeletePolicy(cfg.CourseDeletePolicy)
	if err != nil {
		return nil, err
	}
	courseService := course.NewService(courseRepo, images, security.NewTextSanitizer(), collector, course.Config{
		DeletePolicy: policy,
		MaxImageSize: cfg.ImageMaxSize,
	})

	bookingService := booking.NewService(bookingRepo, courseRepo, collector, booking.Config{
		AllowSelfBooking: cfg.BookingAllowSelf,
		AllowDuplicate:   cfg.BookingAllowDuplicate,
	})

	health := handler.HealthCheckerFunc(func(ctx context.Context) error {
		if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
			return err
		}
		return sessions.ping(ctx)
	})

	var maxBody int64
	if cfg.ImageMaxSize > 0 {
		maxBody = cfg.ImageMaxSize + multipartOverhead
	}

	return &handler.RouterDeps{
		SessionFinder:     sessions.repo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:            slog.Default(),
		Metrics:           collector,
		HSTS:              cfg.CookieSecure,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		MaxBodyBytes:      maxBody,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		UserFinder: authService,

		CourseService:  courseService,
		BookingService: bookingService,

		Images:         images,
		Health:         health,
		MetricsHandler: metrics.Handler(reg),
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := openSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer sessions.close()

	images, err := openImageStore(ctx, cfg)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	deps, err := newRouterDeps(cfg, db, sessions, images, rateLimiter)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除をSESSION_CLEANUP_INTERVAL間隔で実行し、
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := openSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer sessions.close()

	slog.Info("worker starting",
		slog.String("session_store", cfg.SessionStore),
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	job := cleanup.NewCleanupJob(sessions.repo, slog.Default(), nil)
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// argsはmigrateより後ろの引数（up / down [n] / version）。
func runMigrate(cfg *config.Config, args []string) error {
	opts, err := ParseMigrateArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("action", string(opts.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch opts.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, opts.Steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database rollback completed", slog.Int("steps", opts.Steps))
	case MigrateVersion:
		version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		slog.Info("current schema version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/coursebook/internal/metrics"
	"github.com/hitoshi/coursebook/internal/middleware"
)

// CourseService は講座ハンドラーとマイページの両方が使う講座サービス。
type CourseService interface {
	CourseServiceInterface
	OwnedCourseLister
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	HSTS              bool
	TrustProxyHeaders bool
	MaxBodyBytes      int64 // 0以下は無制限

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	UserFinder  ProfileUserFinder

	// 講座・予約
	CourseService  CourseService
	BookingService BookingServiceInterface

	// 補助エンドポイント
	Images         ImageOpener
	Health         HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Metrics → CORS → (RealIP) → RequestSize
//	公開ルート:   OptionalSession → Logging → (Auth RateLimit → CSRF)
//	要ログイン:   Session → Logging → RateLimit(General) → CSRF
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	if deps.MaxBodyBytes > 0 {
		r.Use(chimw.RequestSize(deps.MaxBodyBytes))
	}
	r.NotFound(middleware.NotFoundHandler())
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	courseHandler := NewCourseHandler(deps.CourseService)
	bookingHandler := NewBookingHandler(deps.BookingService)
	profileHandler := NewProfileHandler(deps.UserFinder, deps.CourseService, deps.BookingService)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewLoggingMiddleware(logger))

		r.Get("/", Landing)
		r.Get("/health", NewHealthHandler(deps.Health))
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		if deps.Images != nil {
			r.Get(imagePathPrefix+"{key}", NewImageHandler(deps.Images))
		}

		r.Get("/course/{id}", courseHandler.GetCourse)
		r.Get("/me", authHandler.Me)
		// GETかつCSRF検証なし。外部ページから呼ばれても本人のセッションが終了するだけ。
		r.Get("/logout", authHandler.Logout)

		// ログイン・登録はIP単位のレート制限を追加
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Use(csrf)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
	})

	// --- ログインが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(csrf)

		r.Get("/dashboard", courseHandler.Dashboard)
		r.Post("/create_course", courseHandler.CreateCourse)
		r.Get("/my_profile", profileHandler.MyProfile)
		r.Post("/delete_course/{id}", courseHandler.DeleteCourse)
		r.Post("/book_course/{id}", bookingHandler.BookCourse)
		r.Post("/cancel_booking/{id}", bookingHandler.CancelBooking)
	})

	return r
}

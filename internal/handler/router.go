package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/steadyleadflow/internal/middleware"
	"github.com/hitoshi/steadyleadflow/internal/model"
)

// stripeWebhookPath はCSRF検証とセッション認証の対象外とするWebhookのパス。
const stripeWebhookPath = "/api/stripe/webhook"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger // nilの場合 slog.Default() を使う
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	HTTPMetrics       middleware.HTTPMetricsRecorder

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合 /metrics は公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	LeadService      LeadServiceInterface
	JobService       JobServiceInterface
	ProposalService  ProposalServiceInterface
	AnalyticsService AnalyticsServiceInterface
	UserService      UserServiceInterface
	BillingService   BillingServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → RequestID → RealIP → Logging → Metrics → CORS → CSRF
//	  └ 認証が必要なルート: Session → RateLimit(General) [→ TierGate]
//
// ログイン・認証確認・Webhook・ヘルスチェックはセッション認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	csrfConfig := deps.CSRFConfig
	csrfConfig.ExemptPaths = append(csrfConfig.ExemptPaths, stripeWebhookPath)

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(csrfConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	leadHandler := NewLeadHandler(deps.LeadService)
	jobHandler := NewJobHandler(deps.JobService)
	proposalHandler := NewProposalHandler(deps.ProposalService)
	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	billingHandler := NewBillingHandler(deps.BillingService)

	// --- 認証不要のルート ---

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

	r.With(deps.RateLimiter.LoginMiddleware()).Post("/api/login", authHandler.Login)
	r.Post("/api/logout", authHandler.Logout)
	r.Get("/api/auth/check", authHandler.Check)

	// 署名で検証する
	r.Post(stripeWebhookPath, billingHandler.Webhook)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// リード管理（全プラン）
		r.Route("/api/leads", func(r chi.Router) {
			r.Get("/", leadHandler.List)
			// POST /api/leads - リード作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.LeadCreateMiddleware()).Post("/", leadHandler.Create)
			r.Post("/check-duplicates", leadHandler.CheckDuplicates)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", leadHandler.Get)
				r.Put("/", leadHandler.Update)
				r.Delete("/", leadHandler.Delete)
			})
		})

		// ユーザー設定・退会
		r.Route("/api/user", func(r chi.Router) {
			r.Delete("/", userHandler.Withdraw)
			r.Get("/settings", userHandler.GetSettings)
			r.Put("/settings", userHandler.UpdateSettings)
		})

		// 課金
		r.Post("/api/billing/checkout", billingHandler.Checkout)

		// --- Professional以上のルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewTierGateMiddleware(model.TierProfessional))

			r.Route("/api/jobs", func(r chi.Router) {
				r.Get("/", jobHandler.List)
				r.Post("/", jobHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", jobHandler.Get)
					r.Put("/", jobHandler.Update)
					r.Delete("/", jobHandler.Delete)
				})
			})

			r.Route("/api/proposals", func(r chi.Router) {
				r.Get("/", proposalHandler.List)
				r.Post("/", proposalHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", proposalHandler.Get)
					r.Put("/status", proposalHandler.UpdateStatus)
				})
			})

			r.Get("/api/statistics", analyticsHandler.Statistics)
			r.Get("/api/analytics/snapshots", analyticsHandler.Snapshots)
		})
	})

	return r
}

// Package app はアプリケーションの初期化と依存関係の組み立てを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/hitoshi/steadyleadflow/internal/analytics"
	"github.com/hitoshi/steadyleadflow/internal/auth"
	"github.com/hitoshi/steadyleadflow/internal/billing"
	"github.com/hitoshi/steadyleadflow/internal/config"
	"github.com/hitoshi/steadyleadflow/internal/database"
	"github.com/hitoshi/steadyleadflow/internal/handler"
	"github.com/hitoshi/steadyleadflow/internal/job"
	"github.com/hitoshi/steadyleadflow/internal/lead"
	"github.com/hitoshi/steadyleadflow/internal/logger"
	"github.com/hitoshi/steadyleadflow/internal/metrics"
	"github.com/hitoshi/steadyleadflow/internal/middleware"
	"github.com/hitoshi/steadyleadflow/internal/proposal"
	"github.com/hitoshi/steadyleadflow/internal/repository"
	"github.com/hitoshi/steadyleadflow/internal/security"
	"github.com/hitoshi/steadyleadflow/internal/supabase"
	"github.com/hitoshi/steadyleadflow/internal/user"
	"github.com/hitoshi/steadyleadflow/internal/worker/cleanup"
	"github.com/hitoshi/steadyleadflow/internal/worker/snapshot"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envの読み込み。既存の環境変数は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("frontend_url", cfg.FrontendURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// newMetricsRegistry はGo/プロセスメトリクスを含むレジストリとコレクターを生成する。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctx がキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	leadRepo := repository.NewPostgresLeadRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	proposalRepo := repository.NewPostgresProposalRepo(db)
	snapshotRepo := repository.NewPostgresSnapshotRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)

	// 3. 外部サービスクライアントの初期化
	supabaseClient := supabase.NewClient(supabase.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		HTTPClient:     &http.Client{Timeout: 10 * time.Second},
	}, slog.Default())

	stripeClient := &client.API{}
	stripeClient.Init(cfg.StripeSecretKey, nil)

	reg, collector := newMetricsRegistry()
	sanitizer := security.NewContentSanitizer()

	// 4. ドメインサービスの初期化
	authService := auth.NewService(supabaseClient, userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge:        cfg.SessionMaxAge,
		RememberMeMaxAge:     cfg.RememberMeMaxAge,
		FreeMonthlyLeadLimit: cfg.FreeMonthlyLeadLimit,
	})
	leadService := lead.NewService(leadRepo, sanitizer, collector)
	jobService := job.NewService(jobRepo, leadRepo, sanitizer)
	proposalService := proposal.NewService(proposalRepo, leadRepo, sanitizer)
	analyticsService := analytics.NewService(userRepo, leadRepo, jobRepo, snapshotRepo)
	userService := user.NewService(userRepo, sessionRepo, settingsRepo, supabaseClient, sanitizer)
	billingService := billing.NewService(stripeClient.CheckoutSessions, userRepo, billing.Config{
		PriceMonthly:         cfg.StripePriceMonthly,
		PriceYearly:          cfg.StripePriceYearly,
		WebhookSecret:        cfg.StripeWebhookSecret,
		FrontendURL:          cfg.FrontendURL,
		FreeMonthlyLeadLimit: cfg.FreeMonthlyLeadLimit,
	})

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(
		cfg.RateLimitGeneral, cfg.RateLimitLeadCreate, cfg.RateLimitLogin,
	))
	defer rateLimiter.Stop()

	authConfig := handler.AuthHandlerConfig{
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		UserFinder:        userRepo,
		CORSAllowedOrigin: cfg.FrontendURL,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HTTPMetrics: collector,

		HealthChecker:  database.NewPinger(db),
		MetricsHandler: metrics.Handler(reg),

		AuthService: handler.NewInstrumentedAuthService(authService, collector),
		AuthConfig:  authConfig,

		LeadService:      leadService,
		JobService:       jobService,
		ProposalService:  proposalService,
		AnalyticsService: analyticsService,
		UserService:      userService,
		BillingService:   billingService,
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 6. HTTPサーバーの起動
	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// スナップショット保存とクリーンアップを定期実行し、
// 運用向けに /health と /metrics を公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	leadRepo := repository.NewPostgresLeadRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	snapshotRepo := repository.NewPostgresSnapshotRepo(db)

	reg, collector := newMetricsRegistry()

	// 3. ジョブの初期化
	analyticsService := analytics.NewService(userRepo, leadRepo, jobRepo, snapshotRepo)
	scheduler := snapshot.NewScheduler(analyticsService, collector, slog.Default())
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, userRepo, collector, slog.Default())

	slog.Info("worker starting",
		slog.Duration("snapshot_interval", cfg.SnapshotInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scheduler.Start(ctx, cfg.SnapshotInterval)
	}()
	go func() {
		defer wg.Done()
		cleanupJob.Start(ctx, cfg.CleanupInterval)
	}()

	// 4. 運用エンドポイント
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/health", handler.NewHealthHandler(database.NewPinger(db)))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	err = serveUntilDone(ctx, server, "worker")
	wg.Wait()
	return err
}

// serveUntilDone はサーバーを起動し、ctx がキャンセルされたらシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	hc := &http.Client{Timeout: 5 * time.Second}

	resp, err := hc.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

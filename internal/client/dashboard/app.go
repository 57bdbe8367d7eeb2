// Package dashboard はダッシュボードクライアントのアプリケーション本体。
// 認証マネージャー、APIファサード、キャッシュ、オーバーレイ、ページモジュールを
// 1つの App に組み立て、依存はすべて App 経由で受け渡す。
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/client/api"
	"github.com/hitoshi/steadyleadflow/internal/client/appcache"
	"github.com/hitoshi/steadyleadflow/internal/client/authmgr"
	"github.com/hitoshi/steadyleadflow/internal/client/overlay"
)

// services はオーバーレイとページが共有する依存。
type services struct {
	client   *api.Client
	features *api.Features
	auth     *authmgr.Manager
	cache    *appcache.Cache
	notifier Notifier
	prompter api.UpgradePrompter
	router   *PageRouter
	logger   *slog.Logger
}

// Config はAppの設定。
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	// Document はnilの場合にメモリ上の描画先を使う。
	Document  overlay.Document
	Navigator authmgr.Navigator
	// Notifier はnilの場合にログへ出力する。
	Notifier Notifier
	// Prompter はnilの場合に Notifier でアップグレード案内を表示する。
	Prompter api.UpgradePrompter
	Logger   *slog.Logger
	// CacheTTL はキーごとのTTL。未指定のキーは appcache.DefaultTTL。
	CacheTTL map[appcache.Key]time.Duration
	Now      func() time.Time
}

// App はダッシュボードの構成要素を保持する。
type App struct {
	deps     *services
	overlays *overlay.Manager
	leads    *LeadsPage
	jobs     *JobsPage
}

// NewApp はAppを生成する。
func NewApp(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auth, err := authmgr.New(authmgr.Config{
		BaseURL:    cfg.BaseURL,
		Scope:      authmgr.ScopeDashboard,
		HTTPClient: cfg.HTTPClient,
		Navigator:  cfg.Navigator,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth manager: %w", err)
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	prompter := cfg.Prompter
	if prompter == nil {
		prompter = notifierPrompter{notifier: notifier}
	}
	doc := cfg.Document
	if doc == nil {
		doc = overlay.NewMemoryDocument(overlay.DefaultTransition)
	}

	cache := appcache.New(appcache.Options{TTL: cfg.CacheTTL, Now: cfg.Now})
	client := api.NewClient(auth, logger)
	features := api.NewFeatures(client, auth, prompter)

	deps := &services{
		client:   client,
		features: features,
		auth:     auth,
		cache:    cache,
		notifier: notifier,
		prompter: prompter,
		router:   NewPageRouter(),
		logger:   logger,
	}

	a := &App{
		deps:     deps,
		overlays: overlay.NewManager(doc, logger),
		leads:    NewLeadsPage(client, cache),
		jobs:     NewJobsPage(features, cache),
	}
	deps.router.Register(a.leads)
	deps.router.Register(a.jobs)

	a.overlays.Register(KindLeadDetail, newLeadDetailOverlay(deps))
	a.overlays.Register(KindJobDetail, newJobDetailOverlay(deps))
	a.overlays.Register(KindQuickAddLead, newQuickAddLeadOverlay(deps))
	a.overlays.Register(KindQuickAddJob, newQuickAddJobOverlay(deps))

	auth.OnAuthChange(func(authenticated bool) {
		if !authenticated {
			a.Reset()
		}
	})

	return a, nil
}

func (a *App) Auth() *authmgr.Manager     { return a.deps.auth }
func (a *App) Client() *api.Client        { return a.deps.client }
func (a *App) Features() *api.Features    { return a.deps.features }
func (a *App) Cache() *appcache.Cache     { return a.deps.cache }
func (a *App) Overlays() *overlay.Manager { return a.overlays }
func (a *App) Router() *PageRouter        { return a.deps.router }
func (a *App) LeadsPage() *LeadsPage      { return a.leads }
func (a *App) JobsPage() *JobsPage        { return a.jobs }

// pageForPath はURLパスから表示するページを決める。
func pageForPath(pagePath string) string {
	p, _, _ := strings.Cut(pagePath, "?")
	if p == authmgr.ProtectedPrefix+"/jobs" || strings.HasPrefix(p, authmgr.ProtectedPrefix+"/jobs/") {
		return PageJobs
	}
	return PageLeads
}

// Start はセッションを確認し、認証済みであればパスに対応するページを表示する。
// 未認証の場合は認証マネージャーがログインページへ遷移させる。
func (a *App) Start(ctx context.Context, pagePath string) error {
	a.deps.auth.Start(ctx, pagePath)
	if !a.deps.auth.IsAuthenticated() {
		return nil
	}
	return a.deps.router.Activate(ctx, pageForPath(pagePath))
}

// OpenOverlay はオーバーレイを開き、IDを返す。
func (a *App) OpenOverlay(ctx context.Context, kind string, data overlay.Data) (string, error) {
	return a.overlays.Open(ctx, kind, data)
}

// Logout はログアウトする。状態の破棄は認証状態の変化を受けて行う。
func (a *App) Logout(ctx context.Context) {
	a.deps.auth.Logout(ctx)
}

// Reset はキャッシュを破棄してすべてのオーバーレイを閉じる。
// 戻り値のチャネルはオーバーレイの除去完了で閉じられる。
func (a *App) Reset() <-chan struct{} {
	a.deps.cache.Clear()
	return a.overlays.CloseAll()
}

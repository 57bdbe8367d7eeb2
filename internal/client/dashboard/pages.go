package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/steadyleadflow/internal/client/api"
	"github.com/hitoshi/steadyleadflow/internal/client/appcache"
)

// Notifier はトースト通知を表示する。
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier は通知をログに出力する Notifier。
type LogNotifier struct {
	Logger *slog.Logger
}

// Success は成功通知を出力する。
func (n LogNotifier) Success(message string) {
	n.logger().Info("notice", slog.String("kind", "success"), slog.String("message", message))
}

// Error はエラー通知を出力する。
func (n LogNotifier) Error(message string) {
	n.logger().Warn("notice", slog.String("kind", "error"), slog.String("message", message))
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// notifierPrompter はアップグレード案内を通知で表示する。
type notifierPrompter struct {
	notifier Notifier
}

func (p notifierPrompter) PromptUpgrade(feature api.Feature) {
	p.notifier.Error(fmt.Sprintf("Upgrade to Professional to unlock %s.", feature))
}

// LoadError はページのデータ取得失敗を表す。
type LoadError struct {
	Message         string
	UpgradeRequired bool
}

// Error はerrorインターフェースを実装する。
func (e *LoadError) Error() string {
	return e.Message
}

func loadErrorFrom[T any](res api.Result[T]) *LoadError {
	return &LoadError{Message: res.Error, UpgradeRequired: res.UpgradeRequired}
}

// Page はダッシュボードのページモジュール。
type Page interface {
	Name() string
	// Load はキャッシュを優先してデータを取得する。
	Load(ctx context.Context) error
	// Reload はキャッシュを破棄して取得し直す。
	Reload(ctx context.Context) error
}

// ページ名
const (
	PageLeads = "leads"
	PageJobs  = "jobs"
)

// LeadsPage はリード一覧ページ。
type LeadsPage struct {
	client *api.Client
	cache  *appcache.Cache

	mu    sync.RWMutex
	leads []api.Lead
	loads int
}

// NewLeadsPage はLeadsPageを生成する。
func NewLeadsPage(client *api.Client, cache *appcache.Cache) *LeadsPage {
	return &LeadsPage{client: client, cache: cache}
}

// Name はページ名を返す。
func (p *LeadsPage) Name() string { return PageLeads }

// Load はリード一覧を取得する。
func (p *LeadsPage) Load(ctx context.Context) error {
	leads, err := appcache.Load(ctx, p.cache, appcache.KeyLeads, func(ctx context.Context) ([]api.Lead, error) {
		res := p.client.ListLeads(ctx)
		if !res.Success {
			return nil, loadErrorFrom(res)
		}
		return res.Data, nil
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.leads = leads
	p.loads++
	return nil
}

// Reload はキャッシュを破棄してリード一覧を取得し直す。
func (p *LeadsPage) Reload(ctx context.Context) error {
	p.cache.Invalidate(appcache.KeyLeads)
	return p.Load(ctx)
}

// Leads は表示中のリードを返す。
func (p *LeadsPage) Leads() []api.Lead {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]api.Lead(nil), p.leads...)
}

// Loads は表示を更新した回数を返す。
func (p *LeadsPage) Loads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loads
}

// JobsPage は案件一覧ページ。Professional以上で利用できる。
type JobsPage struct {
	features *api.Features
	cache    *appcache.Cache

	mu    sync.RWMutex
	jobs  []api.Job
	loads int
}

// NewJobsPage はJobsPageを生成する。
func NewJobsPage(features *api.Features, cache *appcache.Cache) *JobsPage {
	return &JobsPage{features: features, cache: cache}
}

// Name はページ名を返す。
func (p *JobsPage) Name() string { return PageJobs }

// Load は案件一覧を取得する。
func (p *JobsPage) Load(ctx context.Context) error {
	jobs, err := appcache.Load(ctx, p.cache, appcache.KeyJobs, func(ctx context.Context) ([]api.Job, error) {
		res := p.features.ListJobs(ctx)
		if !res.Success {
			return nil, loadErrorFrom(res)
		}
		return res.Data, nil
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = jobs
	p.loads++
	return nil
}

// Reload はキャッシュを破棄して案件一覧を取得し直す。
func (p *JobsPage) Reload(ctx context.Context) error {
	p.cache.Invalidate(appcache.KeyJobs)
	return p.Load(ctx)
}

// Jobs は表示中の案件を返す。
func (p *JobsPage) Jobs() []api.Job {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]api.Job(nil), p.jobs...)
}

// Loads は表示を更新した回数を返す。
func (p *JobsPage) Loads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loads
}

// ErrUnknownPage は登録されていないページが指定されたことを表す。
var ErrUnknownPage = errors.New("dashboard: unknown page")

// PageRouter は表示中のページモジュールを保持する。
type PageRouter struct {
	mu     sync.RWMutex
	pages  map[string]Page
	active Page
}

// NewPageRouter はPageRouterを生成する。
func NewPageRouter() *PageRouter {
	return &PageRouter{pages: make(map[string]Page)}
}

// Register はページを登録する。
func (r *PageRouter) Register(p Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[p.Name()] = p
}

// Activate はページを表示中にしてデータを取得する。
// 取得に失敗してもページは表示中のまま。
func (r *PageRouter) Activate(ctx context.Context, name string) error {
	r.mu.Lock()
	p, ok := r.pages[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPage, name)
	}
	r.active = p
	r.mu.Unlock()

	return p.Load(ctx)
}

// Active は表示中のページを返す。未選択の場合はnil。
func (r *PageRouter) Active() Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// ReloadActive は表示中のページを再取得する。未選択の場合は何もしない。
func (r *PageRouter) ReloadActive(ctx context.Context) error {
	p := r.Active()
	if p == nil {
		return nil
	}
	return p.Reload(ctx)
}

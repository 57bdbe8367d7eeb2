// Package authmgr はダッシュボードクライアントの認証状態を管理する。
// サーバーのセッションCookieを使い、セッション確認・ログイン・ログアウトと
// 認証付きAPIリクエストを提供する。
package authmgr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// State は認証状態を表す。
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateChecking        State = "checking"
	StateAuthenticated   State = "authenticated"
	StateFailed          State = "auth-failed"
)

// Scope はマネージャーが動作するページ群を表す。
type Scope int

const (
	// ScopeDashboard は保護ページのアクセス制御を行う。
	ScopeDashboard Scope = iota
	// ScopeLogin はログインページ用。認証済みの訪問者をリダイレクト先へ送る。
	ScopeLogin
)

const (
	// ProtectedPrefix は認証が必要なページのパスプレフィックス。
	ProtectedPrefix = "/dashboard"
	// LoginPath はログインページのパス。
	LoginPath = "/login"

	loggedInCookieName = "isLoggedIn"
	csrfCookieName     = "csrf_token"
	csrfHeaderName     = "X-CSRF-Token"
	maxResponseBody    = 1 << 20
)

// ErrUnauthorized はサーバーが401/403を返したことを表す。
// この時点で認証状態は失敗に遷移済み。
var ErrUnauthorized = errors.New("authmgr: session is not authenticated")

// Navigator はページ遷移を行う。
type Navigator interface {
	Redirect(target string)
}

// Listener は認証状態の変化を受け取る。
type Listener func(authenticated bool)

// User はセッションに紐づくユーザー情報。
type User struct {
	ID                string
	Email             string
	UserType          string
	SubscriptionTier  string
	CurrentMonthLeads int
	MonthlyLeadLimit  int
	IsAdmin           bool
}

// LeadLimitInfo は月間リード上限の利用状況。
type LeadLimitInfo struct {
	Current   int
	Limit     int
	Remaining int
	Unlimited bool
}

// Config はManagerの設定。
type Config struct {
	// BaseURL はAPIサーバーのURL（例: https://app.steadyleadflow.com）。
	BaseURL string
	Scope   Scope
	// HTTPClient はnilの場合に新規作成する。Jarが未設定ならCookieJarを設定する。
	HTTPClient *http.Client
	Navigator  Navigator
	Logger     *slog.Logger
}

// Manager は認証状態を保持し、認証付きリクエストを送信する。
type Manager struct {
	baseURL   *url.URL
	scope     Scope
	client    *http.Client
	navigator Navigator
	logger    *slog.Logger

	mu        sync.RWMutex
	state     State
	user      *User
	pagePath  string
	csrfToken string
	listeners []Listener

	checks singleflight.Group
}

// New はManagerを生成する。
func New(cfg Config) (*Manager, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		client.Jar = jar
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	navigator := cfg.Navigator
	if navigator == nil {
		navigator = nopNavigator{}
	}

	return &Manager{
		baseURL:   base,
		scope:     cfg.Scope,
		client:    client,
		navigator: navigator,
		logger:    logger,
		state:     StateUnauthenticated,
	}, nil
}

type nopNavigator struct{}

func (nopNavigator) Redirect(string) {}

// OnAuthChange はリスナーを登録する。
func (m *Manager) OnAuthChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State は現在の認証状態を返す。
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User は現在のユーザーのコピーを返す。未認証の場合はnil。
func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// IsAuthenticated は認証済みかどうかを返す。
func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// Start は表示中のページに応じて初期化を行う。
// pagePath はクエリ文字列を含むパス。
func (m *Manager) Start(ctx context.Context, pagePath string) {
	m.mu.Lock()
	m.pagePath = pagePath
	m.mu.Unlock()

	switch m.scope {
	case ScopeLogin:
		if !m.hasLoggedInCookie() {
			return
		}
		if ok, _ := m.CheckAuth(ctx); ok {
			m.navigator.Redirect(RedirectTarget(pagePath))
		}
	default:
		if isProtected(pagePath) {
			m.CheckAuthOnLoad(ctx)
		}
	}
}

// CheckAuthOnLoad はisLoggedIn Cookieで事前チェックし、存在すればサーバーに確認する。
// Cookieがなければサーバーに問い合わせずに失敗として扱う。
func (m *Manager) CheckAuthOnLoad(ctx context.Context) bool {
	if !m.hasLoggedInCookie() {
		m.handleAuthFailure()
		return false
	}
	ok, _ := m.CheckAuth(ctx)
	return ok
}

// CheckAuth はサーバーにセッションを確認する。
// 同時に呼ばれた場合は1回のリクエストを共有し、全員が同じ結果を受け取る。
// 共有するリクエストは呼び出し元のキャンセルの影響を受けない。
// ctx がキャンセルされた呼び出し元だけが ctx.Err() を受け取り、認証状態は変わらない。
func (m *Manager) CheckAuth(ctx context.Context) (bool, error) {
	ch := m.checks.DoChan("check", func() (any, error) {
		return m.checkAuth(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return false, r.Err
		}
		return r.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type checkResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          map[string]any `json:"user"`
}

func (m *Manager) checkAuth(ctx context.Context) (bool, error) {
	m.setState(StateChecking)

	resp, err := m.do(ctx, http.MethodGet, "/api/auth/check", nil)
	if err != nil {
		m.logger.Warn("auth check failed", slog.String("error", err.Error()))
		m.handleAuthFailure()
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		m.handleAuthFailure()
		return false, nil
	}

	var body checkResponse
	if err := resp.Decode(&body); err != nil {
		m.handleAuthFailure()
		return false, err
	}
	if !body.Authenticated || body.User == nil {
		m.handleAuthFailure()
		return false, nil
	}

	m.handleAuthSuccess(normalizeUser(body.User))
	return true, nil
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type loginResponse struct {
	Success bool           `json:"success"`
	User    map[string]any `json:"user"`
}

// Login はメールアドレスとパスワードでログインする。
// ScopeLogin では成功後にリダイレクト先へ遷移する。
// 認証情報の誤りは *ResponseError（401）として返し、リダイレクトは行わない。
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) (*User, error) {
	resp, err := m.do(ctx, http.MethodPost, "/api/login", loginRequest{
		Email:      email,
		Password:   password,
		RememberMe: rememberMe,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		m.clearUser(StateFailed)
		return nil, resp.AsError()
	}

	var body loginResponse
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	if !body.Success || body.User == nil {
		m.clearUser(StateFailed)
		return nil, &ResponseError{StatusCode: resp.StatusCode, Message: "login failed"}
	}

	user := normalizeUser(body.User)
	m.handleAuthSuccess(user)

	if m.scope == ScopeLogin {
		m.mu.RLock()
		pagePath := m.pagePath
		m.mu.RUnlock()
		m.navigator.Redirect(RedirectTarget(pagePath))
	}
	return m.User(), nil
}

// Logout はサーバーにログアウトを送信し、ローカル状態を破棄してログインページへ遷移する。
// サーバー側のエラーは無視する。
func (m *Manager) Logout(ctx context.Context) {
	if _, err := m.do(ctx, http.MethodPost, "/api/logout", nil); err != nil {
		m.logger.Warn("logout request failed", slog.String("error", err.Error()))
	}

	m.clearCSRFToken()
	m.clearUser(StateUnauthenticated)
	m.notify(false)
	m.navigator.Redirect(LoginPath)
}

// APIRequest は認証情報とJSONヘッダーを付けてリクエストを送信する。
// CSRF検証で拒否された場合はトークンを取り直して1回だけ再送し、
// それでも拒否されればセッションは維持したまま Response を返す。
// それ以外の401/403は認証失敗として扱い ErrUnauthorized を返す。
// それ以外のステータスはそのまま Response として返す。
func (m *Manager) APIRequest(ctx context.Context, method, path string, body any) (*Response, error) {
	resp, err := m.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if isCSRFRejection(resp) {
		// Cookieの期限切れなどでトークンが古い。取り直して1回だけ再送する
		m.clearCSRFToken()
		resp, err = m.do(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		if isCSRFRejection(resp) {
			return resp, nil
		}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		m.clearCSRFToken()
		m.handleAuthFailure()
		return nil, ErrUnauthorized
	}
	return resp, nil
}

// HasPermission はユーザーの階層が level 以上かどうかを返す。
// "_trial" などのサフィックスは無視し、管理者はすべての階層を満たす。
func (m *Manager) HasPermission(level string) bool {
	u := m.User()
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	required := model.Tier(level)
	if required.Rank() == 0 {
		return false
	}
	return model.Tier(u.SubscriptionTier).AtLeast(required)
}

// LeadLimitInfo は月間リード上限の利用状況を返す。未認証の場合はゼロ値。
func (m *Manager) LeadLimitInfo() LeadLimitInfo {
	u := m.User()
	if u == nil {
		return LeadLimitInfo{}
	}
	info := LeadLimitInfo{Current: u.CurrentMonthLeads, Limit: u.MonthlyLeadLimit}
	if u.IsAdmin || u.MonthlyLeadLimit == model.UnlimitedLeads {
		info.Unlimited = true
		info.Remaining = -1
		return info
	}
	info.Remaining = max(u.MonthlyLeadLimit-u.CurrentMonthLeads, 0)
	return info
}

// RecordLeadCreated は作成済みリード数をローカルで1件加算する。
func (m *Manager) RecordLeadCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user != nil {
		m.user.CurrentMonthLeads++
	}
}

func (m *Manager) handleAuthSuccess(u User) {
	m.mu.Lock()
	m.user = &u
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.notify(true)
}

func (m *Manager) handleAuthFailure() {
	m.clearUser(StateFailed)
	m.notify(false)

	m.mu.RLock()
	pagePath := m.pagePath
	m.mu.RUnlock()
	if m.scope == ScopeDashboard && isProtected(pagePath) {
		m.navigator.Redirect(LoginPath + "?redirect=" + url.QueryEscape(pagePath))
	}
}

func (m *Manager) clearUser(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.state = state
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *Manager) notify(authenticated bool) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		l(authenticated)
	}
}

func (m *Manager) hasLoggedInCookie() bool {
	return m.cookieValue(loggedInCookieName) != ""
}

func (m *Manager) cookieValue(name string) string {
	for _, c := range m.client.Jar.Cookies(m.baseURL) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// do はリクエストを送信してレスポンスボディを読み切る。
// 状態変更メソッドにはCSRFトークンを付与する。
func (m *Manager) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !isSafeMethod(method) {
		token, err := m.ensureCSRFToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set(csrfHeaderName, token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// ensureCSRFToken はCSRFトークンを返す。
// サーバーはCookieとヘッダーの一致を検証するため、Cookieがあればその値を優先する。
// Cookieが見えない場合は取得済みの値、なければサーバーから取得する。
func (m *Manager) ensureCSRFToken(ctx context.Context) (string, error) {
	if token := m.cookieValue(csrfCookieName); token != "" {
		return token, nil
	}

	m.mu.RLock()
	token := m.csrfToken
	m.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	resp, err := m.do(ctx, http.MethodGet, "/api/csrf-token", nil)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch csrf token: %w", resp.AsError())
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("fetch csrf token: empty token")
	}

	m.mu.Lock()
	m.csrfToken = body.Token
	m.mu.Unlock()
	return body.Token, nil
}

func (m *Manager) clearCSRFToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.csrfToken = ""
}

// isCSRFRejection はCSRF検証で拒否されたレスポンスかどうかを返す。
// セッション切れの403とは区別する。
func isCSRFRejection(resp *Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.AsError().Code == model.ErrCodeCSRF
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isProtected(pagePath string) bool {
	p := pagePath
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p == ProtectedPrefix || strings.HasPrefix(p, ProtectedPrefix+"/")
}

// RedirectTarget はログイン後の遷移先を返す。
// redirect パラメータがサイト内の絶対パスでなければ /dashboard。
func RedirectTarget(pagePath string) string {
	u, err := url.Parse(pagePath)
	if err != nil {
		return ProtectedPrefix
	}
	target := u.Query().Get("redirect")
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return ProtectedPrefix
	}
	return target
}

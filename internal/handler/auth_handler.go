package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/steadyleadflow/internal/auth"
	"github.com/hitoshi/steadyleadflow/internal/middleware"
	"github.com/hitoshi/steadyleadflow/internal/model"
)

// loggedInCookieName はクライアントが事前チェックに使う読み取り可能なCookie。
// 認証の根拠にはならず、サーバー側のセッション確認を省略するためだけに使う。
const loggedInCookieName = "isLoggedIn"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string, rememberMe bool) (*auth.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はログイン・ログアウト・セッション確認のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	UserType          string `json:"user_type"`
	SubscriptionTier  string `json:"subscription_tier"`
	CurrentMonthLeads int    `json:"current_month_leads"`
	MonthlyLeadLimit  int    `json:"monthly_lead_limit"`
	IsAdmin           bool   `json:"is_admin"`
}

func toUserResponse(u *model.User) *userResponse {
	return &userResponse{
		ID:                u.ID,
		Email:             u.Email,
		UserType:          u.UserType,
		SubscriptionTier:  string(u.SubscriptionTier),
		CurrentMonthLeads: u.CurrentMonthLeads,
		MonthlyLeadLimit:  u.MonthlyLeadLimit,
		IsAdmin:           u.IsAdmin,
	}
}

type loginResponse struct {
	Success bool          `json:"success"`
	User    *userResponse `json:"user"`
}

type authCheckResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user,omitempty"`
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), strings.TrimSpace(req.Email), req.Password, req.RememberMe)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.setSessionCookies(w, result.Session.ID, result.MaxAge)
	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: toUserResponse(result.User)})
}

// Logout はセッションを破棄する。失敗してもCookieは必ずクリアする。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	clearSessionCookies(w, h.config)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Check は現在のセッションの認証状態を返す。
// 未認証でも200で {authenticated:false} を返し、クライアント側でリダイレクトを判断させる。
// GET /api/auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		clearSessionCookies(w, h.config)
		writeJSON(w, http.StatusOK, authCheckResponse{Authenticated: false})
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, auth.ErrNotAuthenticated) {
			slog.Error("failed to get current user", slog.String("error", err.Error()))
		}
		clearSessionCookies(w, h.config)
		writeJSON(w, http.StatusOK, authCheckResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, authCheckResponse{Authenticated: true, User: toUserResponse(user)})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     loggedInCookieName,
		Value:    "true",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: false, // フロントエンドの事前チェック用
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookies はセッションCookieとログイン状態Cookieを削除する。
func clearSessionCookies(w http.ResponseWriter, config AuthHandlerConfig) {
	for _, name := range []string{middleware.SessionCookieName, loggedInCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   config.CookieDomain,
			MaxAge:   -1,
			HttpOnly: name == middleware.SessionCookieName,
			Secure:   config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

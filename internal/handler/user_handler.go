package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetSettings(ctx context.Context, userID string) (*model.UserSettings, error)
	UpdateSettings(ctx context.Context, userID string, in user.SettingsInput) (*model.UserSettings, error)
	// Withdraw はユーザーの退会処理を実行する。
	// セッションとユーザー行を削除し、認証基盤側のアカウントも削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー設定と退会のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
// cookies は退会時にセッションCookieを削除するために使う。
func NewUserHandler(service UserServiceInterface, cookies AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookies: cookies,
	}
}

type settingsRequest struct {
	CompanyName        *string `json:"company_name"`
	BusinessType       *string `json:"business_type"`
	Timezone           *string `json:"timezone"`
	DefaultLeadSource  *string `json:"default_lead_source"`
	NotificationsEmail *bool   `json:"notifications_email"`
}

type settingsResponse struct {
	CompanyName        string     `json:"company_name"`
	BusinessType       string     `json:"business_type"`
	Timezone           string     `json:"timezone"`
	DefaultLeadSource  string     `json:"default_lead_source"`
	NotificationsEmail bool       `json:"notifications_email"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

func toSettingsResponse(s *model.UserSettings) settingsResponse {
	resp := settingsResponse{
		CompanyName:        s.CompanyName,
		BusinessType:       s.BusinessType,
		Timezone:           s.Timezone,
		DefaultLeadSource:  s.DefaultLeadSource,
		NotificationsEmail: s.NotificationsEmail,
	}
	if !s.UpdatedAt.IsZero() {
		updated := s.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// GetSettings はユーザー設定を返す。未保存の場合は既定値を返す。
// GET /api/user/settings
func (h *UserHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	u := requireUser(w, r)
	if u == nil {
		return
	}

	settings, err := h.service.GetSettings(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

// UpdateSettings はユーザー設定を部分更新する。
// PUT /api/user/settings
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	u := requireUser(w, r)
	if u == nil {
		return
	}

	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), u.ID, user.SettingsInput{
		CompanyName:        req.CompanyName,
		BusinessType:       req.BusinessType,
		Timezone:           req.Timezone,
		DefaultLeadSource:  req.DefaultLeadSource,
		NotificationsEmail: req.NotificationsEmail,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/user
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	u := requireUser(w, r)
	if u == nil {
		return
	}

	if err := h.service.Withdraw(r.Context(), u.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	clearSessionCookies(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

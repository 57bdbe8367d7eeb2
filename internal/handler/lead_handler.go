package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// LeadServiceInterface はリードハンドラーが必要とするサービスインターフェース。
type LeadServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Lead, error)
	Get(ctx context.Context, userID, leadID string) (*model.Lead, error)
	Create(ctx context.Context, userID string, in model.LeadInput) (*model.Lead, error)
	Update(ctx context.Context, userID, leadID string, in model.LeadInput) (*model.Lead, error)
	Delete(ctx context.Context, userID, leadID string) error
	CheckDuplicates(ctx context.Context, userID string, in model.LeadInput) (*model.DuplicateCheck, error)
}

// LeadHandler はリード管理のHTTPハンドラー。
type LeadHandler struct {
	service LeadServiceInterface
}

// NewLeadHandler はLeadHandlerを生成する。
func NewLeadHandler(service LeadServiceInterface) *LeadHandler {
	return &LeadHandler{service: service}
}

// leadRequest はリード作成・更新リクエストのボディ。
// 省略したフィールドは更新時に変更しない。
type leadRequest struct {
	Name           *string  `json:"name"`
	Email          *string  `json:"email"`
	Phone          *string  `json:"phone"`
	Company        *string  `json:"company"`
	Source         *string  `json:"source"`
	Status         *string  `json:"status"`
	Notes          *string  `json:"notes"`
	EstimatedValue *float64 `json:"estimated_value"`
}

func (req leadRequest) toInput() model.LeadInput {
	in := model.LeadInput{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Company:        req.Company,
		Source:         req.Source,
		Notes:          req.Notes,
		EstimatedValue: req.EstimatedValue,
	}
	if req.Status != nil {
		status := model.LeadStatus(*req.Status)
		in.Status = &status
	}
	return in
}

// leadResponse はリードのAPIレスポンス。
type leadResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Company        string    `json:"company"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes"`
	EstimatedValue float64   `json:"estimated_value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toLeadResponse(l *model.Lead) leadResponse {
	return leadResponse{
		ID:             l.ID,
		Name:           l.Name,
		Email:          l.Email,
		Phone:          l.Phone,
		Company:        l.Company,
		Source:         l.Source,
		Status:         string(l.Status),
		Notes:          l.Notes,
		EstimatedValue: l.EstimatedValue,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func toLeadResponses(leads []*model.Lead) []leadResponse {
	out := make([]leadResponse, len(leads))
	for i, l := range leads {
		out[i] = toLeadResponse(l)
	}
	return out
}

type duplicateCheckResponse struct {
	HasExactDuplicates     bool           `json:"has_exact_duplicates"`
	HasPotentialDuplicates bool           `json:"has_potential_duplicates"`
	ExactMatches           []leadResponse `json:"exact_matches"`
	PotentialMatches       []leadResponse `json:"potential_matches"`
}

// List はリード一覧を返す。
// GET /api/leads
func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	leads, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadResponses(leads))
}

// Get はリードを1件返す。
// GET /api/leads/{id}
func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	lead, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

// Create はリードを作成する。
// 月間上限到達は402、完全一致の重複は409で返す。
// POST /api/leads
func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req leadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lead, err := h.service.Create(r.Context(), user.ID, req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeadResponse(lead))
}

// Update はリードを部分更新する。
// PUT /api/leads/{id}
func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req leadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lead, err := h.service.Update(r.Context(), user.ID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadResponse(lead))
}

// Delete はリードを削除する。
// DELETE /api/leads/{id}
func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	if err := h.service.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckDuplicates は作成前の重複候補を返す。
// POST /api/leads/check-duplicates
func (h *LeadHandler) CheckDuplicates(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req leadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	check, err := h.service.CheckDuplicates(r.Context(), user.ID, req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, duplicateCheckResponse{
		HasExactDuplicates:     check.HasExactDuplicates,
		HasPotentialDuplicates: check.HasPotentialDuplicates,
		ExactMatches:           toLeadResponses(check.ExactMatches),
		PotentialMatches:       toLeadResponses(check.PotentialMatches),
	})
}

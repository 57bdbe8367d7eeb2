package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/proposal"
)

// ProposalServiceInterface は見積書ハンドラーが必要とするサービスインターフェース。
type ProposalServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Proposal, error)
	Get(ctx context.Context, userID, proposalID string) (*model.Proposal, error)
	Create(ctx context.Context, userID string, in proposal.CreateInput) (*model.Proposal, error)
	UpdateStatus(ctx context.Context, userID, proposalID string, status model.ProposalStatus) (*model.Proposal, error)
}

// ProposalHandler は見積書管理のHTTPハンドラー。
type ProposalHandler struct {
	service ProposalServiceInterface
}

// NewProposalHandler はProposalHandlerを生成する。
func NewProposalHandler(service ProposalServiceInterface) *ProposalHandler {
	return &ProposalHandler{service: service}
}

type createProposalRequest struct {
	LeadID     string  `json:"lead_id"`
	Title      string  `json:"title"`
	Amount     float64 `json:"amount"`
	ValidUntil string  `json:"valid_until"`
}

type updateProposalStatusRequest struct {
	Status string `json:"status"`
}

type proposalResponse struct {
	ID             string    `json:"id"`
	LeadID         string    `json:"lead_id"`
	ProposalNumber string    `json:"proposal_number"`
	Title          string    `json:"title"`
	Amount         float64   `json:"amount"`
	Status         string    `json:"status"`
	ValidUntil     *string   `json:"valid_until"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toProposalResponse(p *model.Proposal) proposalResponse {
	resp := proposalResponse{
		ID:             p.ID,
		LeadID:         p.LeadID,
		ProposalNumber: p.ProposalNumber,
		Title:          p.Title,
		Amount:         p.Amount,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.ValidUntil != nil {
		d := p.ValidUntil.Format(dateLayout)
		resp.ValidUntil = &d
	}
	return resp
}

// List は見積書一覧を返す。
// GET /api/proposals
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	proposals, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]proposalResponse, len(proposals))
	for i, p := range proposals {
		out[i] = toProposalResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// Get は見積書を1件返す。
// GET /api/proposals/{id}
func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	p, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

// Create は見積書を作成する。見積番号はDB側で採番される。
// POST /api/proposals
func (h *ProposalHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req createProposalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := proposal.CreateInput{
		LeadID: req.LeadID,
		Title:  req.Title,
		Amount: req.Amount,
	}
	if req.ValidUntil != "" {
		d, err := parseDate(req.ValidUntil)
		if err != nil {
			handleServiceError(w, r, model.NewValidationError("valid_until must be YYYY-MM-DD."))
			return
		}
		in.ValidUntil = &d
	}

	p, err := h.service.Create(r.Context(), user.ID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProposalResponse(p))
}

// UpdateStatus は見積書のステータスを更新する。
// PUT /api/proposals/{id}/status
func (h *ProposalHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req updateProposalStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.UpdateStatus(r.Context(), user.ID, chi.URLParam(r, "id"), model.ProposalStatus(req.Status))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

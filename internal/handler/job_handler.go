package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// dateLayout は日付のみのリクエスト値の形式。
const dateLayout = "2006-01-02"

// JobServiceInterface は案件ハンドラーが必要とするサービスインターフェース。
type JobServiceInterface interface {
	List(ctx context.Context, userID, leadID string) ([]*model.Job, error)
	Get(ctx context.Context, userID, jobID string) (*model.Job, error)
	Create(ctx context.Context, userID string, in model.JobInput) (*model.Job, error)
	Update(ctx context.Context, userID, jobID string, in model.JobInput) (*model.Job, error)
	Delete(ctx context.Context, userID, jobID string) error
}

// JobHandler は案件管理のHTTPハンドラー。
type JobHandler struct {
	service JobServiceInterface
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(service JobServiceInterface) *JobHandler {
	return &JobHandler{service: service}
}

type jobRequest struct {
	LeadID        *string  `json:"lead_id"`
	Title         *string  `json:"title"`
	Description   *string  `json:"description"`
	Status        *string  `json:"status"`
	Value         *float64 `json:"value"`
	ScheduledDate *string  `json:"scheduled_date"` // YYYY-MM-DD またはRFC3339
}

func (req jobRequest) toInput() (model.JobInput, error) {
	in := model.JobInput{
		LeadID:      req.LeadID,
		Title:       req.Title,
		Description: req.Description,
		Value:       req.Value,
	}
	if req.Status != nil {
		status := model.JobStatus(*req.Status)
		in.Status = &status
	}
	if req.ScheduledDate != nil && *req.ScheduledDate != "" {
		d, err := parseDate(*req.ScheduledDate)
		if err != nil {
			return in, model.NewValidationError("scheduled_date must be YYYY-MM-DD.")
		}
		in.ScheduledDate = &d
	}
	return in, nil
}

func parseDate(s string) (time.Time, error) {
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}

type jobResponse struct {
	ID            string     `json:"id"`
	LeadID        *string    `json:"lead_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	Value         float64    `json:"value"`
	ScheduledDate *string    `json:"scheduled_date"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toJobResponse(j *model.Job) jobResponse {
	resp := jobResponse{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		Status:      string(j.Status),
		Value:       j.Value,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if j.LeadID != "" {
		leadID := j.LeadID
		resp.LeadID = &leadID
	}
	if j.ScheduledDate != nil {
		d := j.ScheduledDate.Format(dateLayout)
		resp.ScheduledDate = &d
	}
	return resp
}

// List は案件一覧を返す。lead_idクエリで絞り込める。
// GET /api/jobs?lead_id=
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	jobs, err := h.service.List(r.Context(), user.ID, r.URL.Query().Get("lead_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = toJobResponse(j)
	}
	writeJSON(w, http.StatusOK, out)
}

// Get は案件を1件返す。
// GET /api/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	job, err := h.service.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Create は案件を作成する。
// POST /api/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	job, err := h.service.Create(r.Context(), user.ID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

// Update は案件を部分更新する。
// PUT /api/jobs/{id}
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	job, err := h.service.Update(r.Context(), user.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Delete は案件を削除する。
// DELETE /api/jobs/{id}
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *JobHandler) decodeInput(w http.ResponseWriter, r *http.Request) (model.JobInput, bool) {
	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return model.JobInput{}, false
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, r, err)
		return model.JobInput{}, false
	}
	return in, true
}

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// --- モック定義 ---

type mockJobService struct {
	listFn   func(ctx context.Context, userID, leadID string) ([]*model.Job, error)
	getFn    func(ctx context.Context, userID, jobID string) (*model.Job, error)
	createFn func(ctx context.Context, userID string, in model.JobInput) (*model.Job, error)
	updateFn func(ctx context.Context, userID, jobID string, in model.JobInput) (*model.Job, error)
	deleteFn func(ctx context.Context, userID, jobID string) error
}

func (m *mockJobService) List(ctx context.Context, userID, leadID string) ([]*model.Job, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, leadID)
	}
	return nil, nil
}

func (m *mockJobService) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, jobID)
	}
	return nil, model.NewJobNotFoundError(jobID)
}

func (m *mockJobService) Create(ctx context.Context, userID string, in model.JobInput) (*model.Job, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockJobService) Update(ctx context.Context, userID, jobID string, in model.JobInput) (*model.Job, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, jobID, in)
	}
	return nil, nil
}

func (m *mockJobService) Delete(ctx context.Context, userID, jobID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, jobID)
	}
	return nil
}

// --- テスト ---

func TestJobHandler_List_ForwardsLeadFilter(t *testing.T) {
	var gotLead string
	scheduled := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	svc := &mockJobService{
		listFn: func(ctx context.Context, userID, leadID string) ([]*model.Job, error) {
			gotLead = leadID
			return []*model.Job{{
				ID:            "job-1",
				LeadID:        leadID,
				Title:         "Roof repair",
				Status:        model.JobStatusScheduled,
				ScheduledDate: &scheduled,
			}}, nil
		},
	}
	h := NewJobHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, withUser(httptest.NewRequest(http.MethodGet, "/api/jobs?lead_id=lead-7", nil), professionalUser()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotLead != "lead-7" {
		t.Errorf("leadID = %q, want lead-7", gotLead)
	}
	var body []jobResponse
	parseJSON(t, w, &body)
	if len(body) != 1 {
		t.Fatalf("len = %d", len(body))
	}
	if body[0].ScheduledDate == nil || *body[0].ScheduledDate != "2024-05-10" {
		t.Errorf("scheduled_date = %v", body[0].ScheduledDate)
	}
	if body[0].LeadID == nil || *body[0].LeadID != "lead-7" {
		t.Errorf("lead_id = %v", body[0].LeadID)
	}
}

func TestJobHandler_Create_ParsesScheduledDate(t *testing.T) {
	var got model.JobInput
	svc := &mockJobService{
		createFn: func(ctx context.Context, userID string, in model.JobInput) (*model.Job, error) {
			got = in
			return &model.Job{ID: "job-1", Title: *in.Title, Status: model.JobStatusScheduled}, nil
		},
	}
	h := NewJobHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/api/jobs", map[string]any{
		"title":          "Deck build",
		"value":          5400,
		"scheduled_date": "2024-06-01",
	})
	w := httptest.NewRecorder()
	h.Create(w, withUser(req, professionalUser()))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.ScheduledDate == nil || !got.ScheduledDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("scheduled_date = %v", got.ScheduledDate)
	}
	if got.Value == nil || *got.Value != 5400 {
		t.Errorf("value = %v", got.Value)
	}

	var body jobResponse
	parseJSON(t, w, &body)
	if body.LeadID != nil {
		t.Errorf("lead_id should be null for unlinked job, got %q", *body.LeadID)
	}
}

func TestJobHandler_Create_AcceptsRFC3339(t *testing.T) {
	var got model.JobInput
	svc := &mockJobService{
		createFn: func(ctx context.Context, userID string, in model.JobInput) (*model.Job, error) {
			got = in
			return &model.Job{ID: "job-1"}, nil
		},
	}
	h := NewJobHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/api/jobs", map[string]any{
		"title":          "Deck build",
		"scheduled_date": "2024-06-01T09:30:00Z",
	})
	w := httptest.NewRecorder()
	h.Create(w, withUser(req, professionalUser()))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.ScheduledDate == nil || got.ScheduledDate.Hour() != 9 {
		t.Errorf("scheduled_date = %v", got.ScheduledDate)
	}
}

func TestJobHandler_Create_InvalidDate_Returns400(t *testing.T) {
	called := false
	svc := &mockJobService{
		createFn: func(ctx context.Context, userID string, in model.JobInput) (*model.Job, error) {
			called = true
			return nil, nil
		},
	}
	h := NewJobHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/api/jobs", map[string]any{
		"title":          "Deck build",
		"scheduled_date": "next tuesday",
	})
	w := httptest.NewRecorder()
	h.Create(w, withUser(req, professionalUser()))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service should not be called for invalid date")
	}
	if body := parseErrorBody(t, w); body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q", body.Code)
	}
}

func TestJobHandler_Update_CompletedStatus(t *testing.T) {
	completedAt := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	var gotID string
	svc := &mockJobService{
		updateFn: func(ctx context.Context, userID, jobID string, in model.JobInput) (*model.Job, error) {
			gotID = jobID
			if in.Status == nil || *in.Status != model.JobStatusCompleted {
				t.Errorf("status = %v", in.Status)
			}
			return &model.Job{ID: jobID, Status: model.JobStatusCompleted, CompletedAt: &completedAt}, nil
		},
	}
	h := NewJobHandler(svc)

	req := jsonRequest(t, http.MethodPut, "/api/jobs/job-4", map[string]string{"status": "completed"})
	req = withChiURLParam(req, "id", "job-4")
	w := httptest.NewRecorder()
	h.Update(w, withUser(req, professionalUser()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotID != "job-4" {
		t.Errorf("jobID = %q", gotID)
	}
	var body jobResponse
	parseJSON(t, w, &body)
	if body.CompletedAt == nil || !body.CompletedAt.Equal(completedAt) {
		t.Errorf("completed_at = %v", body.CompletedAt)
	}
}

func TestJobHandler_GetAndDelete(t *testing.T) {
	deleted := ""
	svc := &mockJobService{
		deleteFn: func(ctx context.Context, userID, jobID string) error {
			deleted = jobID
			return nil
		},
	}
	h := NewJobHandler(svc)

	w := httptest.NewRecorder()
	h.Get(w, withUser(withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil), "id", "x"), professionalUser()))
	if w.Code != http.StatusNotFound {
		t.Errorf("get status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = httptest.NewRecorder()
	h.Delete(w, withUser(withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/jobs/job-5", nil), "id", "job-5"), professionalUser()))
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if deleted != "job-5" {
		t.Errorf("deleted = %q", deleted)
	}
}

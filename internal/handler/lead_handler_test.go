package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// --- モック定義 ---

type mockLeadService struct {
	listFn            func(ctx context.Context, userID string) ([]*model.Lead, error)
	getFn             func(ctx context.Context, userID, leadID string) (*model.Lead, error)
	createFn          func(ctx context.Context, userID string, in model.LeadInput) (*model.Lead, error)
	updateFn          func(ctx context.Context, userID, leadID string, in model.LeadInput) (*model.Lead, error)
	deleteFn          func(ctx context.Context, userID, leadID string) error
	checkDuplicatesFn func(ctx context.Context, userID string, in model.LeadInput) (*model.DuplicateCheck, error)
}

func (m *mockLeadService) List(ctx context.Context, userID string) ([]*model.Lead, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLeadService) Get(ctx context.Context, userID, leadID string) (*model.Lead, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, leadID)
	}
	return nil, model.NewLeadNotFoundError(leadID)
}

func (m *mockLeadService) Create(ctx context.Context, userID string, in model.LeadInput) (*model.Lead, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockLeadService) Update(ctx context.Context, userID, leadID string, in model.LeadInput) (*model.Lead, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, leadID, in)
	}
	return nil, nil
}

func (m *mockLeadService) Delete(ctx context.Context, userID, leadID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, leadID)
	}
	return nil
}

func (m *mockLeadService) CheckDuplicates(ctx context.Context, userID string, in model.LeadInput) (*model.DuplicateCheck, error) {
	if m.checkDuplicatesFn != nil {
		return m.checkDuplicatesFn(ctx, userID, in)
	}
	return &model.DuplicateCheck{}, nil
}

func sampleLead(id string) *model.Lead {
	return &model.Lead{
		ID:             id,
		UserID:         "user-1",
		Name:           "Jane Roe",
		Email:          "jane@example.com",
		Phone:          "5551234567",
		Status:         model.LeadStatusNew,
		EstimatedValue: 1200,
	}
}

// --- テスト ---

func TestLeadHandler_List_ReturnsArray(t *testing.T) {
	var gotUser string
	svc := &mockLeadService{
		listFn: func(ctx context.Context, userID string) ([]*model.Lead, error) {
			gotUser = userID
			return []*model.Lead{sampleLead("lead-1"), sampleLead("lead-2")}, nil
		},
	}
	h := NewLeadHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, withUser(httptest.NewRequest(http.MethodGet, "/api/leads", nil), freeUser()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUser != "user-1" {
		t.Errorf("userID = %q", gotUser)
	}
	var body []leadResponse
	parseJSON(t, w, &body)
	if len(body) != 2 || body[0].ID != "lead-1" || body[0].EstimatedValue != 1200 {
		t.Errorf("body = %+v", body)
	}
}

func TestLeadHandler_List_EmptyIsArray(t *testing.T) {
	h := NewLeadHandler(&mockLeadService{})

	w := httptest.NewRecorder()
	h.List(w, withUser(httptest.NewRequest(http.MethodGet, "/api/leads", nil), freeUser()))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestLeadHandler_NoUser_Returns401(t *testing.T) {
	h := NewLeadHandler(&mockLeadService{})

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/leads", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLeadHandler_Create_Returns201(t *testing.T) {
	var got model.LeadInput
	svc := &mockLeadService{
		createFn: func(ctx context.Context, userID string, in model.LeadInput) (*model.Lead, error) {
			got = in
			return sampleLead("lead-new"), nil
		},
	}
	h := NewLeadHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/api/leads", map[string]any{
		"name":            "Jane Roe",
		"email":           "jane@example.com",
		"status":          "contacted",
		"estimated_value": 1200.5,
	})
	w := httptest.NewRecorder()
	h.Create(w, withUser(req, freeUser()))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Name == nil || *got.Name != "Jane Roe" {
		t.Errorf("name = %v", got.Name)
	}
	if got.Status == nil || *got.Status != model.LeadStatusContacted {
		t.Errorf("status = %v", got.Status)
	}
	if got.EstimatedValue == nil || *got.EstimatedValue != 1200.5 {
		t.Errorf("estimated_value = %v", got.EstimatedValue)
	}
	if got.Phone != nil {
		t.Errorf("phone should be nil when omitted, got %q", *got.Phone)
	}
}

func TestLeadHandler_Create_LimitReached_Returns402WithCounts(t *testing.T) {
	svc := &mockLeadService{
		createFn: func(ctx context.Context, userID string, in model.LeadInput) (*model.Lead, error) {
			return nil, model.NewLeadLimitError(50, 50)
		},
	}
	h := NewLeadHandler(svc)

	w := httptest.NewRecorder()
	h.Create(w, withUser(jsonRequest(t, http.MethodPost, "/api/leads", map[string]string{"name": "x"}), freeUser()))

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusPaymentRequired)
	}
	body := parseErrorBody(t, w)
	if !body.LimitReached || body.Code != model.ErrCodeLeadLimitReached {
		t.Errorf("body = %+v", body)
	}
	if body.CurrentCount == nil || *body.CurrentCount != 50 || body.Limit == nil || *body.Limit != 50 {
		t.Errorf("counts = %v/%v", body.CurrentCount, body.Limit)
	}
}

func TestLeadHandler_Create_ExactDuplicate_Returns409(t *testing.T) {
	svc := &mockLeadService{
		createFn: func(ctx context.Context, userID string, in model.LeadInput) (*model.Lead, error) {
			return nil, model.NewDuplicateLeadError()
		},
	}
	h := NewLeadHandler(svc)

	w := httptest.NewRecorder()
	h.Create(w, withUser(jsonRequest(t, http.MethodPost, "/api/leads", map[string]string{"name": "x"}), freeUser()))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if body := parseErrorBody(t, w); !body.HasExactDuplicates {
		t.Errorf("hasExactDuplicates should be true: %+v", body)
	}
}

func TestLeadHandler_Create_InvalidJSON_Returns400(t *testing.T) {
	h := NewLeadHandler(&mockLeadService{})

	req := httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{"name":`))
	w := httptest.NewRecorder()
	h.Create(w, withUser(req, freeUser()))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseErrorBody(t, w); body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q", body.Code)
	}
}

func TestLeadHandler_Get_NotFound_Returns404(t *testing.T) {
	h := NewLeadHandler(&mockLeadService{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/leads/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	h.Get(w, withUser(req, freeUser()))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestLeadHandler_Update_PassesIDAndFields(t *testing.T) {
	var gotID string
	var got model.LeadInput
	svc := &mockLeadService{
		updateFn: func(ctx context.Context, userID, leadID string, in model.LeadInput) (*model.Lead, error) {
			gotID = leadID
			got = in
			l := sampleLead(leadID)
			l.Status = model.LeadStatusWon
			return l, nil
		},
	}
	h := NewLeadHandler(svc)

	req := jsonRequest(t, http.MethodPut, "/api/leads/lead-9", map[string]string{"status": "won"})
	req = withChiURLParam(req, "id", "lead-9")
	w := httptest.NewRecorder()
	h.Update(w, withUser(req, freeUser()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotID != "lead-9" {
		t.Errorf("leadID = %q", gotID)
	}
	if got.Name != nil || got.Status == nil || *got.Status != model.LeadStatusWon {
		t.Errorf("input = %+v", got)
	}
	var body leadResponse
	parseJSON(t, w, &body)
	if body.Status != "won" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestLeadHandler_Delete_Returns204(t *testing.T) {
	var gotID string
	svc := &mockLeadService{
		deleteFn: func(ctx context.Context, userID, leadID string) error {
			gotID = leadID
			return nil
		},
	}
	h := NewLeadHandler(svc)

	req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/leads/lead-3", nil), "id", "lead-3")
	w := httptest.NewRecorder()
	h.Delete(w, withUser(req, freeUser()))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotID != "lead-3" {
		t.Errorf("leadID = %q", gotID)
	}
}

func TestLeadHandler_CheckDuplicates_ReturnsMatches(t *testing.T) {
	svc := &mockLeadService{
		checkDuplicatesFn: func(ctx context.Context, userID string, in model.LeadInput) (*model.DuplicateCheck, error) {
			return &model.DuplicateCheck{
				HasPotentialDuplicates: true,
				PotentialMatches:       []*model.Lead{sampleLead("lead-1")},
			}, nil
		},
	}
	h := NewLeadHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/api/leads/check-duplicates", map[string]string{"name": "Jane Roe"})
	w := httptest.NewRecorder()
	h.CheckDuplicates(w, withUser(req, freeUser()))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body duplicateCheckResponse
	parseJSON(t, w, &body)
	if body.HasExactDuplicates || !body.HasPotentialDuplicates {
		t.Errorf("flags = %+v", body)
	}
	if len(body.ExactMatches) != 0 || len(body.PotentialMatches) != 1 {
		t.Errorf("matches = %d/%d", len(body.ExactMatches), len(body.PotentialMatches))
	}
}

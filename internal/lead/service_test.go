package lead

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
	"github.com/hitoshi/steadyleadflow/internal/security"
)

// --- モック定義 ---

type mockLeadRepo struct {
	listFn       func(ctx context.Context, userID string) ([]*model.Lead, error)
	findByIDFn   func(ctx context.Context, userID, id string) (*model.Lead, error)
	createFn     func(ctx context.Context, lead *model.Lead) (repository.LeadQuota, error)
	updateFn     func(ctx context.Context, lead *model.Lead) (bool, error)
	deleteFn     func(ctx context.Context, userID, id string) (bool, error)
	duplicatesFn func(ctx context.Context, userID, email, phone, name string) ([]*model.Lead, error)
}

func (m *mockLeadRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Lead, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []*model.Lead{}, nil
}

func (m *mockLeadRepo) FindByID(ctx context.Context, userID, id string) (*model.Lead, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, userID, id)
	}
	return nil, nil
}

func (m *mockLeadRepo) CreateWithQuota(ctx context.Context, lead *model.Lead) (repository.LeadQuota, error) {
	if m.createFn != nil {
		return m.createFn(ctx, lead)
	}
	return repository.LeadQuota{Current: 1, Limit: 50}, nil
}

func (m *mockLeadRepo) Update(ctx context.Context, lead *model.Lead) (bool, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, lead)
	}
	return true, nil
}

func (m *mockLeadRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return true, nil
}

func (m *mockLeadRepo) FindDuplicateCandidates(ctx context.Context, userID, email, phone, name string) ([]*model.Lead, error) {
	if m.duplicatesFn != nil {
		return m.duplicatesFn(ctx, userID, email, phone, name)
	}
	return nil, nil
}

func (m *mockLeadRepo) CountByStatus(_ context.Context, _ string) (map[model.LeadStatus]int, error) {
	return map[model.LeadStatus]int{}, nil
}

var _ repository.LeadRepository = (*mockLeadRepo)(nil)

type mockMetrics struct {
	created  int
	rejected int
}

func (m *mockMetrics) RecordLeadCreated()       { m.created++ }
func (m *mockMetrics) RecordLeadLimitRejected() { m.rejected++ }

func strPtr(s string) *string { return &s }

func newTestService(repo *mockLeadRepo) (*Service, *mockMetrics) {
	m := &mockMetrics{}
	svc := NewService(repo, security.NewContentSanitizer(), m)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return svc, m
}

// --- テスト ---

func TestCreate_Success_SanitizesAndRecords(t *testing.T) {
	var saved *model.Lead
	repo := &mockLeadRepo{
		createFn: func(_ context.Context, lead *model.Lead) (repository.LeadQuota, error) {
			saved = lead
			return repository.LeadQuota{Current: 3, Limit: 50}, nil
		},
	}
	svc, metrics := newTestService(repo)

	lead, err := svc.Create(context.Background(), "user-1", model.LeadInput{
		Name:  strPtr("  Jane Doe "),
		Email: strPtr("Jane@Example.com"),
		Notes: strPtr(`<p>Needs quote</p><script>alert(1)</script>`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if saved == nil || saved.UserID != "user-1" {
		t.Fatalf("saved = %+v", saved)
	}
	if lead.Name != "Jane Doe" {
		t.Errorf("Name = %q, want trimmed", lead.Name)
	}
	if lead.Email != "jane@example.com" {
		t.Errorf("Email = %q, want lowercased", lead.Email)
	}
	if lead.Status != model.LeadStatusNew {
		t.Errorf("Status = %q, want new", lead.Status)
	}
	if lead.Notes != "<p>Needs quote</p>" {
		t.Errorf("Notes = %q, want script removed", lead.Notes)
	}
	if lead.ID == "" {
		t.Error("ID should be generated")
	}
	if metrics.created != 1 {
		t.Errorf("created metric = %d, want 1", metrics.created)
	}
}

func TestCreate_EmptyName_ReturnsValidationError(t *testing.T) {
	repo := &mockLeadRepo{
		createFn: func(_ context.Context, _ *model.Lead) (repository.LeadQuota, error) {
			t.Error("CreateWithQuota should not be called")
			return repository.LeadQuota{}, nil
		},
	}
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), "user-1", model.LeadInput{Name: strPtr("   ")})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("error = %v, want validation error", err)
	}
}

func TestCreate_LimitReached_ReturnsLimitError(t *testing.T) {
	repo := &mockLeadRepo{
		createFn: func(_ context.Context, _ *model.Lead) (repository.LeadQuota, error) {
			return repository.LeadQuota{Current: 50, Limit: 50}, repository.ErrLeadLimitReached
		},
	}
	svc, metrics := newTestService(repo)

	_, err := svc.Create(context.Background(), "user-1", model.LeadInput{Name: strPtr("Jane")})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if !apiErr.LimitReached || apiErr.CurrentCount != 50 || apiErr.Limit != 50 {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if apiErr.HTTPStatus() != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", apiErr.HTTPStatus())
	}
	if metrics.rejected != 1 || metrics.created != 0 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestCreate_ExactDuplicate_ReturnsConflict(t *testing.T) {
	repo := &mockLeadRepo{
		duplicatesFn: func(_ context.Context, _, _, _, _ string) ([]*model.Lead, error) {
			return []*model.Lead{{ID: "lead-9", Name: "Someone", Phone: "(555) 010-0"}}, nil
		},
		createFn: func(_ context.Context, _ *model.Lead) (repository.LeadQuota, error) {
			t.Error("CreateWithQuota should not be called for a duplicate")
			return repository.LeadQuota{}, nil
		},
	}
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), "user-1", model.LeadInput{
		Name:  strPtr("Jane"),
		Phone: strPtr("555-0100"),
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || !apiErr.HasExactDuplicates {
		t.Fatalf("error = %v, want duplicate error", err)
	}
	if apiErr.HTTPStatus() != http.StatusConflict {
		t.Errorf("status = %d, want 409", apiErr.HTTPStatus())
	}
}

func TestCheckDuplicates_ClassifiesMatches(t *testing.T) {
	var gotEmail, gotPhone, gotName string
	repo := &mockLeadRepo{
		duplicatesFn: func(_ context.Context, _, email, phone, name string) ([]*model.Lead, error) {
			gotEmail, gotPhone, gotName = email, phone, name
			return []*model.Lead{
				{ID: "by-email", Name: "J. Doe", Email: "JANE@example.com"},
				{ID: "by-phone", Name: "Other", Phone: "+1 (555) 0100"},
				{ID: "by-name", Name: "jane doe"},
			}, nil
		},
	}
	svc, _ := newTestService(repo)

	result, err := svc.CheckDuplicates(context.Background(), "user-1", model.LeadInput{
		Name:  strPtr("Jane Doe"),
		Email: strPtr(" jane@example.com "),
		Phone: strPtr("+1 555-0100"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotEmail != "jane@example.com" || gotPhone != "15550100" || gotName != "Jane Doe" {
		t.Errorf("repo args = %q, %q, %q", gotEmail, gotPhone, gotName)
	}
	if !result.HasExactDuplicates || len(result.ExactMatches) != 2 {
		t.Errorf("exact = %d, want 2", len(result.ExactMatches))
	}
	if !result.HasPotentialDuplicates || len(result.PotentialMatches) != 1 || result.PotentialMatches[0].ID != "by-name" {
		t.Errorf("potential = %+v", result.PotentialMatches)
	}
}

func TestCheckDuplicates_EmptyInput_SkipsQuery(t *testing.T) {
	repo := &mockLeadRepo{
		duplicatesFn: func(_ context.Context, _, _, _, _ string) ([]*model.Lead, error) {
			t.Error("repository should not be queried for empty input")
			return nil, nil
		},
	}
	svc, _ := newTestService(repo)

	result, err := svc.CheckDuplicates(context.Background(), "user-1", model.LeadInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HasExactDuplicates || result.HasPotentialDuplicates {
		t.Errorf("result = %+v", result)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(&mockLeadRepo{})

	_, err := svc.Get(context.Background(), "user-1", "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLeadNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestUpdate_PartialFields(t *testing.T) {
	existing := &model.Lead{ID: "lead-1", UserID: "user-1", Name: "Jane", Email: "jane@example.com", Status: model.LeadStatusNew}
	var updated *model.Lead
	repo := &mockLeadRepo{
		findByIDFn: func(_ context.Context, _, _ string) (*model.Lead, error) { return existing, nil },
		updateFn: func(_ context.Context, lead *model.Lead) (bool, error) {
			updated = lead
			return true, nil
		},
	}
	svc, _ := newTestService(repo)
	status := model.LeadStatusWon

	lead, err := svc.Update(context.Background(), "user-1", "lead-1", model.LeadInput{Status: &status})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || lead.Status != model.LeadStatusWon {
		t.Errorf("lead = %+v", lead)
	}
	if lead.Email != "jane@example.com" {
		t.Errorf("Email changed unexpectedly: %q", lead.Email)
	}
}

func TestUpdate_InvalidStatus(t *testing.T) {
	repo := &mockLeadRepo{
		findByIDFn: func(_ context.Context, _, _ string) (*model.Lead, error) {
			return &model.Lead{ID: "lead-1", Name: "Jane", Status: model.LeadStatusNew}, nil
		},
	}
	svc, _ := newTestService(repo)
	status := model.LeadStatus("archived")

	_, err := svc.Update(context.Background(), "user-1", "lead-1", model.LeadInput{Status: &status})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("error = %v, want validation error", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo := &mockLeadRepo{
		deleteFn: func(_ context.Context, _, _ string) (bool, error) { return false, nil },
	}
	svc, _ := newTestService(repo)

	err := svc.Delete(context.Background(), "user-1", "lead-x")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLeadNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"(555) 010-0100":  "5550100100",
		"+1 555.010.0100": "15550100100",
		"":                "",
		"ext":             "",
	}
	for in, want := range tests {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

// Package lead はリード管理のドメインロジックを提供する。
// 月間作成上限と重複検出はここで判定する。
package lead

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
	"github.com/hitoshi/steadyleadflow/internal/security"
)

// Metrics はリードサービスが記録するメトリクス。
type Metrics interface {
	RecordLeadCreated()
	RecordLeadLimitRejected()
}

// Service はリード管理のサービス層。
type Service struct {
	leadRepo  repository.LeadRepository
	sanitizer security.ContentSanitizer
	metrics   Metrics
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(leadRepo repository.LeadRepository, sanitizer security.ContentSanitizer, metrics Metrics) *Service {
	return &Service{
		leadRepo:  leadRepo,
		sanitizer: sanitizer,
		metrics:   metrics,
		now:       time.Now,
	}
}

// List はユーザーのリード一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Lead, error) {
	leads, err := s.leadRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リード一覧の取得に失敗しました: %w", err)
	}
	return leads, nil
}

// Get はユーザーのリードを1件返す。
func (s *Service) Get(ctx context.Context, userID, leadID string) (*model.Lead, error) {
	lead, err := s.leadRepo.FindByID(ctx, userID, leadID)
	if err != nil {
		return nil, fmt.Errorf("リードの取得に失敗しました: %w", err)
	}
	if lead == nil {
		return nil, model.NewLeadNotFoundError(leadID)
	}
	return lead, nil
}

// Create はリードを作成する。
// メールアドレスまたは電話番号が完全一致する既存リードがある場合は重複エラー、
// 月間上限に達している場合は上限エラーを返す。
func (s *Service) Create(ctx context.Context, userID string, in model.LeadInput) (*model.Lead, error) {
	now := s.now()
	lead := &model.Lead{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    model.LeadStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.apply(lead, in)

	if err := validate(lead); err != nil {
		return nil, err
	}

	check, err := s.CheckDuplicates(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	if check.HasExactDuplicates {
		return nil, model.NewDuplicateLeadError()
	}

	quota, err := s.leadRepo.CreateWithQuota(ctx, lead)
	if errors.Is(err, repository.ErrLeadLimitReached) {
		s.metrics.RecordLeadLimitRejected()
		slog.Info("lead creation rejected by monthly limit",
			slog.String("user_id", userID),
			slog.Int("current", quota.Current),
			slog.Int("limit", quota.Limit),
		)
		return nil, model.NewLeadLimitError(quota.Current, quota.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("リードの作成に失敗しました: %w", err)
	}

	s.metrics.RecordLeadCreated()
	return lead, nil
}

// Update はリードを部分更新する。nilフィールドは変更しない。
func (s *Service) Update(ctx context.Context, userID, leadID string, in model.LeadInput) (*model.Lead, error) {
	lead, err := s.Get(ctx, userID, leadID)
	if err != nil {
		return nil, err
	}

	s.apply(lead, in)
	if err := validate(lead); err != nil {
		return nil, err
	}
	lead.UpdatedAt = s.now()

	ok, err := s.leadRepo.Update(ctx, lead)
	if err != nil {
		return nil, fmt.Errorf("リードの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewLeadNotFoundError(leadID)
	}
	return lead, nil
}

// Delete はリードを削除する。月間カウンタは減算しない。
func (s *Service) Delete(ctx context.Context, userID, leadID string) error {
	ok, err := s.leadRepo.Delete(ctx, userID, leadID)
	if err != nil {
		return fmt.Errorf("リードの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewLeadNotFoundError(leadID)
	}
	return nil
}

// CheckDuplicates は入力値と一致する既存リードを分類して返す。
// メールアドレス（大文字小文字無視）または数字のみに正規化した電話番号の一致は完全一致、
// 名前のみの一致は重複候補とする。
func (s *Service) CheckDuplicates(ctx context.Context, userID string, in model.LeadInput) (*model.DuplicateCheck, error) {
	email := strings.ToLower(strings.TrimSpace(deref(in.Email)))
	phone := NormalizePhone(deref(in.Phone))
	name := strings.TrimSpace(deref(in.Name))

	result := &model.DuplicateCheck{
		ExactMatches:     make([]*model.Lead, 0),
		PotentialMatches: make([]*model.Lead, 0),
	}
	if email == "" && phone == "" && name == "" {
		return result, nil
	}

	candidates, err := s.leadRepo.FindDuplicateCandidates(ctx, userID, email, phone, name)
	if err != nil {
		return nil, fmt.Errorf("重複チェックに失敗しました: %w", err)
	}

	for _, c := range candidates {
		switch {
		case email != "" && strings.EqualFold(c.Email, email),
			phone != "" && NormalizePhone(c.Phone) == phone:
			result.ExactMatches = append(result.ExactMatches, c)
		case name != "" && strings.EqualFold(c.Name, name):
			result.PotentialMatches = append(result.PotentialMatches, c)
		}
	}
	result.HasExactDuplicates = len(result.ExactMatches) > 0
	result.HasPotentialDuplicates = len(result.PotentialMatches) > 0

	return result, nil
}

// NormalizePhone は電話番号から数字以外を除去する。
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}

// apply は入力値をリードに反映する。単一行フィールドはタグを除去し、メモはサニタイズする。
func (s *Service) apply(lead *model.Lead, in model.LeadInput) {
	if in.Name != nil {
		lead.Name = s.sanitizer.Plain(*in.Name)
	}
	if in.Email != nil {
		lead.Email = strings.ToLower(s.sanitizer.Plain(*in.Email))
	}
	if in.Phone != nil {
		lead.Phone = s.sanitizer.Plain(*in.Phone)
	}
	if in.Company != nil {
		lead.Company = s.sanitizer.Plain(*in.Company)
	}
	if in.Source != nil {
		lead.Source = s.sanitizer.Plain(*in.Source)
	}
	if in.Status != nil {
		lead.Status = *in.Status
	}
	if in.Notes != nil {
		lead.Notes = s.sanitizer.Sanitize(*in.Notes)
	}
	if in.EstimatedValue != nil {
		lead.EstimatedValue = *in.EstimatedValue
	}
}

func validate(lead *model.Lead) error {
	if lead.Name == "" {
		return model.NewValidationError("Name is required.")
	}
	if len(lead.Name) > 255 {
		return model.NewValidationError("Name must be 255 characters or fewer.")
	}
	if lead.Email != "" && !strings.Contains(lead.Email, "@") {
		return model.NewValidationError("Email address is invalid.")
	}
	if !lead.Status.Valid() {
		return model.NewValidationError(fmt.Sprintf("Unknown lead status: %s", lead.Status))
	}
	if lead.EstimatedValue < 0 {
		return model.NewValidationError("Estimated value must not be negative.")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

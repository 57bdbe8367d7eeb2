// Package proposal は見積書管理のドメインロジックを提供する。
package proposal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
	"github.com/hitoshi/steadyleadflow/internal/security"
)

// LeadFinder はリードの所有確認に必要なインターフェース。
type LeadFinder interface {
	FindByID(ctx context.Context, userID, id string) (*model.Lead, error)
}

// CreateInput は見積書作成時の入力値を表す。
type CreateInput struct {
	LeadID     string
	Title      string
	Amount     float64
	ValidUntil *time.Time
}

// Service は見積書管理のサービス層。
type Service struct {
	repo      repository.ProposalRepository
	leads     LeadFinder
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ProposalRepository, leads LeadFinder, sanitizer security.ContentSanitizer) *Service {
	return &Service{repo: repo, leads: leads, sanitizer: sanitizer, now: time.Now}
}

// List はユーザーの見積書一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Proposal, error) {
	proposals, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("見積書一覧の取得に失敗しました: %w", err)
	}
	return proposals, nil
}

// Get はユーザーの見積書を1件返す。
func (s *Service) Get(ctx context.Context, userID, proposalID string) (*model.Proposal, error) {
	p, err := s.repo.FindByID(ctx, userID, proposalID)
	if err != nil {
		return nil, fmt.Errorf("見積書の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProposalNotFoundError(proposalID)
	}
	return p, nil
}

// Create は下書き状態の見積書を作成する。番号はDBが採番する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Proposal, error) {
	title := s.sanitizer.Plain(in.Title)
	if title == "" {
		return nil, model.NewValidationError("Title is required.")
	}
	if in.Amount < 0 {
		return nil, model.NewValidationError("Amount must not be negative.")
	}
	if in.LeadID == "" {
		return nil, model.NewValidationError("Lead is required.")
	}

	lead, err := s.leads.FindByID(ctx, userID, in.LeadID)
	if err != nil {
		return nil, fmt.Errorf("リードの取得に失敗しました: %w", err)
	}
	if lead == nil {
		return nil, model.NewLeadNotFoundError(in.LeadID)
	}

	now := s.now()
	p := &model.Proposal{
		ID:         uuid.New().String(),
		UserID:     userID,
		LeadID:     in.LeadID,
		Title:      title,
		Amount:     in.Amount,
		Status:     model.ProposalStatusDraft,
		ValidUntil: in.ValidUntil,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("見積書の作成に失敗しました: %w", err)
	}
	return p, nil
}

// UpdateStatus は見積書のステータスを更新する。
func (s *Service) UpdateStatus(ctx context.Context, userID, proposalID string, status model.ProposalStatus) (*model.Proposal, error) {
	if !status.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("Unknown proposal status: %s", status))
	}

	ok, err := s.repo.UpdateStatus(ctx, userID, proposalID, status)
	if err != nil {
		return nil, fmt.Errorf("見積書の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewProposalNotFoundError(proposalID)
	}
	return s.Get(ctx, userID, proposalID)
}

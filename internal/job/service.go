// Package job は案件管理のドメインロジックを提供する。
package job

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

// Service は案件管理のサービス層。
type Service struct {
	jobRepo   repository.JobRepository
	leads     LeadFinder
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(jobRepo repository.JobRepository, leads LeadFinder, sanitizer security.ContentSanitizer) *Service {
	return &Service{
		jobRepo:   jobRepo,
		leads:     leads,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List はユーザーの案件一覧を返す。leadIDを指定した場合はそのリードの案件のみ返す。
func (s *Service) List(ctx context.Context, userID, leadID string) ([]*model.Job, error) {
	if leadID != "" {
		if err := s.ensureLead(ctx, userID, leadID); err != nil {
			return nil, err
		}
	}

	jobs, err := s.jobRepo.ListByUserID(ctx, userID, leadID)
	if err != nil {
		return nil, fmt.Errorf("案件一覧の取得に失敗しました: %w", err)
	}
	return jobs, nil
}

// Get はユーザーの案件を1件返す。
func (s *Service) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := s.jobRepo.FindByID(ctx, userID, jobID)
	if err != nil {
		return nil, fmt.Errorf("案件の取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return job, nil
}

// Create は案件を作成する。
func (s *Service) Create(ctx context.Context, userID string, in model.JobInput) (*model.Job, error) {
	now := s.now()
	job := &model.Job{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    model.JobStatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(ctx, job, in); err != nil {
		return nil, err
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("案件の作成に失敗しました: %w", err)
	}
	return job, nil
}

// Update は案件を部分更新する。
func (s *Service) Update(ctx context.Context, userID, jobID string, in model.JobInput) (*model.Job, error) {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, job, in); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.now()

	ok, err := s.jobRepo.Update(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("案件の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return job, nil
}

// Delete は案件を削除する。
func (s *Service) Delete(ctx context.Context, userID, jobID string) error {
	ok, err := s.jobRepo.Delete(ctx, userID, jobID)
	if err != nil {
		return fmt.Errorf("案件の削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewJobNotFoundError(jobID)
	}
	return nil
}

// apply は入力値を反映して検証する。
// 完了ステータスへの遷移時に完了日時を記録し、完了以外に戻した場合は消去する。
func (s *Service) apply(ctx context.Context, job *model.Job, in model.JobInput) error {
	if in.Title != nil {
		job.Title = s.sanitizer.Plain(*in.Title)
	}
	if in.Description != nil {
		job.Description = s.sanitizer.Sanitize(*in.Description)
	}
	if in.Value != nil {
		job.Value = *in.Value
	}
	if in.ScheduledDate != nil {
		d := *in.ScheduledDate
		job.ScheduledDate = &d
	}
	if in.LeadID != nil {
		job.LeadID = *in.LeadID
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return model.NewValidationError(fmt.Sprintf("Unknown job status: %s", *in.Status))
		}
		job.Status = *in.Status
	}

	if job.Title == "" {
		return model.NewValidationError("Title is required.")
	}
	if job.Value < 0 {
		return model.NewValidationError("Value must not be negative.")
	}

	switch {
	case job.Status == model.JobStatusCompleted && job.CompletedAt == nil:
		now := s.now()
		job.CompletedAt = &now
	case job.Status != model.JobStatusCompleted:
		job.CompletedAt = nil
	}

	if in.LeadID != nil && job.LeadID != "" {
		return s.ensureLead(ctx, job.UserID, job.LeadID)
	}
	return nil
}

func (s *Service) ensureLead(ctx context.Context, userID, leadID string) error {
	lead, err := s.leads.FindByID(ctx, userID, leadID)
	if err != nil {
		return fmt.Errorf("リードの取得に失敗しました: %w", err)
	}
	if lead == nil {
		return model.NewLeadNotFoundError(leadID)
	}
	return nil
}

// Package analytics は集計値とスナップショットのドメインロジックを提供する。
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
)

// DefaultSnapshotDays はスナップショット一覧のデフォルト期間（日数）。
const DefaultSnapshotDays = 30

// MaxSnapshotDays はスナップショット一覧で指定できる最大期間（日数）。
const MaxSnapshotDays = 365

// Service は集計のサービス層。
type Service struct {
	userRepo     repository.UserRepository
	leadRepo     repository.LeadRepository
	jobRepo      repository.JobRepository
	snapshotRepo repository.SnapshotRepository
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	leadRepo repository.LeadRepository,
	jobRepo repository.JobRepository,
	snapshotRepo repository.SnapshotRepository,
) *Service {
	return &Service{
		userRepo:     userRepo,
		leadRepo:     leadRepo,
		jobRepo:      jobRepo,
		snapshotRepo: snapshotRepo,
		now:          time.Now,
	}
}

// Statistics はダッシュボード用の集計値を返す。
// 成約率は won / total の百分率（小数第2位で丸め）。
func (s *Service) Statistics(ctx context.Context, userID string) (*model.Statistics, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	byStatus, err := s.leadRepo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リード集計に失敗しました: %w", err)
	}
	jobs, err := s.jobRepo.Summarize(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("案件集計に失敗しました: %w", err)
	}

	stats := &model.Statistics{
		LeadsByStatus:     byStatus,
		TotalJobs:         jobs.Total,
		CompletedJobs:     jobs.Completed,
		TotalJobValue:     jobs.TotalValue,
		CurrentMonthLeads: user.CurrentMonthLeads,
		MonthlyLeadLimit:  user.MonthlyLeadLimit,
	}
	for _, n := range byStatus {
		stats.TotalLeads += n
	}
	if stats.TotalLeads > 0 {
		rate := float64(byStatus[model.LeadStatusWon]) * 100 / float64(stats.TotalLeads)
		stats.ConversionRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// Snapshots は直近days日分のスナップショットを返す。
// daysが0以下の場合はデフォルト、上限を超える場合は上限に丸める。
func (s *Service) Snapshots(ctx context.Context, userID string, days int) ([]*model.AnalyticsSnapshot, error) {
	if days <= 0 {
		days = DefaultSnapshotDays
	}
	if days > MaxSnapshotDays {
		days = MaxSnapshotDays
	}

	since := s.now().UTC().AddDate(0, 0, -(days - 1))
	snapshots, err := s.snapshotRepo.ListByUserID(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("スナップショットの取得に失敗しました: %w", err)
	}
	return snapshots, nil
}

// UpsertAll は全ユーザーの当日スナップショットを保存し、成功件数を返す。
// 個別ユーザーの失敗はログに記録して処理を継続する。
func (s *Service) UpsertAll(ctx context.Context) (int, error) {
	ids, err := s.userRepo.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	today := s.now().UTC()
	upserted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return upserted, ctx.Err()
		}
		if err := s.snapshotRepo.UpsertForUser(ctx, id, today); err != nil {
			slog.Warn("スナップショットの保存に失敗しました",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		upserted++
	}
	return upserted, nil
}

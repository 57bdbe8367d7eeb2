// Package cleanup は定期メンテナンスジョブを提供する。
// 期限切れセッションの削除と、月替わり時の月間リード数リセットを行う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionExpirer は期限切れセッションを削除する。
type SessionExpirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// LeadCounterResetter は前月以前にリセットされたユーザーの月間リード数を0に戻す。
type LeadCounterResetter interface {
	ResetMonthlyLeadCounts(ctx context.Context, now time.Time) (int64, error)
}

// Recorder は削除したセッション数を記録する。
type Recorder interface {
	RecordSessionsExpired(count int64)
}

// CleanupJob は定期メンテナンスジョブ。
// どちらの処理も冪等で、対象がなくてもエラーにならない。
type CleanupJob struct {
	sessions SessionExpirer
	users    LeadCounterResetter
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionExpirer, users LeadCounterResetter, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		users:    users,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は期限切れセッションを削除し、月間リード数をリセットする。
// セッション削除に失敗してもリセットは実行し、最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	var firstErr error

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		firstErr = fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	} else if deleted > 0 {
		j.recorder.RecordSessionsExpired(deleted)
	}

	reset, err := j.users.ResetMonthlyLeadCounts(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("月間リード数のリセットに失敗しました",
			slog.String("error", err.Error()),
		)
		if firstErr == nil {
			firstErr = fmt.Errorf("月間リード数のリセットに失敗: %w", err)
		}
	}

	if firstErr != nil {
		return firstErr
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", deleted),
		slog.Int64("reset_users", reset),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、その後 interval ごとに実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *CleanupJob) runAndLog(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}

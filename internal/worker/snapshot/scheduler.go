// Package snapshot は分析スナップショットの定期保存ジョブを提供する。
package snapshot

import (
	"context"
	"log/slog"
	"time"
)

// Upserter は全ユーザーの当日スナップショットを保存する。
type Upserter interface {
	UpsertAll(ctx context.Context) (int, error)
}

// Recorder は保存したスナップショット件数を記録する。
type Recorder interface {
	RecordSnapshotsUpserted(count int)
}

// Scheduler はスナップショット保存を一定間隔で実行する。
type Scheduler struct {
	upserter Upserter
	recorder Recorder
	logger   *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(upserter Upserter, recorder Recorder, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		upserter: upserter,
		recorder: recorder,
		logger:   logger,
	}
}

// Start は起動直後に1回実行し、その後 interval ごとに実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スナップショットスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スナップショットスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スナップショット保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は全ユーザーの当日スナップショットを1回保存する。
// 一部のユーザーで失敗しても保存できた件数は記録する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	count, err := s.upserter.UpsertAll(ctx)
	if count > 0 {
		s.recorder.RecordSnapshotsUpserted(count)
	}
	if err != nil {
		return err
	}

	s.logger.Info("スナップショット保存が完了しました",
		slog.Int("snapshot_count", count),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

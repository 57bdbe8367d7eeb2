package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用した分析スナップショットリポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// UpsertForUser は指定日のスナップショットを現在のリード・案件から集計して保存する。
// 成約率は won / total を百分率で保持する。
func (r *PostgresSnapshotRepo) UpsertForUser(ctx context.Context, userID string, date time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (
		     user_id, snapshot_date, total_leads, new_leads, won_leads, lost_leads,
		     total_jobs, completed_jobs, revenue, conversion_rate)
		 SELECT $1, $2::date, l.total, l.fresh, l.won, l.lost, j.total, j.completed, j.revenue,
		        CASE WHEN l.total = 0 THEN 0 ELSE round(l.won * 100.0 / l.total, 2) END
		 FROM (
		     SELECT COUNT(*) AS total,
		            COUNT(*) FILTER (WHERE created_at::date = $2::date) AS fresh,
		            COUNT(*) FILTER (WHERE status = 'won') AS won,
		            COUNT(*) FILTER (WHERE status = 'lost') AS lost
		     FROM leads WHERE user_id = $1
		 ) l, (
		     SELECT COUNT(*) AS total,
		            COUNT(*) FILTER (WHERE status = 'completed') AS completed,
		            COALESCE(SUM(value) FILTER (WHERE status = 'completed'), 0) AS revenue
		     FROM jobs WHERE user_id = $1
		 ) j
		 ON CONFLICT (user_id, snapshot_date) DO UPDATE SET
		     total_leads = EXCLUDED.total_leads,
		     new_leads = EXCLUDED.new_leads,
		     won_leads = EXCLUDED.won_leads,
		     lost_leads = EXCLUDED.lost_leads,
		     total_jobs = EXCLUDED.total_jobs,
		     completed_jobs = EXCLUDED.completed_jobs,
		     revenue = EXCLUDED.revenue,
		     conversion_rate = EXCLUDED.conversion_rate`,
		userID, date.Format("2006-01-02"),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert analytics snapshot: %w", err)
	}
	return nil
}

// ListByUserID は指定日以降のスナップショットを日付の昇順で返す。
func (r *PostgresSnapshotRepo) ListByUserID(ctx context.Context, userID string, since time.Time) ([]*model.AnalyticsSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, snapshot_date, total_leads, new_leads, won_leads, lost_leads,
		        total_jobs, completed_jobs, revenue, conversion_rate, created_at
		 FROM analytics_snapshots
		 WHERE user_id = $1 AND snapshot_date >= $2::date
		 ORDER BY snapshot_date`,
		userID, since.Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*model.AnalyticsSnapshot, 0)
	for rows.Next() {
		s := &model.AnalyticsSnapshot{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.SnapshotDate, &s.TotalLeads, &s.NewLeads, &s.WonLeads,
			&s.LostLeads, &s.TotalJobs, &s.CompletedJobs, &s.Revenue, &s.ConversionRate, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// compile-time interface check
var _ SnapshotRepository = (*PostgresSnapshotRepo)(nil)

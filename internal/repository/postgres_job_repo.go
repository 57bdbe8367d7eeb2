package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

const jobColumns = `id, user_id, lead_id, title, description, status, value, scheduled_date, completed_at, created_at, updated_at`

// PostgresJobRepo はPostgreSQLを使用した案件リポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

func scanJob(row interface{ Scan(...any) error }) (*model.Job, error) {
	j := &model.Job{}
	var leadID sql.NullString
	var status string
	var scheduled, completed sql.NullTime
	err := row.Scan(&j.ID, &j.UserID, &leadID, &j.Title, &j.Description, &status, &j.Value,
		&scheduled, &completed, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.LeadID = leadID.String
	j.Status = model.JobStatus(status)
	j.ScheduledDate = timePtr(scheduled)
	j.CompletedAt = timePtr(completed)
	return j, nil
}

// ListByUserID はユーザーの案件一覧を返す。leadIDが空でない場合はそのリードの案件に絞り込む。
func (r *PostgresJobRepo) ListByUserID(ctx context.Context, userID, leadID string) ([]*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1`
	args := []any{userID}
	if leadID != "" {
		query += ` AND lead_id = $2`
		args = append(args, leadID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FindByID はユーザーの案件を取得する。見つからない場合はnilを返す。
func (r *PostgresJobRepo) FindByID(ctx context.Context, userID, id string) (*model.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return job, nil
}

// Create は案件を作成する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.UserID, nullString(job.LeadID), job.Title, job.Description, string(job.Status),
		job.Value, nullTime(job.ScheduledDate), nullTime(job.CompletedAt), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Update は案件を上書き更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresJobRepo) Update(ctx context.Context, job *model.Job) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs
		 SET lead_id = $3, title = $4, description = $5, status = $6, value = $7,
		     scheduled_date = $8, completed_at = $9, updated_at = $10
		 WHERE id = $1 AND user_id = $2`,
		job.ID, job.UserID, nullString(job.LeadID), job.Title, job.Description, string(job.Status),
		job.Value, nullTime(job.ScheduledDate), nullTime(job.CompletedAt), job.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete は案件を削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresJobRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Summarize はユーザーの案件を集計する。
func (r *PostgresJobRepo) Summarize(ctx context.Context, userID string) (JobSummary, error) {
	var s JobSummary
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COALESCE(SUM(value), 0)
		 FROM jobs WHERE user_id = $1`,
		userID,
	).Scan(&s.Total, &s.Completed, &s.TotalValue)
	if err != nil {
		return s, fmt.Errorf("failed to summarize jobs: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ JobRepository = (*PostgresJobRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

const leadColumns = `id, user_id, name, email, phone, company, source, status, notes, estimated_value, created_at, updated_at`

// PostgresLeadRepo はPostgreSQLを使用したリードリポジトリ。
type PostgresLeadRepo struct {
	db *sql.DB
}

// NewPostgresLeadRepo はPostgresLeadRepoを生成する。
func NewPostgresLeadRepo(db *sql.DB) *PostgresLeadRepo {
	return &PostgresLeadRepo{db: db}
}

func scanLead(row interface{ Scan(...any) error }) (*model.Lead, error) {
	l := &model.Lead{}
	var status string
	err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Source,
		&status, &l.Notes, &l.EstimatedValue, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Status = model.LeadStatus(status)
	return l, nil
}

func (r *PostgresLeadRepo) queryLeads(ctx context.Context, query string, args ...any) ([]*model.Lead, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]*model.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// ListByUserID はユーザーのリード一覧を作成日時の降順で返す。
func (r *PostgresLeadRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Lead, error) {
	leads, err := r.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, nil
}

// FindByID はユーザーのリードを取得する。見つからない場合はnilを返す。
func (r *PostgresLeadRepo) FindByID(ctx context.Context, userID, id string) (*model.Lead, error) {
	lead, err := scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lead: %w", err)
	}
	return lead, nil
}

// CreateWithQuota はユーザー行をロックして月間上限を確認し、
// リードの作成とカウンタの加算を同一トランザクションで行う。
func (r *PostgresLeadRepo) CreateWithQuota(ctx context.Context, lead *model.Lead) (LeadQuota, error) {
	var quota LeadQuota

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return quota, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`SELECT current_month_leads, monthly_lead_limit FROM users WHERE id = $1 FOR UPDATE`,
		lead.UserID,
	).Scan(&quota.Current, &quota.Limit)
	if err != nil {
		return quota, fmt.Errorf("failed to lock user quota: %w", err)
	}

	if quota.Limit != model.UnlimitedLeads && quota.Current >= quota.Limit {
		return quota, ErrLeadLimitReached
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		lead.ID, lead.UserID, lead.Name, lead.Email, lead.Phone, lead.Company, lead.Source,
		string(lead.Status), lead.Notes, lead.EstimatedValue, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return quota, fmt.Errorf("failed to insert lead: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET current_month_leads = current_month_leads + 1 WHERE id = $1`,
		lead.UserID,
	)
	if err != nil {
		return quota, fmt.Errorf("failed to increment lead count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return quota, fmt.Errorf("failed to commit transaction: %w", err)
	}

	quota.Current++
	return quota, nil
}

// Update はリードを上書き更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresLeadRepo) Update(ctx context.Context, lead *model.Lead) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leads
		 SET name = $3, email = $4, phone = $5, company = $6, source = $7,
		     status = $8, notes = $9, estimated_value = $10, updated_at = $11
		 WHERE id = $1 AND user_id = $2`,
		lead.ID, lead.UserID, lead.Name, lead.Email, lead.Phone, lead.Company, lead.Source,
		string(lead.Status), lead.Notes, lead.EstimatedValue, lead.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update lead: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete はリードを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresLeadRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM leads WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete lead: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindDuplicateCandidates はメールアドレス、電話番号、名前のいずれかが一致するリードを返す。
func (r *PostgresLeadRepo) FindDuplicateCandidates(ctx context.Context, userID, email, phoneDigits, name string) ([]*model.Lead, error) {
	leads, err := r.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE user_id = $1
		   AND (($2 <> '' AND lower(email) = lower($2))
		     OR ($3 <> '' AND regexp_replace(phone, '\D', '', 'g') = $3)
		     OR ($4 <> '' AND lower(name) = lower($4)))
		 ORDER BY created_at DESC`,
		userID, email, phoneDigits, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate candidates: %w", err)
	}
	return leads, nil
}

// CountByStatus はステータスごとのリード数を返す。
func (r *PostgresLeadRepo) CountByStatus(ctx context.Context, userID string) (map[model.LeadStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM leads WHERE user_id = $1 GROUP BY status`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.LeadStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan lead count: %w", err)
		}
		counts[model.LeadStatus(status)] = n
	}
	return counts, rows.Err()
}

// compile-time interface check
var _ LeadRepository = (*PostgresLeadRepo)(nil)

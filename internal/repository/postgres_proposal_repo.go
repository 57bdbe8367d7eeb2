package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

const proposalColumns = `id, user_id, lead_id, proposal_number, title, amount, status, valid_until, created_at, updated_at`

// PostgresProposalRepo はPostgreSQLを使用した見積書リポジトリ。
type PostgresProposalRepo struct {
	db *sql.DB
}

// NewPostgresProposalRepo はPostgresProposalRepoを生成する。
func NewPostgresProposalRepo(db *sql.DB) *PostgresProposalRepo {
	return &PostgresProposalRepo{db: db}
}

func scanProposal(row interface{ Scan(...any) error }) (*model.Proposal, error) {
	p := &model.Proposal{}
	var leadID sql.NullString
	var status string
	var validUntil sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &leadID, &p.ProposalNumber, &p.Title, &p.Amount,
		&status, &validUntil, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.LeadID = leadID.String
	p.Status = model.ProposalStatus(status)
	p.ValidUntil = timePtr(validUntil)
	return p, nil
}

// ListByUserID はユーザーの見積書一覧を作成日時の降順で返す。
func (r *PostgresProposalRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Proposal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]*model.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// FindByID はユーザーの見積書を取得する。見つからない場合はnilを返す。
func (r *PostgresProposalRepo) FindByID(ctx context.Context, userID, id string) (*model.Proposal, error) {
	p, err := scanProposal(r.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find proposal: %w", err)
	}
	return p, nil
}

// Create は見積書を作成し、DBトリガーが採番した番号を設定する。
func (r *PostgresProposalRepo) Create(ctx context.Context, p *model.Proposal) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO proposals (id, user_id, lead_id, title, amount, status, valid_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING proposal_number`,
		p.ID, p.UserID, nullString(p.LeadID), p.Title, p.Amount, string(p.Status),
		nullTime(p.ValidUntil), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ProposalNumber)
	if err != nil {
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	return nil
}

// UpdateStatus はステータスを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresProposalRepo) UpdateStatus(ctx context.Context, userID, id string, status model.ProposalStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE proposals SET status = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update proposal status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ ProposalRepository = (*PostgresProposalRepo)(nil)

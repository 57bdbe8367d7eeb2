package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

const userColumns = `id, email, user_type, subscription_tier, current_month_leads, monthly_lead_limit,
	is_admin, stripe_customer_id, stripe_subscription_id, leads_reset_at, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var tier string
	err := row.Scan(&u.ID, &u.Email, &u.UserType, &tier, &u.CurrentMonthLeads, &u.MonthlyLeadLimit,
		&u.IsAdmin, &u.StripeCustomerID, &u.StripeSubscriptionID, &u.LeadsResetAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.SubscriptionTier = model.Tier(tier)
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByStripeCustomerID はStripeの顧客IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1 AND stripe_customer_id <> ''`,
		customerID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by stripe customer: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。既に存在する場合は何もしない。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, user_type, subscription_tier, current_month_leads, monthly_lead_limit,
			is_admin, leads_reset_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Email, user.UserType, string(user.SubscriptionTier), user.CurrentMonthLeads,
		user.MonthlyLeadLimit, user.IsAdmin, user.LeadsResetAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateSubscription はプランと月間上限、Stripeの紐付け情報を更新する。
func (r *PostgresUserRepo) UpdateSubscription(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET subscription_tier = $2, monthly_lead_limit = $3,
		     stripe_customer_id = $4, stripe_subscription_id = $5, updated_at = now()
		 WHERE id = $1`,
		user.ID, string(user.SubscriptionTier), user.MonthlyLeadLimit,
		user.StripeCustomerID, user.StripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// ListIDs は全ユーザーのIDを返す。
func (r *PostgresUserRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResetMonthlyLeadCounts は前月以前にリセットされたユーザーの月間カウンタを0に戻す。
func (r *PostgresUserRepo) ResetMonthlyLeadCounts(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET current_month_leads = 0, leads_reset_at = date_trunc('month', $1::timestamptz), updated_at = now()
		 WHERE leads_reset_at < date_trunc('month', $1::timestamptz)`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset monthly lead counts: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

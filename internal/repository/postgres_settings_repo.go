package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用したユーザー設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// FindByUserID はユーザー設定を取得する。未作成の場合はnilを返す。
func (r *PostgresSettingsRepo) FindByUserID(ctx context.Context, userID string) (*model.UserSettings, error) {
	s := &model.UserSettings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, company_name, business_type, timezone, default_lead_source, notifications_email, updated_at
		 FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&s.UserID, &s.CompanyName, &s.BusinessType, &s.Timezone, &s.DefaultLeadSource, &s.NotificationsEmail, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user settings: %w", err)
	}
	return s, nil
}

// Upsert はユーザー設定を作成または上書きする。
func (r *PostgresSettingsRepo) Upsert(ctx context.Context, s *model.UserSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, company_name, business_type, timezone, default_lead_source, notifications_email, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
		     company_name = EXCLUDED.company_name,
		     business_type = EXCLUDED.business_type,
		     timezone = EXCLUDED.timezone,
		     default_lead_source = EXCLUDED.default_lead_source,
		     notifications_email = EXCLUDED.notifications_email,
		     updated_at = EXCLUDED.updated_at`,
		s.UserID, s.CompanyName, s.BusinessType, s.Timezone, s.DefaultLeadSource, s.NotificationsEmail, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user settings: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)

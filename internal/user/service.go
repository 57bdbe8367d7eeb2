// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata" // コンテナにタイムゾーンDBがなくてもタイムゾーン検証を行う

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
	"github.com/hitoshi/steadyleadflow/internal/security"
)

// DefaultTimezone は設定未作成時のタイムゾーン。
const DefaultTimezone = "UTC"

// AuthAccountDeleter は認証基盤側のアカウント削除インターフェース。
type AuthAccountDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}

// SettingsInput は設定更新時の入力値を表す。nilフィールドは変更しない。
type SettingsInput struct {
	CompanyName        *string
	BusinessType       *string
	Timezone           *string
	DefaultLeadSource  *string
	NotificationsEmail *bool
}

// Service はユーザー管理のサービス層。
// 設定の取得・更新と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	settingsRepo repository.SettingsRepository
	authDeleter  AuthAccountDeleter
	sanitizer    security.ContentSanitizer
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	settingsRepo repository.SettingsRepository,
	authDeleter AuthAccountDeleter,
	sanitizer security.ContentSanitizer,
) *Service {
	return &Service{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		settingsRepo: settingsRepo,
		authDeleter:  authDeleter,
		sanitizer:    sanitizer,
		now:          time.Now,
	}
}

// GetSettings はユーザー設定を返す。未作成の場合はデフォルト値を返す。
func (s *Service) GetSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	settings, err := s.settingsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	if settings == nil {
		return defaultSettings(userID), nil
	}
	return settings, nil
}

// UpdateSettings はユーザー設定を部分更新して保存する。
func (s *Service) UpdateSettings(ctx context.Context, userID string, in SettingsInput) (*model.UserSettings, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.CompanyName != nil {
		settings.CompanyName = s.sanitizer.Plain(*in.CompanyName)
	}
	if in.BusinessType != nil {
		settings.BusinessType = s.sanitizer.Plain(*in.BusinessType)
	}
	if in.DefaultLeadSource != nil {
		settings.DefaultLeadSource = s.sanitizer.Plain(*in.DefaultLeadSource)
	}
	if in.NotificationsEmail != nil {
		settings.NotificationsEmail = *in.NotificationsEmail
	}
	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil || *in.Timezone == "" {
			return nil, model.NewValidationError(fmt.Sprintf("Unknown timezone: %s", *in.Timezone))
		}
		settings.Timezone = *in.Timezone
	}
	settings.UpdatedAt = s.now()

	if err := s.settingsRepo.Upsert(ctx, settings); err != nil {
		return nil, fmt.Errorf("ユーザー設定の保存に失敗しました: %w", err)
	}
	return settings, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: user_settings, leads, jobs, proposals, analytics_snapshots）→ 認証アカウント
// 認証アカウントの削除失敗はログに記録するのみとする。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	if s.authDeleter != nil {
		if err := s.authDeleter.DeleteUser(ctx, userID); err != nil {
			slog.Warn("認証アカウントの削除に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}

func defaultSettings(userID string) *model.UserSettings {
	return &model.UserSettings{
		UserID:             userID,
		Timezone:           DefaultTimezone,
		NotificationsEmail: true,
	}
}

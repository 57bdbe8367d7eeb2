package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
	"github.com/hitoshi/steadyleadflow/internal/security"
)

// --- モック ---

type mockUserRepo struct {
	repository.UserRepository
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockSessionRepo struct {
	repository.SessionRepository
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type mockSettingsRepo struct {
	stored   *model.UserSettings
	upserted *model.UserSettings
}

func (m *mockSettingsRepo) FindByUserID(_ context.Context, _ string) (*model.UserSettings, error) {
	return m.stored, nil
}

func (m *mockSettingsRepo) Upsert(_ context.Context, settings *model.UserSettings) error {
	m.upserted = settings
	return nil
}

type mockAuthDeleter struct {
	err    error
	called string
}

func (m *mockAuthDeleter) DeleteUser(_ context.Context, userID string) error {
	m.called = userID
	return m.err
}

func newTestService(users *mockUserRepo, sessions *mockSessionRepo, settings *mockSettingsRepo, auth *mockAuthDeleter) *Service {
	if users == nil {
		users = &mockUserRepo{}
	}
	if sessions == nil {
		sessions = &mockSessionRepo{}
	}
	if settings == nil {
		settings = &mockSettingsRepo{}
	}
	var deleter AuthAccountDeleter
	if auth != nil {
		deleter = auth
	}
	svc := NewService(users, sessions, settings, deleter, security.NewContentSanitizer())
	svc.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func strPtr(s string) *string { return &s }

// --- テスト ---

// TestService_GetSettings_Default は設定未作成時にデフォルト値が返ることを検証する。
func TestService_GetSettings_Default(t *testing.T) {
	svc := newTestService(nil, nil, &mockSettingsRepo{}, nil)

	got, err := svc.GetSettings(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "user-1" || got.Timezone != DefaultTimezone || !got.NotificationsEmail {
		t.Errorf("settings = %+v", got)
	}
}

// TestService_UpdateSettings_PartialUpdate は指定フィールドのみが更新されることを検証する。
func TestService_UpdateSettings_PartialUpdate(t *testing.T) {
	repo := &mockSettingsRepo{stored: &model.UserSettings{
		UserID:       "user-1",
		CompanyName:  "Old Co",
		BusinessType: "roofing",
		Timezone:     "UTC",
	}}
	svc := newTestService(nil, nil, repo, nil)

	got, err := svc.UpdateSettings(context.Background(), "user-1", SettingsInput{
		CompanyName: strPtr(" <b>Acme Roofing</b> "),
		Timezone:    strPtr("America/Chicago"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CompanyName != "Acme Roofing" {
		t.Errorf("CompanyName = %q", got.CompanyName)
	}
	if got.BusinessType != "roofing" {
		t.Errorf("BusinessType = %q, should be unchanged", got.BusinessType)
	}
	if repo.upserted == nil || repo.upserted.Timezone != "America/Chicago" {
		t.Errorf("upserted = %+v", repo.upserted)
	}
}

// TestService_UpdateSettings_InvalidTimezone は不明なタイムゾーンが拒否されることを検証する。
func TestService_UpdateSettings_InvalidTimezone(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := newTestService(nil, nil, repo, nil)

	_, err := svc.UpdateSettings(context.Background(), "user-1", SettingsInput{Timezone: strPtr("Mars/Olympus")})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("error = %v, want validation error", err)
	}
	if repo.upserted != nil {
		t.Error("invalid settings should not be saved")
	}
}

// TestService_Withdraw は退会処理が全関連データを削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var order []string

	users := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "test@example.com"}, nil
		},
		deleteByIDFn: func(_ context.Context, _ string) error {
			order = append(order, "user")
			return nil
		},
	}
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, _ string) error {
			order = append(order, "sessions")
			return nil
		},
	}
	auth := &mockAuthDeleter{}
	svc := newTestService(users, sessions, nil, auth)

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "sessions" || order[1] != "user" {
		t.Errorf("delete order = %v", order)
	}
	if auth.called != "user-1" {
		t.Errorf("auth account delete called with %q", auth.called)
	}
}

// TestService_Withdraw_AuthDeleteFailureIsIgnored は認証アカウント削除の失敗が退会を妨げないことを検証する。
func TestService_Withdraw_AuthDeleteFailureIsIgnored(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(_ context.Context, _ string) error { return nil },
	}
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, _ string) error { return nil },
	}
	svc := newTestService(users, sessions, nil, &mockAuthDeleter{err: errors.New("supabase down")})

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, nil, nil, nil)

	err := svc.Withdraw(context.Background(), "ghost")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("error = %v, want user not found", err)
	}
}

// TestService_Withdraw_SessionDeleteError はセッション削除失敗時にユーザーが削除されないことを検証する。
func TestService_Withdraw_SessionDeleteError(t *testing.T) {
	userDeleted := false
	users := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(_ context.Context, _ string) error {
			userDeleted = true
			return nil
		},
	}
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, _ string) error { return errors.New("db error") },
	}
	svc := newTestService(users, sessions, nil, nil)

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
	if userDeleted {
		t.Error("user should not be deleted when session deletion fails")
	}
}

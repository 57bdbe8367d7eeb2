// Package auth はパスワードログイン、セッション管理を提供する。
// パスワード検証はSupabase Authに委譲し、セッションはPostgreSQLで管理する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
	"github.com/hitoshi/steadyleadflow/internal/supabase"
)

// ErrNotAuthenticated はセッションが存在しないか期限切れであることを示す。
var ErrNotAuthenticated = errors.New("not authenticated")

// PasswordVerifier はメールアドレスとパスワードを検証する外部IdPのインターフェース。
type PasswordVerifier interface {
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthUser, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge        int // セッション有効期間（秒）
	RememberMeMaxAge     int // 「ログイン状態を保持」時の有効期間（秒）
	FreeMonthlyLeadLimit int // 新規ユーザーの月間リード上限
}

// LoginResult はログイン成功時の結果を表す。
type LoginResult struct {
	Session *model.Session
	User    *model.User
	MaxAge  int // Cookieに設定する有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier    PasswordVerifier
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	verifier PasswordVerifier,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		verifier:    verifier,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// Login はパスワードで認証し、セッションを発行する。
// 初回ログインのユーザーは無料プランでローカルのusersレコードを作成する。
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("Email and password are required.")
	}

	authUser, err := s.verifier.SignInWithPassword(ctx, email, password)
	if errors.Is(err, supabase.ErrInvalidCredentials) {
		slog.Info("login rejected", slog.String("reason", "invalid_credentials"))
		return nil, model.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	user, err := s.userRepo.FindByID(ctx, authUser.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		now := s.now()
		user = &model.User{
			ID:               authUser.ID,
			Email:            authUser.Email,
			UserType:         "contractor",
			SubscriptionTier: model.TierFree,
			MonthlyLeadLimit: s.config.FreeMonthlyLeadLimit,
			LeadsResetAt:     time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		slog.Info("new user created", slog.String("user_id", user.ID))
	}

	maxAge := s.config.SessionMaxAge
	if rememberMe {
		maxAge = s.config.RememberMeMaxAge
	}

	session, err := s.createSession(ctx, user.ID, maxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember_me", rememberMe),
	)

	return &LoginResult{Session: session, User: user, MaxAge: maxAge}, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効な場合は ErrNotAuthenticated を返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrNotAuthenticated
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrNotAuthenticated
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, maxAge int) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(maxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

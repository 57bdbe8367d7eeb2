// Package supabase はSupabase Auth（GoTrue）REST APIのクライアントを提供する。
// パスワード認証とアカウント削除のみを扱い、データアクセスはPostgreSQLに直接接続する。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrInvalidCredentials はメールアドレスまたはパスワードが誤っていることを示す。
var ErrInvalidCredentials = errors.New("invalid login credentials")

// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
const maxErrorBody = 4096

// AuthUser はSupabase Authが返すユーザー情報。
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Config はClientの設定。
type Config struct {
	URL            string // プロジェクトURL（例: https://xyz.supabase.co）
	ServiceRoleKey string
	HTTPClient     *http.Client
}

// Client はSupabase Auth APIのクライアント。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.ServiceRoleKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	User        AuthUser `json:"user"`
}

// SignInWithPassword はメールアドレスとパスワードで認証する。
// 認証情報が誤っている場合は ErrInvalidCredentials を返す。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthUser, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign-in request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign-in request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase sign-in request failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("supabase sign-in request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, ErrInvalidCredentials
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("supabase sign-in returned unexpected status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return nil, fmt.Errorf("supabase sign-in returned status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode sign-in response: %w", err)
	}
	if token.User.ID == "" {
		return nil, errors.New("supabase sign-in response has no user")
	}

	return &token.User, nil
}

// DeleteUser は管理APIでSupabase Auth上のユーザーを削除する。
// 既に存在しない場合はエラーとしない。
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/auth/v1/admin/users/"+userID, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete-user request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase delete-user request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("supabase delete-user returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SteadyLeadFlow/1.0")
}

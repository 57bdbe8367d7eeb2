// Package api はダッシュボードから使うHTTP APIのファサードを提供する。
// すべての呼び出しは Result を返し、Goのエラーを呼び出し元に返さない。
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/steadyleadflow/internal/client/authmgr"
)

// Requester は認証付きリクエストを送信する。*authmgr.Manager が実装する。
type Requester interface {
	APIRequest(ctx context.Context, method, path string, body any) (*authmgr.Response, error)
}

// Result はAPI呼び出しの統一結果。
// Success が false の場合、Error に表示用メッセージが入り、
// 業務ルールによる失敗は対応するフラグで判別する。
type Result[T any] struct {
	Success bool
	Data    T
	Error   string
	Code    string
	Status  int

	LimitReached       bool
	CurrentCount       int
	Limit              int
	HasExactDuplicates bool
	UpgradeRequired    bool
	// Feature はロックされた機能名。UpgradeRequired の場合のみ設定される。
	Feature string
}

// 表示用の汎用メッセージ。
const (
	msgSessionExpired = "Your session has expired. Please log in again."
	msgNetwork        = "Network error. Please check your connection and try again."
	msgUnexpected     = "Unexpected response from the server."
)

// Client はAPIファサード。
type Client struct {
	req    Requester
	logger *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(req Requester, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{req: req, logger: logger}
}

// call はリクエストを送信し、レスポンスを Result に変換する。
func call[T any](ctx context.Context, c *Client, method, path string, body any) Result[T] {
	var res Result[T]

	resp, err := c.req.APIRequest(ctx, method, path, body)
	if err != nil {
		if errors.Is(err, authmgr.ErrUnauthorized) {
			res.Error = msgSessionExpired
			res.Status = http.StatusUnauthorized
			return res
		}
		c.logger.Error("api request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		res.Error = msgNetwork
		return res
	}

	res.Status = resp.StatusCode
	if !resp.OK() {
		e := resp.AsError()
		res.Error = e.Message
		res.Code = e.Code
		res.LimitReached = e.LimitReached
		res.CurrentCount = e.CurrentCount
		res.Limit = e.Limit
		res.HasExactDuplicates = e.HasExactDuplicates
		res.UpgradeRequired = e.UpgradeRequired
		return res
	}

	if err := resp.Decode(&res.Data); err != nil {
		c.logger.Error("api response decode failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		res.Error = msgUnexpected
		return res
	}
	res.Success = true
	return res
}

func leadPath(id string) string {
	return "/api/leads/" + url.PathEscape(id)
}

// ListLeads はリード一覧を取得する。
func (c *Client) ListLeads(ctx context.Context) Result[[]Lead] {
	return call[[]Lead](ctx, c, http.MethodGet, "/api/leads", nil)
}

// GetLead はリードを1件取得する。
func (c *Client) GetLead(ctx context.Context, id string) Result[Lead] {
	return call[Lead](ctx, c, http.MethodGet, leadPath(id), nil)
}

// CreateLead はリードを作成する。
// 月間上限到達時は LimitReached、完全一致の重複時は HasExactDuplicates が立つ。
func (c *Client) CreateLead(ctx context.Context, in LeadInput) Result[Lead] {
	return call[Lead](ctx, c, http.MethodPost, "/api/leads", in)
}

// UpdateLead はリードを更新する。
func (c *Client) UpdateLead(ctx context.Context, id string, in LeadInput) Result[Lead] {
	return call[Lead](ctx, c, http.MethodPut, leadPath(id), in)
}

// DeleteLead はリードを削除する。
func (c *Client) DeleteLead(ctx context.Context, id string) Result[struct{}] {
	return call[struct{}](ctx, c, http.MethodDelete, leadPath(id), nil)
}

// CheckDuplicates は作成前に重複候補を確認する。
func (c *Client) CheckDuplicates(ctx context.Context, in LeadInput) Result[DuplicateCheck] {
	return call[DuplicateCheck](ctx, c, http.MethodPost, "/api/leads/check-duplicates", in)
}

// ListJobs は案件一覧を取得する。
func (c *Client) ListJobs(ctx context.Context) Result[[]Job] {
	return call[[]Job](ctx, c, http.MethodGet, "/api/jobs", nil)
}

// JobsByLead はリードに紐づく案件を取得する。
func (c *Client) JobsByLead(ctx context.Context, leadID string) Result[[]Job] {
	q := url.Values{"lead_id": {leadID}}
	return call[[]Job](ctx, c, http.MethodGet, "/api/jobs?"+q.Encode(), nil)
}

// GetJob は案件を1件取得する。
func (c *Client) GetJob(ctx context.Context, id string) Result[Job] {
	return call[Job](ctx, c, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil)
}

// CreateJob は案件を作成する。
func (c *Client) CreateJob(ctx context.Context, in JobInput) Result[Job] {
	return call[Job](ctx, c, http.MethodPost, "/api/jobs", in)
}

// ListProposals は見積書一覧を取得する。
func (c *Client) ListProposals(ctx context.Context) Result[[]Proposal] {
	return call[[]Proposal](ctx, c, http.MethodGet, "/api/proposals", nil)
}

// CreateProposal は見積書を作成する。
func (c *Client) CreateProposal(ctx context.Context, in ProposalInput) Result[Proposal] {
	return call[Proposal](ctx, c, http.MethodPost, "/api/proposals", in)
}

// UpdateProposalStatus は見積書のステータスを変更する。
func (c *Client) UpdateProposalStatus(ctx context.Context, id, status string) Result[Proposal] {
	body := map[string]string{"status": status}
	return call[Proposal](ctx, c, http.MethodPut, "/api/proposals/"+url.PathEscape(id)+"/status", body)
}

// Statistics はダッシュボードの集計値を取得する。
func (c *Client) Statistics(ctx context.Context) Result[Statistics] {
	return call[Statistics](ctx, c, http.MethodGet, "/api/statistics", nil)
}

// Snapshots は直近 days 日分の分析スナップショットを取得する。0以下はサーバーの既定値。
func (c *Client) Snapshots(ctx context.Context, days int) Result[[]Snapshot] {
	path := "/api/analytics/snapshots"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	return call[[]Snapshot](ctx, c, http.MethodGet, path, nil)
}

// GetSettings はユーザー設定を取得する。
func (c *Client) GetSettings(ctx context.Context) Result[Settings] {
	return call[Settings](ctx, c, http.MethodGet, "/api/user/settings", nil)
}

// UpdateSettings はユーザー設定を更新する。
func (c *Client) UpdateSettings(ctx context.Context, in SettingsInput) Result[Settings] {
	return call[Settings](ctx, c, http.MethodPut, "/api/user/settings", in)
}

// StartCheckout はProfessionalプランのCheckoutセッションを作成する。plan は monthly か yearly。
func (c *Client) StartCheckout(ctx context.Context, plan string) Result[Checkout] {
	body := map[string]string{"plan": plan}
	return call[Checkout](ctx, c, http.MethodPost, "/api/billing/checkout", body)
}

// Package repository はデータ永続化のインターフェースを定義する。
// すべての業務データは user_id でスコープされる。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// ErrLeadLimitReached は月間リード上限に達しているためリードを作成できないことを示す。
var ErrLeadLimitReached = errors.New("monthly lead limit reached")

// LeadQuota はリード作成時点の月間カウンタと上限を表す。
type LeadQuota struct {
	Current int
	Limit   int
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByStripeCustomerID はStripeの顧客IDでユーザーを検索する。見つからない場合はnilを返す。
	FindByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)

	// Create はユーザーを作成する。既に存在する場合は何もしない。
	Create(ctx context.Context, user *model.User) error

	// UpdateSubscription はプランと月間上限、Stripeの紐付け情報を更新する。
	UpdateSubscription(ctx context.Context, user *model.User) error

	// ListIDs は全ユーザーのIDを返す。
	ListIDs(ctx context.Context) ([]string, error)

	// ResetMonthlyLeadCounts は前月以前にリセットされたユーザーの月間カウンタを0に戻す。
	// リセットしたユーザー数を返す。
	ResetMonthlyLeadCounts(ctx context.Context, now time.Time) (int64, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、user_settings、leads、jobs、proposals、analytics_snapshotsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// SettingsRepository はユーザー設定の永続化インターフェース。
type SettingsRepository interface {
	// FindByUserID はユーザー設定を取得する。未作成の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserSettings, error)
	// Upsert はユーザー設定を作成または上書きする。
	Upsert(ctx context.Context, settings *model.UserSettings) error
}

// LeadRepository はリードデータの永続化インターフェース。
type LeadRepository interface {
	// ListByUserID はユーザーのリード一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Lead, error)

	// FindByID はユーザーのリードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Lead, error)

	// CreateWithQuota はユーザー行をロックして月間上限を確認し、
	// リードの作成とカウンタの加算を同一トランザクションで行う。
	// 上限に達している場合は ErrLeadLimitReached と作成前のカウンタを返す。
	CreateWithQuota(ctx context.Context, lead *model.Lead) (LeadQuota, error)

	// Update はリードを上書き更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, lead *model.Lead) (bool, error)

	// Delete はリードを削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)

	// FindDuplicateCandidates はメールアドレス（大文字小文字無視）、数字のみに正規化した電話番号、
	// 名前（大文字小文字無視）のいずれかが一致するリードを返す。空の条件は無視する。
	FindDuplicateCandidates(ctx context.Context, userID, email, phoneDigits, name string) ([]*model.Lead, error)

	// CountByStatus はステータスごとのリード数を返す。
	CountByStatus(ctx context.Context, userID string) (map[model.LeadStatus]int, error)
}

// JobSummary は案件の集計値を表す。
type JobSummary struct {
	Total      int
	Completed  int
	TotalValue float64
}

// JobRepository は案件データの永続化インターフェース。
type JobRepository interface {
	// ListByUserID はユーザーの案件一覧を返す。leadIDが空でない場合はそのリードの案件に絞り込む。
	ListByUserID(ctx context.Context, userID, leadID string) ([]*model.Job, error)
	// FindByID はユーザーの案件を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Job, error)
	// Create は案件を作成する。
	Create(ctx context.Context, job *model.Job) error
	// Update は案件を上書き更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, job *model.Job) (bool, error)
	// Delete は案件を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
	// Summarize はユーザーの案件を集計する。
	Summarize(ctx context.Context, userID string) (JobSummary, error)
}

// ProposalRepository は見積書データの永続化インターフェース。
type ProposalRepository interface {
	// ListByUserID はユーザーの見積書一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Proposal, error)
	// FindByID はユーザーの見積書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Proposal, error)
	// Create は見積書を作成し、DBトリガーが採番した番号を proposal.ProposalNumber に設定する。
	Create(ctx context.Context, proposal *model.Proposal) error
	// UpdateStatus はステータスを更新する。対象が存在しない場合はfalseを返す。
	UpdateStatus(ctx context.Context, userID, id string, status model.ProposalStatus) (bool, error)
}

// SnapshotRepository は分析スナップショットの永続化インターフェース。
type SnapshotRepository interface {
	// UpsertForUser は指定日のスナップショットを現在のリード・案件から集計して保存する。
	// (user_id, snapshot_date) が既に存在する場合は上書きする。
	UpsertForUser(ctx context.Context, userID string, date time.Time) error
	// ListByUserID は指定日以降のスナップショットを日付の昇順で返す。
	ListByUserID(ctx context.Context, userID string, since time.Time) ([]*model.AnalyticsSnapshot, error)
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime はnilをNULLとして扱う。
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// timePtr はNULL許容の時刻をポインタに変換する。
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

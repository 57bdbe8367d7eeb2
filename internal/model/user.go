// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Tier はサブスクリプションの階層を表す。
type Tier string

const (
	// TierFree は無料プラン。
	TierFree Tier = "free"
	// TierProfessional はプロフェッショナルプラン。
	TierProfessional Tier = "professional"
	// TierBusiness はビジネスプラン。
	TierBusiness Tier = "business"
	// TierEnterprise はエンタープライズプラン。
	TierEnterprise Tier = "enterprise"
	// TierAdmin は管理者。
	TierAdmin Tier = "admin"
)

// UnlimitedLeads は月間リード上限なしを表す。
const UnlimitedLeads = -1

// tierRanks は階層の序列。数値が大きいほど上位。
var tierRanks = map[Tier]int{
	TierFree:         1,
	TierProfessional: 2,
	TierBusiness:     3,
	TierEnterprise:   4,
	TierAdmin:        5,
}

// Base は "_trial" などのサフィックスを除いた階層を返す。
func (t Tier) Base() Tier {
	s := strings.ToLower(string(t))
	if i := strings.Index(s, "_"); i >= 0 {
		s = s[:i]
	}
	return Tier(s)
}

// Rank は階層の序列を返す。未知の階層は0。
func (t Tier) Rank() int {
	return tierRanks[t.Base()]
}

// AtLeast は t が required 以上の階層かどうかを判定する。
func (t Tier) AtLeast(required Tier) bool {
	return t.Rank() > 0 && t.Rank() >= required.Rank()
}

// User はサービス利用ユーザーを表す。
// IDはSupabase AuthのユーザーIDと一致する。
type User struct {
	ID                   string
	Email                string
	UserType             string
	SubscriptionTier     Tier
	CurrentMonthLeads    int
	MonthlyLeadLimit     int // UnlimitedLeads の場合は上限なし
	IsAdmin              bool
	StripeCustomerID     string
	StripeSubscriptionID string
	LeadsResetAt         time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasLeadCapacity はリードを追加作成できるかどうかを返す。
func (u *User) HasLeadCapacity() bool {
	if u.MonthlyLeadLimit == UnlimitedLeads {
		return true
	}
	return u.CurrentMonthLeads < u.MonthlyLeadLimit
}

// EffectiveTier は管理者フラグを考慮した階層を返す。
func (u *User) EffectiveTier() Tier {
	if u.IsAdmin {
		return TierAdmin
	}
	return u.SubscriptionTier
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserSettings はユーザーごとのアプリケーション設定を表す。
type UserSettings struct {
	UserID             string
	CompanyName        string
	BusinessType       string
	Timezone           string
	DefaultLeadSource  string
	NotificationsEmail bool
	UpdatedAt          time.Time
}

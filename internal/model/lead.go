// Package model はドメインモデルを定義する。
package model

import "time"

// LeadStatus はリードの進捗状態を表す。
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusProposal  LeadStatus = "proposal"
	LeadStatusWon       LeadStatus = "won"
	LeadStatusLost      LeadStatus = "lost"
)

// Valid は既知のステータスかどうかを判定する。
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified,
		LeadStatusProposal, LeadStatusWon, LeadStatusLost:
		return true
	}
	return false
}

// Lead は見込み客を表す。
type Lead struct {
	ID             string
	UserID         string
	Name           string
	Email          string
	Phone          string
	Company        string
	Source         string
	Status         LeadStatus
	Notes          string // サニタイズ済み
	EstimatedValue float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeadInput はリード作成・更新時の入力値を表す。
// nilフィールドは更新時に変更しない。
type LeadInput struct {
	Name           *string
	Email          *string
	Phone          *string
	Company        *string
	Source         *string
	Status         *LeadStatus
	Notes          *string
	EstimatedValue *float64
}

// DuplicateCheck は重複チェックの結果を表す。
// 完全一致はメールアドレスまたは電話番号の一致、候補は名前の一致。
type DuplicateCheck struct {
	HasExactDuplicates     bool
	HasPotentialDuplicates bool
	ExactMatches           []*Lead
	PotentialMatches       []*Lead
}

// Package model はドメインモデルを定義する。
package model

import "time"

// JobStatus は案件の状態を表す。
type JobStatus string

const (
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Valid は既知のステータスかどうかを判定する。
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusScheduled, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// Job はリードに紐づく案件を表す。
type Job struct {
	ID            string
	UserID        string
	LeadID        string // 空の場合はリード未紐付け
	Title         string
	Description   string
	Status        JobStatus
	Value         float64
	ScheduledDate *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobInput は案件作成・更新時の入力値を表す。
type JobInput struct {
	LeadID        *string
	Title         *string
	Description   *string
	Status        *JobStatus
	Value         *float64
	ScheduledDate *time.Time
}

// ProposalStatus は見積書の状態を表す。
type ProposalStatus string

const (
	ProposalStatusDraft    ProposalStatus = "draft"
	ProposalStatusSent     ProposalStatus = "sent"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// Valid は既知のステータスかどうかを判定する。
func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalStatusDraft, ProposalStatusSent, ProposalStatusAccepted, ProposalStatusRejected:
		return true
	}
	return false
}

// Proposal は見積書を表す。
// ProposalNumber はDBトリガーがユーザー・年ごとに採番する（例: PROP-2024-0001）。
type Proposal struct {
	ID             string
	UserID         string
	LeadID         string
	ProposalNumber string
	Title          string
	Amount         float64
	Status         ProposalStatus
	ValidUntil     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

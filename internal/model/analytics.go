// Package model はドメインモデルを定義する。
package model

import "time"

// AnalyticsSnapshot は日次の集計スナップショットを表す。
// (user_id, snapshot_date) で一意。
type AnalyticsSnapshot struct {
	ID             string
	UserID         string
	SnapshotDate   time.Time
	TotalLeads     int
	NewLeads       int
	WonLeads       int
	LostLeads      int
	TotalJobs      int
	CompletedJobs  int
	Revenue        float64
	ConversionRate float64
	CreatedAt      time.Time
}

// Statistics はダッシュボードの集計値を表す。
type Statistics struct {
	TotalLeads        int
	LeadsByStatus     map[LeadStatus]int
	ConversionRate    float64
	TotalJobs         int
	CompletedJobs     int
	TotalJobValue     float64
	CurrentMonthLeads int
	MonthlyLeadLimit  int
}

package api

import "time"

// Lead はAPIが返すリード。
type Lead struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Company        string    `json:"company"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes"`
	EstimatedValue float64   `json:"estimated_value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LeadInput はリード作成・更新の入力。空文字のフィールドは送信しない。
type LeadInput struct {
	Name           string   `json:"name,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Company        string   `json:"company,omitempty"`
	Source         string   `json:"source,omitempty"`
	Status         string   `json:"status,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	EstimatedValue *float64 `json:"estimated_value,omitempty"`
}

// DuplicateCheck は重複チェックの結果。
type DuplicateCheck struct {
	HasExactDuplicates     bool   `json:"has_exact_duplicates"`
	HasPotentialDuplicates bool   `json:"has_potential_duplicates"`
	ExactMatches           []Lead `json:"exact_matches"`
	PotentialMatches       []Lead `json:"potential_matches"`
}

// Job はAPIが返す案件。
type Job struct {
	ID            string     `json:"id"`
	LeadID        *string    `json:"lead_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	Value         float64    `json:"value"`
	ScheduledDate *string    `json:"scheduled_date"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// JobInput は案件作成の入力。ScheduledDate は YYYY-MM-DD。
type JobInput struct {
	LeadID        string   `json:"lead_id,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	ScheduledDate string   `json:"scheduled_date,omitempty"`
}

// Proposal はAPIが返す見積書。
type Proposal struct {
	ID             string    `json:"id"`
	LeadID         string    `json:"lead_id"`
	ProposalNumber string    `json:"proposal_number"`
	Title          string    `json:"title"`
	Amount         float64   `json:"amount"`
	Status         string    `json:"status"`
	ValidUntil     *string   `json:"valid_until"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProposalInput は見積書作成の入力。
type ProposalInput struct {
	LeadID     string  `json:"lead_id"`
	Title      string  `json:"title"`
	Amount     float64 `json:"amount"`
	ValidUntil string  `json:"valid_until,omitempty"`
}

// Statistics はダッシュボードの集計値。
type Statistics struct {
	TotalLeads        int            `json:"total_leads"`
	LeadsByStatus     map[string]int `json:"leads_by_status"`
	ConversionRate    float64        `json:"conversion_rate"`
	TotalJobs         int            `json:"total_jobs"`
	CompletedJobs     int            `json:"completed_jobs"`
	TotalJobValue     float64        `json:"total_job_value"`
	CurrentMonthLeads int            `json:"current_month_leads"`
	MonthlyLeadLimit  int            `json:"monthly_lead_limit"`
}

// Snapshot は日次の分析スナップショット。
type Snapshot struct {
	SnapshotDate   string  `json:"snapshot_date"`
	TotalLeads     int     `json:"total_leads"`
	NewLeads       int     `json:"new_leads"`
	WonLeads       int     `json:"won_leads"`
	LostLeads      int     `json:"lost_leads"`
	TotalJobs      int     `json:"total_jobs"`
	CompletedJobs  int     `json:"completed_jobs"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Settings はユーザー設定。
type Settings struct {
	CompanyName        string     `json:"company_name"`
	BusinessType       string     `json:"business_type"`
	Timezone           string     `json:"timezone"`
	DefaultLeadSource  string     `json:"default_lead_source"`
	NotificationsEmail bool       `json:"notifications_email"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// SettingsInput はユーザー設定の部分更新。nilのフィールドは変更しない。
type SettingsInput struct {
	CompanyName        *string `json:"company_name,omitempty"`
	BusinessType       *string `json:"business_type,omitempty"`
	Timezone           *string `json:"timezone,omitempty"`
	DefaultLeadSource  *string `json:"default_lead_source,omitempty"`
	NotificationsEmail *bool   `json:"notifications_email,omitempty"`
}

// Checkout はStripe CheckoutセッションのURL。
type Checkout struct {
	URL string `json:"url"`
}

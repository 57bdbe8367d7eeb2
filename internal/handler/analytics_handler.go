package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// AnalyticsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type AnalyticsServiceInterface interface {
	Statistics(ctx context.Context, userID string) (*model.Statistics, error)
	Snapshots(ctx context.Context, userID string, days int) ([]*model.AnalyticsSnapshot, error)
}

// AnalyticsHandler はダッシュボード集計のHTTPハンドラー。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

type statisticsResponse struct {
	TotalLeads        int            `json:"total_leads"`
	LeadsByStatus     map[string]int `json:"leads_by_status"`
	ConversionRate    float64        `json:"conversion_rate"`
	TotalJobs         int            `json:"total_jobs"`
	CompletedJobs     int            `json:"completed_jobs"`
	TotalJobValue     float64        `json:"total_job_value"`
	CurrentMonthLeads int            `json:"current_month_leads"`
	MonthlyLeadLimit  int            `json:"monthly_lead_limit"`
}

type snapshotResponse struct {
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

// Statistics はダッシュボードの集計値を返す。
// GET /api/statistics
func (h *AnalyticsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	stats, err := h.service.Statistics(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	byStatus := make(map[string]int, len(stats.LeadsByStatus))
	for status, n := range stats.LeadsByStatus {
		byStatus[string(status)] = n
	}
	writeJSON(w, http.StatusOK, statisticsResponse{
		TotalLeads:        stats.TotalLeads,
		LeadsByStatus:     byStatus,
		ConversionRate:    stats.ConversionRate,
		TotalJobs:         stats.TotalJobs,
		CompletedJobs:     stats.CompletedJobs,
		TotalJobValue:     stats.TotalJobValue,
		CurrentMonthLeads: stats.CurrentMonthLeads,
		MonthlyLeadLimit:  stats.MonthlyLeadLimit,
	})
}

// Snapshots は日次スナップショットを古い順に返す。
// days が不正な値の場合はサービス側の既定値を使う。
// GET /api/analytics/snapshots?days=
func (h *AnalyticsHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	snapshots, err := h.service.Snapshots(r.Context(), user.ID, days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]snapshotResponse, len(snapshots))
	for i, s := range snapshots {
		out[i] = snapshotResponse{
			SnapshotDate:   s.SnapshotDate.Format(dateLayout),
			TotalLeads:     s.TotalLeads,
			NewLeads:       s.NewLeads,
			WonLeads:       s.WonLeads,
			LostLeads:      s.LostLeads,
			TotalJobs:      s.TotalJobs,
			CompletedJobs:  s.CompletedJobs,
			Revenue:        s.Revenue,
			ConversionRate: s.ConversionRate,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

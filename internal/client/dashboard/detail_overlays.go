package dashboard

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"

	"github.com/hitoshi/steadyleadflow/internal/client/api"
	"github.com/hitoshi/steadyleadflow/internal/client/overlay"
)

// オーバーレイの種類名
const (
	KindLeadDetail   = "lead-detail"
	KindJobDetail    = "job-detail"
	KindQuickAddLead = "quick-add-lead"
	KindQuickAddJob  = "quick-add-job"
)

// DataLeadID と DataJobID は Open に渡すデータのキー。
const (
	DataLeadID = "leadId"
	DataJobID  = "jobId"
)

const msgLeadNotFound = "Lead not found."
const msgJobNotFound = "Job not found."

func formatMoney(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// detailRow は項目名と値の行を返す。値はエスケープする。
func detailRow(label, value string) string {
	if value == "" {
		value = "-"
	}
	return `<div class="detail-row"><span class="detail-label">` + html.EscapeString(label) +
		`</span><span class="detail-value">` + html.EscapeString(value) + `</span></div>`
}

// LeadDetailOverlay はリードの詳細と紐づく案件を表示する。
type LeadDetailOverlay struct {
	base *overlay.Base
	deps *services

	mu   sync.RWMutex
	lead *api.Lead
	jobs []api.Job
}

func newLeadDetailOverlay(deps *services) overlay.Constructor {
	return func(b *overlay.Base) overlay.Overlay {
		return &LeadDetailOverlay{base: b, deps: deps}
	}
}

func (o *LeadDetailOverlay) Title() string      { return "Lead Details" }
func (o *LeadDetailOverlay) Size() overlay.Size { return overlay.SizeLarge }
func (o *LeadDetailOverlay) LoadsOnMount() bool { return true }
func (o *LeadDetailOverlay) OnDestroy()         {}

// Lead は取得済みのリードを返す。
func (o *LeadDetailOverlay) Lead() *api.Lead {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lead
}

// OnMount はリードと紐づく案件を取得する。
// 案件はProfessional以上の場合のみ取得し、失敗しても詳細表示は続ける。
func (o *LeadDetailOverlay) OnMount(ctx context.Context) error {
	id := o.base.Data(DataLeadID)
	if id == "" {
		o.base.ShowError(msgLeadNotFound)
		return nil
	}

	res := o.deps.client.GetLead(ctx, id)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !res.Success || res.Data.ID == "" {
		msg := res.Error
		if msg == "" || res.Status == http.StatusNotFound {
			msg = msgLeadNotFound
		}
		o.base.ShowError(msg)
		return nil
	}
	lead := res.Data

	var jobs []api.Job
	if o.deps.features.Unlocked(api.FeatureJobs) {
		jr := o.deps.client.JobsByLead(ctx, id)
		if err := ctx.Err(); err != nil {
			return err
		}
		if jr.Success {
			jobs = jr.Data
		}
	}

	o.mu.Lock()
	o.lead = &lead
	o.jobs = jobs
	o.mu.Unlock()

	o.base.HideLoading()
	return nil
}

// RenderBody はリードの詳細を描画する。
func (o *LeadDetailOverlay) RenderBody() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lead == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<div class="lead-detail">`)
	b.WriteString(`<h3>` + html.EscapeString(o.lead.Name) + `</h3>`)
	b.WriteString(`<span class="status-badge status-` + html.EscapeString(o.lead.Status) + `">` + html.EscapeString(o.lead.Status) + `</span>`)
	b.WriteString(detailRow("Email", o.lead.Email))
	b.WriteString(detailRow("Phone", o.lead.Phone))
	b.WriteString(detailRow("Company", o.lead.Company))
	b.WriteString(detailRow("Source", o.lead.Source))
	b.WriteString(detailRow("Estimated value", formatMoney(o.lead.EstimatedValue)))
	if o.lead.Notes != "" {
		// notes はサーバー側でサニタイズ済みだが、表示ではテキストとして扱う
		b.WriteString(`<div class="lead-notes">` + html.EscapeString(o.lead.Notes) + `</div>`)
	}

	b.WriteString(`<h4>Jobs</h4>`)
	if len(o.jobs) == 0 {
		b.WriteString(`<p class="empty">No jobs yet.</p>`)
	} else {
		b.WriteString(`<ul class="job-list">`)
		for _, j := range o.jobs {
			b.WriteString(`<li data-job-id="` + html.EscapeString(j.ID) + `">` + html.EscapeString(j.Title) +
				` <span class="job-value">` + formatMoney(j.Value) + `</span></li>`)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// RenderFooter は操作ボタンを描画する。
func (o *LeadDetailOverlay) RenderFooter() string {
	return `<button class="btn-secondary" data-action="close">Close</button>` +
		`<button class="btn-primary" data-action="add-job">Add Job</button>`
}

// JobDetailOverlay は案件の詳細と紐づくリードを表示する。
type JobDetailOverlay struct {
	base *overlay.Base
	deps *services

	mu   sync.RWMutex
	job  *api.Job
	lead *api.Lead
}

func newJobDetailOverlay(deps *services) overlay.Constructor {
	return func(b *overlay.Base) overlay.Overlay {
		return &JobDetailOverlay{base: b, deps: deps}
	}
}

func (o *JobDetailOverlay) Title() string      { return "Job Details" }
func (o *JobDetailOverlay) Size() overlay.Size { return overlay.SizeLarge }
func (o *JobDetailOverlay) LoadsOnMount() bool { return true }
func (o *JobDetailOverlay) OnDestroy()         {}

// Job は取得済みの案件を返す。
func (o *JobDetailOverlay) Job() *api.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.job
}

// OnMount は案件と紐づくリードを取得する。リードの取得失敗は無視する。
func (o *JobDetailOverlay) OnMount(ctx context.Context) error {
	id := o.base.Data(DataJobID)
	if id == "" {
		o.base.ShowError(msgJobNotFound)
		return nil
	}

	res := o.deps.features.GetJob(ctx, id)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !res.Success || res.Data.ID == "" {
		msg := res.Error
		if msg == "" || res.Status == http.StatusNotFound {
			msg = msgJobNotFound
		}
		o.base.ShowError(msg)
		return nil
	}
	job := res.Data

	var lead *api.Lead
	if job.LeadID != nil && *job.LeadID != "" {
		lr := o.deps.client.GetLead(ctx, *job.LeadID)
		if err := ctx.Err(); err != nil {
			return err
		}
		if lr.Success {
			lead = &lr.Data
		}
	}

	o.mu.Lock()
	o.job = &job
	o.lead = lead
	o.mu.Unlock()

	o.base.HideLoading()
	return nil
}

// RenderBody は案件の詳細を描画する。
func (o *JobDetailOverlay) RenderBody() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.job == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<div class="job-detail">`)
	b.WriteString(`<h3>` + html.EscapeString(o.job.Title) + `</h3>`)
	b.WriteString(`<span class="status-badge status-` + html.EscapeString(o.job.Status) + `">` + html.EscapeString(o.job.Status) + `</span>`)
	b.WriteString(detailRow("Value", formatMoney(o.job.Value)))
	scheduled := ""
	if o.job.ScheduledDate != nil {
		scheduled = *o.job.ScheduledDate
	}
	b.WriteString(detailRow("Scheduled", scheduled))
	if o.job.Description != "" {
		b.WriteString(`<div class="job-description">` + html.EscapeString(o.job.Description) + `</div>`)
	}

	b.WriteString(`<h4>Lead</h4>`)
	if o.lead == nil {
		b.WriteString(`<p class="empty">No linked lead.</p>`)
	} else {
		b.WriteString(`<div class="linked-lead" data-lead-id="` + html.EscapeString(o.lead.ID) + `">`)
		b.WriteString(detailRow("Name", o.lead.Name))
		b.WriteString(detailRow("Email", o.lead.Email))
		b.WriteString(detailRow("Phone", o.lead.Phone))
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

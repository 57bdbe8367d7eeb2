package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/steadyleadflow/internal/client/api"
	"github.com/hitoshi/steadyleadflow/internal/client/appcache"
	"github.com/hitoshi/steadyleadflow/internal/client/overlay"
)

// 入力検証などでネットワークに送らずに終えた送信のエラー。
var (
	ErrNameRequired     = errors.New("dashboard: lead name is required")
	ErrTitleRequired    = errors.New("dashboard: job title is required")
	ErrInvalidValue     = errors.New("dashboard: job value must be a number")
	ErrInvalidDate      = errors.New("dashboard: scheduled date must be YYYY-MM-DD")
	ErrDuplicateLead    = errors.New("dashboard: a lead with the same email or phone exists")
	ErrSubmitInProgress = errors.New("dashboard: submit already in progress")
)

// SubmitError はサーバーが作成を拒否したことを表す。
type SubmitError struct {
	Message         string
	LimitReached    bool
	UpgradeRequired bool
}

// Error はerrorインターフェースを実装する。
func (e *SubmitError) Error() string {
	return e.Message
}

// inputField はフォームの1項目。
type inputField struct {
	name     string
	label    string
	kind     string
	required bool
}

var leadFields = []inputField{
	{name: "name", label: "Name", kind: "text", required: true},
	{name: "email", label: "Email", kind: "email"},
	{name: "phone", label: "Phone", kind: "tel"},
	{name: "company", label: "Company", kind: "text"},
	{name: "source", label: "Source", kind: "text"},
	{name: "notes", label: "Notes", kind: "textarea"},
}

var jobFields = []inputField{
	{name: "title", label: "Title", kind: "text", required: true},
	{name: "lead_id", label: "Lead", kind: "select"},
	{name: "value", label: "Value", kind: "number"},
	{name: "scheduled_date", label: "Scheduled date", kind: "date"},
	{name: "description", label: "Description", kind: "textarea"},
}

// renderField は現在の入力値を保持したまま項目を描画する。
func renderField(b *overlay.Base, f inputField, options []api.Lead) string {
	value := html.EscapeString(b.FormValue(f.name))
	label := html.EscapeString(f.label)
	if f.required {
		label += ` <span class="required">*</span>`
	}

	var sb strings.Builder
	sb.WriteString(`<div class="form-group"><label for="` + f.name + `">` + label + `</label>`)
	switch f.kind {
	case "textarea":
		sb.WriteString(`<textarea id="` + f.name + `" name="` + f.name + `">` + value + `</textarea>`)
	case "select":
		sb.WriteString(`<select id="` + f.name + `" name="` + f.name + `"><option value="">No lead</option>`)
		for _, l := range options {
			selected := ""
			if l.ID == b.FormValue(f.name) {
				selected = " selected"
			}
			sb.WriteString(`<option value="` + html.EscapeString(l.ID) + `"` + selected + `>` + html.EscapeString(l.Name) + `</option>`)
		}
		sb.WriteString(`</select>`)
	default:
		sb.WriteString(`<input type="` + f.kind + `" id="` + f.name + `" name="` + f.name + `" value="` + value + `">`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func formFooter(submitLabel string) string {
	return `<button class="btn-secondary" data-action="close">Cancel</button>` +
		`<button class="btn-primary" type="submit" data-action="submit">` + html.EscapeString(submitLabel) + `</button>`
}

func trimmed(b *overlay.Base, name string) string {
	return strings.TrimSpace(b.FormValue(name))
}

// finishSubmit は作成成功後の共通処理。自身を閉じて表示中のページを再取得する。
// 再取得は閉じた後に行うため、破棄でキャンセルされないコンテキストを使う。
func finishSubmit(ctx context.Context, b *overlay.Base, deps *services, message string) {
	deps.notifier.Success(message)
	b.Close()
	if err := deps.router.ReloadActive(context.WithoutCancel(ctx)); err != nil {
		deps.logger.Warn("failed to reload active page", slog.String("error", err.Error()))
	}
}

// QuickAddLeadOverlay はリードの簡易登録フォーム。
type QuickAddLeadOverlay struct {
	base       *overlay.Base
	deps       *services
	submitting atomic.Bool
}

func newQuickAddLeadOverlay(deps *services) overlay.Constructor {
	return func(b *overlay.Base) overlay.Overlay {
		return &QuickAddLeadOverlay{base: b, deps: deps}
	}
}

func (o *QuickAddLeadOverlay) Title() string                     { return "Quick Add Lead" }
func (o *QuickAddLeadOverlay) Size() overlay.Size                { return overlay.SizeMedium }
func (o *QuickAddLeadOverlay) OnMount(ctx context.Context) error { return nil }
func (o *QuickAddLeadOverlay) OnDestroy()                        {}
func (o *QuickAddLeadOverlay) RenderFooter() string              { return formFooter("Add Lead") }

// RenderBody はフォームを描画する。
func (o *QuickAddLeadOverlay) RenderBody() string {
	var sb strings.Builder
	sb.WriteString(`<form class="quick-add-form" id="quick-add-lead-form">`)
	for _, f := range leadFields {
		sb.WriteString(renderField(o.base, f, nil))
	}
	if info := o.deps.auth.LeadLimitInfo(); !info.Unlimited && info.Limit > 0 {
		sb.WriteString(fmt.Sprintf(`<p class="lead-limit">%d of %d leads used this month</p>`, info.Current, info.Limit))
	}
	sb.WriteString(`</form>`)
	return sb.String()
}

// OnBodyUpdate は送信ハンドラーを登録する。
func (o *QuickAddLeadOverlay) OnBodyUpdate() {
	o.base.On(overlay.EventSubmit, func() {
		o.HandleSubmit(o.base.Context())
	})
}

// HandleSubmit はフォームの内容でリードを作成する。
// 名前が空の場合はネットワークに送らず、フォームを揺らして開いたままにする。
// 完全一致の重複がある場合と上限到達の場合も開いたままにする。
func (o *QuickAddLeadOverlay) HandleSubmit(ctx context.Context) error {
	b := o.base
	in := api.LeadInput{
		Name:    trimmed(b, "name"),
		Email:   trimmed(b, "email"),
		Phone:   trimmed(b, "phone"),
		Company: trimmed(b, "company"),
		Source:  trimmed(b, "source"),
		Notes:   trimmed(b, "notes"),
	}
	if in.Name == "" {
		b.Shake()
		o.deps.notifier.Error("Please enter a name for the lead.")
		return ErrNameRequired
	}

	if !o.submitting.CompareAndSwap(false, true) {
		return ErrSubmitInProgress
	}
	defer o.submitting.Store(false)

	if in.Email != "" || in.Phone != "" {
		dup := o.deps.client.CheckDuplicates(ctx, in)
		if dup.Success && dup.Data.HasExactDuplicates {
			o.deps.notifier.Error("A lead with this email or phone already exists.")
			return ErrDuplicateLead
		}
	}

	res := o.deps.client.CreateLead(ctx, in)
	if !res.Success {
		switch {
		case res.LimitReached:
			o.deps.prompter.PromptUpgrade(api.FeatureLeads)
			o.deps.notifier.Error(fmt.Sprintf("You've reached your monthly limit of %d leads.", res.Limit))
		case res.HasExactDuplicates:
			o.deps.notifier.Error("A lead with this email or phone already exists.")
		default:
			o.deps.notifier.Error(res.Error)
		}
		return &SubmitError{Message: res.Error, LimitReached: res.LimitReached, UpgradeRequired: res.UpgradeRequired}
	}

	o.deps.auth.RecordLeadCreated()
	o.deps.cache.Invalidate(appcache.KeyLeads)
	finishSubmit(ctx, b, o.deps, fmt.Sprintf("Lead %s added.", in.Name))
	return nil
}

// QuickAddJobOverlay は案件の簡易登録フォーム。Professional以上で利用できる。
type QuickAddJobOverlay struct {
	base       *overlay.Base
	deps       *services
	submitting atomic.Bool

	mu    sync.RWMutex
	leads []api.Lead
}

func newQuickAddJobOverlay(deps *services) overlay.Constructor {
	return func(b *overlay.Base) overlay.Overlay {
		return &QuickAddJobOverlay{base: b, deps: deps}
	}
}

func (o *QuickAddJobOverlay) Title() string        { return "Quick Add Job" }
func (o *QuickAddJobOverlay) Size() overlay.Size   { return overlay.SizeMedium }
func (o *QuickAddJobOverlay) OnDestroy()           {}
func (o *QuickAddJobOverlay) RenderFooter() string { return formFooter("Add Job") }

// OnMount はプランを確認し、リード選択肢をキャッシュ経由で読み込む。
// Open 時に leadId が渡されていれば初期選択にする。
func (o *QuickAddJobOverlay) OnMount(ctx context.Context) error {
	if !o.deps.features.Unlocked(api.FeatureJobs) {
		o.deps.prompter.PromptUpgrade(api.FeatureJobs)
		o.base.ShowError("Jobs are available on the Professional plan.")
		return nil
	}

	if id := o.base.Data(DataLeadID); id != "" && o.base.FormValue("lead_id") == "" {
		o.base.Node().SetField("lead_id", id)
	}

	leads, err := appcache.Load(ctx, o.deps.cache, appcache.KeyLeads, func(ctx context.Context) ([]api.Lead, error) {
		res := o.deps.client.ListLeads(ctx)
		if !res.Success {
			return nil, loadErrorFrom(res)
		}
		return res.Data, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// リード選択肢がなくても案件は登録できる
		o.deps.logger.Warn("failed to load leads for job form", slog.String("error", err.Error()))
		return nil
	}

	o.mu.Lock()
	o.leads = leads
	o.mu.Unlock()
	o.base.UpdateBody(o.RenderBody())
	return nil
}

// RenderBody はフォームを描画する。
func (o *QuickAddJobOverlay) RenderBody() string {
	o.mu.RLock()
	leads := o.leads
	o.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString(`<form class="quick-add-form" id="quick-add-job-form">`)
	for _, f := range jobFields {
		sb.WriteString(renderField(o.base, f, leads))
	}
	sb.WriteString(`</form>`)
	return sb.String()
}

// OnBodyUpdate は送信ハンドラーを登録する。
func (o *QuickAddJobOverlay) OnBodyUpdate() {
	o.base.On(overlay.EventSubmit, func() {
		o.HandleSubmit(o.base.Context())
	})
}

// HandleSubmit はフォームの内容で案件を作成する。
// タイトルが空、金額や日付の形式が不正な場合はネットワークに送らない。
func (o *QuickAddJobOverlay) HandleSubmit(ctx context.Context) error {
	b := o.base
	in := api.JobInput{
		Title:         trimmed(b, "title"),
		LeadID:        trimmed(b, "lead_id"),
		Description:   trimmed(b, "description"),
		ScheduledDate: trimmed(b, "scheduled_date"),
	}
	if in.Title == "" {
		b.Shake()
		o.deps.notifier.Error("Please enter a title for the job.")
		return ErrTitleRequired
	}
	if raw := trimmed(b, "value"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			b.Shake()
			o.deps.notifier.Error("Value must be a positive number.")
			return ErrInvalidValue
		}
		in.Value = &v
	}
	if in.ScheduledDate != "" {
		if _, err := time.Parse(time.DateOnly, in.ScheduledDate); err != nil {
			b.Shake()
			o.deps.notifier.Error("Scheduled date must be in YYYY-MM-DD format.")
			return ErrInvalidDate
		}
	}

	if !o.submitting.CompareAndSwap(false, true) {
		return ErrSubmitInProgress
	}
	defer o.submitting.Store(false)

	res := o.deps.features.CreateJob(ctx, in)
	if !res.Success {
		if !res.UpgradeRequired {
			o.deps.notifier.Error(res.Error)
		}
		return &SubmitError{Message: res.Error, UpgradeRequired: res.UpgradeRequired}
	}

	o.deps.cache.Invalidate(appcache.KeyJobs)
	finishSubmit(ctx, b, o.deps, fmt.Sprintf("Job %s added.", in.Title))
	return nil
}

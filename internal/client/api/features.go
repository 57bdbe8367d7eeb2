package api

import (
	"context"
	"fmt"
)

// Feature はプランでロックされる機能名。
type Feature string

const (
	FeatureJobs      Feature = "jobs"
	FeatureProposals Feature = "proposals"
	FeatureAnalytics Feature = "analytics"
	// FeatureLeads は月間リード上限の解除。リード操作自体はロックしない。
	FeatureLeads Feature = "leads"
)

// requiredTier は機能ごとに必要な階層。
var requiredTier = map[Feature]string{
	FeatureJobs:      "professional",
	FeatureProposals: "professional",
	FeatureAnalytics: "professional",
}

// TierChecker はユーザーの階層を判定する。*authmgr.Manager が実装する。
type TierChecker interface {
	HasPermission(level string) bool
}

// UpgradePrompter はアップグレード案内を表示する。
type UpgradePrompter interface {
	PromptUpgrade(feature Feature)
}

// Features は階層によるロックを適用したAPIファサード。
// ロック中の機能はネットワークに触れずに UpgradeRequired の結果を返す。
type Features struct {
	client   *Client
	tiers    TierChecker
	prompter UpgradePrompter
}

// NewFeatures はFeaturesを生成する。
func NewFeatures(client *Client, tiers TierChecker, prompter UpgradePrompter) *Features {
	return &Features{client: client, tiers: tiers, prompter: prompter}
}

// Client はロックを適用しないファサードを返す。
func (f *Features) Client() *Client {
	return f.client
}

// Unlocked は機能が現在のユーザーで利用可能かどうかを返す。
func (f *Features) Unlocked(feature Feature) bool {
	tier, ok := requiredTier[feature]
	if !ok {
		return true
	}
	return f.tiers.HasPermission(tier)
}

// gate は機能がロックされていればアップグレード案内を表示し、結果を返す。
func gate[T any](f *Features, feature Feature) (Result[T], bool) {
	if f.Unlocked(feature) {
		return Result[T]{}, false
	}
	f.prompt(feature)
	return Result[T]{
		Error:           fmt.Sprintf("Upgrade to Professional to use %s.", feature),
		Code:            "UPGRADE_REQUIRED",
		UpgradeRequired: true,
		Feature:         string(feature),
	}, true
}

// guard はサーバー側のプラン制限で拒否された場合もアップグレード案内を表示する。
func guard[T any](f *Features, feature Feature, res Result[T]) Result[T] {
	if res.UpgradeRequired {
		res.Feature = string(feature)
		f.prompt(feature)
	}
	return res
}

func (f *Features) prompt(feature Feature) {
	if f.prompter != nil {
		f.prompter.PromptUpgrade(feature)
	}
}

// ListJobs は案件一覧を取得する。
func (f *Features) ListJobs(ctx context.Context) Result[[]Job] {
	if res, locked := gate[[]Job](f, FeatureJobs); locked {
		return res
	}
	return guard(f, FeatureJobs, f.client.ListJobs(ctx))
}

// JobsByLead はリードに紐づく案件を取得する。
func (f *Features) JobsByLead(ctx context.Context, leadID string) Result[[]Job] {
	if res, locked := gate[[]Job](f, FeatureJobs); locked {
		return res
	}
	return guard(f, FeatureJobs, f.client.JobsByLead(ctx, leadID))
}

// GetJob は案件を1件取得する。
func (f *Features) GetJob(ctx context.Context, id string) Result[Job] {
	if res, locked := gate[Job](f, FeatureJobs); locked {
		return res
	}
	return guard(f, FeatureJobs, f.client.GetJob(ctx, id))
}

// CreateJob は案件を作成する。
func (f *Features) CreateJob(ctx context.Context, in JobInput) Result[Job] {
	if res, locked := gate[Job](f, FeatureJobs); locked {
		return res
	}
	return guard(f, FeatureJobs, f.client.CreateJob(ctx, in))
}

// ListProposals は見積書一覧を取得する。
func (f *Features) ListProposals(ctx context.Context) Result[[]Proposal] {
	if res, locked := gate[[]Proposal](f, FeatureProposals); locked {
		return res
	}
	return guard(f, FeatureProposals, f.client.ListProposals(ctx))
}

// CreateProposal は見積書を作成する。
func (f *Features) CreateProposal(ctx context.Context, in ProposalInput) Result[Proposal] {
	if res, locked := gate[Proposal](f, FeatureProposals); locked {
		return res
	}
	return guard(f, FeatureProposals, f.client.CreateProposal(ctx, in))
}

// UpdateProposalStatus は見積書のステータスを変更する。
func (f *Features) UpdateProposalStatus(ctx context.Context, id, status string) Result[Proposal] {
	if res, locked := gate[Proposal](f, FeatureProposals); locked {
		return res
	}
	return guard(f, FeatureProposals, f.client.UpdateProposalStatus(ctx, id, status))
}

// Statistics はダッシュボードの集計値を取得する。
func (f *Features) Statistics(ctx context.Context) Result[Statistics] {
	if res, locked := gate[Statistics](f, FeatureAnalytics); locked {
		return res
	}
	return guard(f, FeatureAnalytics, f.client.Statistics(ctx))
}

// Snapshots は分析スナップショットを取得する。
func (f *Features) Snapshots(ctx context.Context, days int) Result[[]Snapshot] {
	if res, locked := gate[[]Snapshot](f, FeatureAnalytics); locked {
		return res
	}
	return guard(f, FeatureAnalytics, f.client.Snapshots(ctx, days))
}

package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/steadyleadflow/internal/analytics"
	"github.com/hitoshi/steadyleadflow/internal/auth"
	"github.com/hitoshi/steadyleadflow/internal/billing"
	"github.com/hitoshi/steadyleadflow/internal/job"
	"github.com/hitoshi/steadyleadflow/internal/lead"
	"github.com/hitoshi/steadyleadflow/internal/metrics"
	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/proposal"
	"github.com/hitoshi/steadyleadflow/internal/user"
)

// LoginRecorder はログイン試行の結果を記録する。
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// InstrumentedAuthService は AuthServiceInterface をラップし、ログイン結果をメトリクスに記録するアダプタ。
type InstrumentedAuthService struct {
	svc      AuthServiceInterface
	recorder LoginRecorder
}

// NewInstrumentedAuthService はInstrumentedAuthServiceを生成する。
func NewInstrumentedAuthService(svc AuthServiceInterface, recorder LoginRecorder) *InstrumentedAuthService {
	return &InstrumentedAuthService{svc: svc, recorder: recorder}
}

// Login はログインを実行し、結果を成功・認証失敗・エラーに分類して記録する。
func (a *InstrumentedAuthService) Login(ctx context.Context, email, password string, rememberMe bool) (*auth.LoginResult, error) {
	result, err := a.svc.Login(ctx, email, password, rememberMe)
	a.recorder.RecordLogin(loginOutcome(err))
	return result, err
}

// Logout はセッションを破棄する。
func (a *InstrumentedAuthService) Logout(ctx context.Context, sessionID string) error {
	return a.svc.Logout(ctx, sessionID)
}

// GetCurrentUser はセッションに紐づくユーザーを返す。
func (a *InstrumentedAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return a.svc.GetCurrentUser(ctx, sessionID)
}

func loginOutcome(err error) string {
	if err == nil {
		return metrics.LoginSuccess
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatus() < 500 {
		return metrics.LoginInvalidCredentials
	}
	return metrics.LoginError
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*InstrumentedAuthService)(nil)
var _ AuthServiceInterface = (*auth.Service)(nil)
var _ LeadServiceInterface = (*lead.Service)(nil)
var _ JobServiceInterface = (*job.Service)(nil)
var _ ProposalServiceInterface = (*proposal.Service)(nil)
var _ AnalyticsServiceInterface = (*analytics.Service)(nil)
var _ UserServiceInterface = (*user.Service)(nil)
var _ BillingServiceInterface = (*billing.Service)(nil)

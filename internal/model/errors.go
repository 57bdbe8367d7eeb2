// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法に加えて、
// 呼び出し側が分岐するための業務ルール情報（上限到達・重複）を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, lead, billing, system
	Action   string // ユーザー向け対処方法
	Status   int    // HTTPステータスコード。0の場合は500として扱う

	LimitReached       bool
	CurrentCount       int
	Limit              int
	HasExactDuplicates bool
	UpgradeRequired    bool
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// HTTPStatus はレスポンスに使用するステータスコードを返す。
func (e *APIError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeLeadLimitReached   = "LEAD_LIMIT_REACHED"
	ErrCodeDuplicateLead      = "DUPLICATE_LEAD"
	ErrCodeLeadNotFound       = "LEAD_NOT_FOUND"
	ErrCodeJobNotFound        = "JOB_NOT_FOUND"
	ErrCodeProposalNotFound   = "PROPOSAL_NOT_FOUND"
	ErrCodeUpgradeRequired    = "UPGRADE_REQUIRED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidPlan        = "INVALID_PLAN"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeCSRF               = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please log in again.",
		Status:   http.StatusUnauthorized,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
		Status:   http.StatusUnauthorized,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse request body.",
		Category: "validation",
		Action:   "Send a valid JSON body.",
		Status:   http.StatusBadRequest,
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "Correct the highlighted fields and try again.",
		Status:   http.StatusBadRequest,
	}
}

// NewLeadLimitError は月間リード上限到達エラーを生成する。
// 402を使い、クライアントの401/403セッション切れ判定と衝突しないようにする。
func NewLeadLimitError(current, limit int) *APIError {
	return &APIError{
		Code:         ErrCodeLeadLimitReached,
		Message:      fmt.Sprintf("Monthly lead limit reached (%d/%d).", current, limit),
		Category:     "lead",
		Action:       "Upgrade to Professional for unlimited leads.",
		Status:       http.StatusPaymentRequired,
		LimitReached: true,
		CurrentCount: current,
		Limit:        limit,
	}
}

// NewDuplicateLeadError は完全一致するリードが既に存在する場合のエラーを生成する。
func NewDuplicateLeadError() *APIError {
	return &APIError{
		Code:               ErrCodeDuplicateLead,
		Message:            "A lead with the same email or phone already exists.",
		Category:           "lead",
		Action:             "Open the existing lead instead of creating a new one.",
		Status:             http.StatusConflict,
		HasExactDuplicates: true,
	}
}

// NewLeadNotFoundError はリード未検出エラーを生成する。
func NewLeadNotFoundError(leadID string) *APIError {
	return &APIError{
		Code:     ErrCodeLeadNotFound,
		Message:  fmt.Sprintf("Lead not found: %s", leadID),
		Category: "lead",
		Action:   "Check the lead ID.",
		Status:   http.StatusNotFound,
	}
}

// NewJobNotFoundError は案件未検出エラーを生成する。
func NewJobNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("Job not found: %s", jobID),
		Category: "job",
		Action:   "Check the job ID.",
		Status:   http.StatusNotFound,
	}
}

// NewProposalNotFoundError は見積書未検出エラーを生成する。
func NewProposalNotFoundError(proposalID string) *APIError {
	return &APIError{
		Code:     ErrCodeProposalNotFound,
		Message:  fmt.Sprintf("Proposal not found: %s", proposalID),
		Category: "proposal",
		Action:   "Check the proposal ID.",
		Status:   http.StatusNotFound,
	}
}

// NewUpgradeRequiredError は上位プランが必要な機能へのアクセスエラーを生成する。
func NewUpgradeRequiredError(required Tier) *APIError {
	return &APIError{
		Code:            ErrCodeUpgradeRequired,
		Message:         fmt.Sprintf("This feature requires the %s plan.", required),
		Category:        "billing",
		Action:          "Upgrade your subscription to unlock this feature.",
		Status:          http.StatusPaymentRequired,
		UpgradeRequired: true,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please log in again.",
		Status:   http.StatusNotFound,
	}
}

// NewInvalidPlanError は不明な課金プランが指定された場合のエラーを生成する。
func NewInvalidPlanError(plan string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlan,
		Message:  fmt.Sprintf("Unknown plan: %s", plan),
		Category: "billing",
		Action:   "Choose either the monthly or the yearly plan.",
		Status:   http.StatusBadRequest,
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
		Status:   http.StatusForbidden,
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
		Status:   http.StatusTooManyRequests,
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
		Status:   http.StatusInternalServerError,
	}
}

package authmgr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Response は読み込み済みのHTTPレスポンス。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK は2xxかどうかを返す。
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode はJSONボディを v に読み込む。ボディが空の場合は何もしない。
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// AsError はエラーボディを *ResponseError に変換する。
func (r *Response) AsError() *ResponseError {
	e := &ResponseError{StatusCode: r.StatusCode}
	if err := json.Unmarshal(r.Body, e); err != nil || e.Message == "" {
		e.Message = http.StatusText(r.StatusCode)
	}
	return e
}

// ResponseError はサーバーが返した統一エラーフォーマット。
type ResponseError struct {
	StatusCode         int    `json:"-"`
	Message            string `json:"error"`
	Code               string `json:"code"`
	Category           string `json:"category"`
	Action             string `json:"action"`
	LimitReached       bool   `json:"limitReached"`
	CurrentCount       int    `json:"currentCount"`
	Limit              int    `json:"limit"`
	HasExactDuplicates bool   `json:"hasExactDuplicates"`
	UpgradeRequired    bool   `json:"upgradeRequired"`
}

// Error はerrorインターフェースを実装する。
func (e *ResponseError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// normalizeUser はsnake_caseとcamelCaseのどちらのキーでも読めるようにユーザー情報を変換する。
func normalizeUser(raw map[string]any) User {
	return User{
		ID:                pickString(raw, "id", "user_id", "userId"),
		Email:             pickString(raw, "email"),
		UserType:          pickString(raw, "user_type", "userType"),
		SubscriptionTier:  pickString(raw, "subscription_tier", "subscriptionTier"),
		CurrentMonthLeads: pickInt(raw, "current_month_leads", "currentMonthLeads"),
		MonthlyLeadLimit:  pickInt(raw, "monthly_lead_limit", "monthlyLeadLimit"),
		IsAdmin:           pickBool(raw, "is_admin", "isAdmin"),
	}
}

func pickString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func pickInt(raw map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return 0
}

func pickBool(raw map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

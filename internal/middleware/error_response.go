package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法に加え、クライアントが分岐に使う業務ルール情報を含む。
type ErrorResponseBody struct {
	Success            bool   `json:"success"`
	Error              string `json:"error"`
	Code               string `json:"code"`
	Category           string `json:"category"`
	Action             string `json:"action"`
	LimitReached       bool   `json:"limitReached,omitempty"`
	CurrentCount       *int   `json:"currentCount,omitempty"`
	Limit              *int   `json:"limit,omitempty"`
	HasExactDuplicates bool   `json:"hasExactDuplicates,omitempty"`
	UpgradeRequired    bool   `json:"upgradeRequired,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Error:              apiErr.Message,
		Code:               apiErr.Code,
		Category:           apiErr.Category,
		Action:             apiErr.Action,
		LimitReached:       apiErr.LimitReached,
		HasExactDuplicates: apiErr.HasExactDuplicates,
		UpgradeRequired:    apiErr.UpgradeRequired,
	}
	if apiErr.LimitReached {
		current, limit := apiErr.CurrentCount, apiErr.Limit
		body.CurrentCount = &current
		body.Limit = &limit
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteError はエラーの種類に応じたレスポンスを書き込む。
// *model.APIError はそのステータスで返し、それ以外はログに記録して500を返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, apiErr.HTTPStatus(), apiErr)
		return
	}

	slog.Error("unhandled error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

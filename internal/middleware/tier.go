package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/steadyleadflow/internal/model"
)

// NewTierGateMiddleware は指定階層未満のユーザーを402で拒否するミドルウェアを返す。
// 401/403はクライアント側でセッション切れとして扱われるため使用しない。
// SessionMiddlewareの後に配置する。
func NewTierGateMiddleware(required model.Tier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !user.EffectiveTier().AtLeast(required) {
				slog.Info("feature locked for tier",
					slog.String("user_id", user.ID),
					slog.String("tier", string(user.SubscriptionTier)),
					slog.String("required", string(required)),
				)
				apiErr := model.NewUpgradeRequiredError(required)
				WriteErrorResponse(w, apiErr.HTTPStatus(), apiErr)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

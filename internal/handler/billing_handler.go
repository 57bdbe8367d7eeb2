package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steadyleadflow/internal/billing"
	"github.com/hitoshi/steadyleadflow/internal/middleware"
	"github.com/hitoshi/steadyleadflow/internal/model"
)

// maxWebhookBody はStripe Webhookのペイロード上限。
const maxWebhookBody = 65536

// stripeSignatureHeader はStripeが署名を格納するヘッダー。
const stripeSignatureHeader = "Stripe-Signature"

// BillingServiceInterface は課金ハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	CreateCheckoutSession(ctx context.Context, user *model.User, plan string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// BillingHandler はStripe Checkoutの開始とWebhook受信のHTTPハンドラー。
type BillingHandler struct {
	service BillingServiceInterface
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface) *BillingHandler {
	return &BillingHandler{service: service}
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// Checkout はStripe Checkoutセッションを作成し、遷移先URLを返す。
// POST /api/billing/checkout
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), user, req.Plan)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// Webhook はStripeからのイベントを受信する。
// セッション認証とCSRF検証の対象外で、署名で送信元を検証する。
// POST /api/stripe/webhook
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			slog.Warn("stripe webhook signature rejected", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid webhook signature."))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

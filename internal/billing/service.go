// Package billing はStripeを利用したサブスクリプション課金を扱う。
// 決済処理そのものはStripe Checkoutに委譲し、Webhookでプランを反映する。
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/hitoshi/steadyleadflow/internal/model"
	"github.com/hitoshi/steadyleadflow/internal/repository"
)

// ErrInvalidSignature はWebhookの署名検証に失敗したことを示す。
var ErrInvalidSignature = errors.New("invalid webhook signature")

// 課金プラン
const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// 処理対象のWebhookイベント
const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// CheckoutSessionCreator はStripe Checkoutセッションの作成インターフェース。
// *session.Client（client.API.CheckoutSessions）が満たす。
type CheckoutSessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Config は課金サービスの設定。
type Config struct {
	PriceMonthly         string
	PriceYearly          string
	WebhookSecret        string
	FrontendURL          string
	FreeMonthlyLeadLimit int
}

// Service は課金のサービス層。
type Service struct {
	checkout CheckoutSessionCreator
	userRepo repository.UserRepository
	config   Config
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(checkout CheckoutSessionCreator, userRepo repository.UserRepository, config Config) *Service {
	return &Service{
		checkout: checkout,
		userRepo: userRepo,
		config:   config,
		now:      time.Now,
	}
}

// CreateCheckoutSession はプロフェッショナルプランのCheckoutセッションを作成し、遷移先URLを返す。
func (s *Service) CreateCheckoutSession(ctx context.Context, user *model.User, plan string) (string, error) {
	var price string
	switch plan {
	case PlanMonthly:
		price = s.config.PriceMonthly
	case PlanYearly:
		price = s.config.PriceYearly
	default:
		return "", model.NewInvalidPlanError(plan)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.config.FrontendURL + "/dashboard?checkout=success"),
		CancelURL:         stripe.String(s.config.FrontendURL + "/dashboard?checkout=cancelled"),
		ClientReferenceID: stripe.String(user.ID),
	}
	if user.StripeCustomerID != "" {
		params.Customer = stripe.String(user.StripeCustomerID)
	} else {
		params.CustomerEmail = stripe.String(user.Email)
	}
	params.Context = ctx
	params.AddMetadata("user_id", user.ID)
	params.AddMetadata("plan", plan)

	cs, err := s.checkout.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	slog.Info("Checkoutセッションを作成しました",
		slog.String("user_id", user.ID),
		slog.String("plan", plan),
	)
	return cs.URL, nil
}

// HandleWebhook は署名を検証してWebhookイベントを処理する。
// 未対応のイベントは無視する。
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case eventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("failed to decode checkout session: %w", err)
		}
		return s.activateProfessional(ctx, &cs)
	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription: %w", err)
		}
		return s.downgradeToFree(ctx, &sub)
	default:
		slog.Debug("未対応のWebhookイベントを無視しました",
			slog.String("type", string(event.Type)),
		)
		return nil
	}
}

func (s *Service) activateProfessional(ctx context.Context, cs *stripe.CheckoutSession) error {
	userID := cs.ClientReferenceID
	if userID == "" {
		userID = cs.Metadata["user_id"]
	}
	if userID == "" {
		slog.Warn("ユーザーを特定できないCheckoutセッションです", slog.String("session_id", cs.ID))
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		slog.Warn("Checkout完了通知のユーザーが存在しません", slog.String("user_id", userID))
		return nil
	}

	user.SubscriptionTier = model.TierProfessional
	user.MonthlyLeadLimit = model.UnlimitedLeads
	if cs.Customer != nil {
		user.StripeCustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		user.StripeSubscriptionID = cs.Subscription.ID
	}
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateSubscription(ctx, user); err != nil {
		return fmt.Errorf("failed to upgrade user: %w", err)
	}

	slog.Info("プロフェッショナルプランに変更しました", slog.String("user_id", userID))
	return nil
}

func (s *Service) downgradeToFree(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}

	user, err := s.userRepo.FindByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("failed to find user by customer: %w", err)
	}
	if user == nil {
		slog.Warn("解約通知の顧客に対応するユーザーが存在しません",
			slog.String("customer_id", sub.Customer.ID),
		)
		return nil
	}

	user.SubscriptionTier = model.TierFree
	user.MonthlyLeadLimit = s.config.FreeMonthlyLeadLimit
	user.StripeSubscriptionID = ""
	user.UpdatedAt = s.now()

	if err := s.userRepo.UpdateSubscription(ctx, user); err != nil {
		return fmt.Errorf("failed to downgrade user: %w", err)
	}

	slog.Info("無料プランに変更しました", slog.String("user_id", user.ID))
	return nil
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"

	"github.com/mmeshcher/storefront/internal/model"
)

// StripeConfig содержит параметры подключения к Stripe.
type StripeConfig struct {
	SecretKey string
	Currency  string
	Timeout   time.Duration
}

// Stripe проводит оплату через PaymentIntents API.
// Клиентским токеном служит client secret SetupIntent, nonce содержит идентификатор PaymentMethod.
type Stripe struct {
	api      *client.API
	currency string
}

// NewStripe создаёт клиент Stripe со своим набором бэкендов, без глобального ключа.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is empty")
	}

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	})

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend})

	return &Stripe{api: api, currency: currency}, nil
}

// GenerateClientToken создаёт SetupIntent и возвращает его client secret.
func (s *Stripe) GenerateClientToken(ctx context.Context) (string, error) {
	params := &stripe.SetupIntentParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	si, err := s.api.SetupIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("create setup intent: %w", err)
	}
	return si.ClientSecret, nil
}

// Sale создаёт и сразу подтверждает PaymentIntent на сумму запроса.
func (s *Stripe) Sale(ctx context.Context, req model.SaleRequest) (*model.SaleResult, error) {
	capture := stripe.PaymentIntentCaptureMethodAutomatic
	if !req.SettleImmediately {
		capture = stripe.PaymentIntentCaptureMethodManual
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(req.Amount)),
		Currency:           stripe.String(s.currency),
		PaymentMethod:      stripe.String(req.Nonce),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		CaptureMethod:      stripe.String(string(capture)),
	}
	params.Context = ctx
	if req.Reference != "" {
		params.SetIdempotencyKey(req.Reference)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		if reason, declined := stripeDeclineReason(err); declined {
			return &model.SaleResult{Reason: reason}, nil
		}
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return stripeSaleResult(pi), nil
}

func stripeSaleResult(pi *stripe.PaymentIntent) *model.SaleResult {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
	default:
		return &model.SaleResult{Reason: string(pi.Status)}
	}

	raw, _ := json.Marshal(pi)
	return &model.SaleResult{
		Settlement: &model.Settlement{
			TransactionID: pi.ID,
			Status:        string(pi.Status),
			Amount:        fromMinorUnits(pi.Amount),
			Provider:      "stripe",
			Raw:           raw,
		},
	}
}

// stripeDeclineReason отличает отказ по карте от ошибок API и сети.
func stripeDeclineReason(err error) (string, bool) {
	var se *stripe.Error
	if !errors.As(err, &se) || se.Type != stripe.ErrorTypeCard {
		return "", false
	}
	if se.DeclineCode != "" {
		return string(se.DeclineCode), true
	}
	if se.Code != "" {
		return string(se.Code), true
	}
	return "card_declined", true
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// Package gateway содержит клиентов внешних платёжных шлюзов.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

const (
	braintreeSandboxURL    = "https://payments.sandbox.braintree-api.com/graphql"
	braintreeProductionURL = "https://payments.braintree-api.com/graphql"
	braintreeVersion       = "2019-01-01"
)

const createClientTokenMutation = `mutation CreateClientToken($input: CreateClientTokenInput) {
  createClientToken(input: $input) { clientToken }
}`

const chargeMutation = `mutation Charge($input: ChargePaymentMethodInput!) {
  chargePaymentMethod(input: $input) { transaction { id status amount { value } } }
}`

const authorizeMutation = `mutation Authorize($input: AuthorizePaymentMethodInput!) {
  authorizePaymentMethod(input: $input) { transaction { id status amount { value } } }
}`

// BraintreeConfig содержит учётные данные мерчанта Braintree.
type BraintreeConfig struct {
	Environment string
	MerchantID  string
	PublicKey   string
	PrivateKey  string
	// Endpoint переопределяет адрес API, выбранный по Environment.
	Endpoint string
	Timeout  time.Duration
}

// Braintree инкапсулирует HTTP-взаимодействие с GraphQL API Braintree.
type Braintree struct {
	endpoint   string
	publicKey  string
	privateKey string
	httpClient *http.Client
}

// NewBraintree создаёт клиент Braintree. Неполные учётные данные считаются ошибкой конфигурации.
func NewBraintree(cfg BraintreeConfig) (*Braintree, error) {
	if cfg.MerchantID == "" || cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("braintree credentials are incomplete")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		switch strings.ToLower(cfg.Environment) {
		case "", "sandbox":
			endpoint = braintreeSandboxURL
		case "production":
			endpoint = braintreeProductionURL
		default:
			return nil, fmt.Errorf("unknown braintree environment %q", cfg.Environment)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Braintree{
		endpoint:   endpoint,
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		ErrorClass string `json:"errorClass"`
		LegacyCode string `json:"legacyCode"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type braintreeTransaction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		Value string `json:"value"`
	} `json:"amount"`
}

// GenerateClientToken запрашивает у Braintree клиентский токен для drop-in формы оплаты.
func (b *Braintree) GenerateClientToken(ctx context.Context) (string, error) {
	resp, err := b.do(ctx, graphQLRequest{
		Query:     createClientTokenMutation,
		Variables: map[string]any{"input": map[string]any{}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("create client token: %s", resp.Errors[0].Message)
	}

	var data struct {
		CreateClientToken struct {
			ClientToken string `json:"clientToken"`
		} `json:"createClientToken"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", fmt.Errorf("decode client token: %w", err)
	}
	if data.CreateClientToken.ClientToken == "" {
		return "", fmt.Errorf("empty client token")
	}
	return data.CreateClientToken.ClientToken, nil
}

// Sale списывает сумму с метода оплаты, представленного nonce.
// Отказ процессора возвращается как SaleResult без Settlement. Ошибка означает только сбой связи.
func (b *Braintree) Sale(ctx context.Context, req model.SaleRequest) (*model.SaleResult, error) {
	query, field := chargeMutation, "chargePaymentMethod"
	if !req.SettleImmediately {
		query, field = authorizeMutation, "authorizePaymentMethod"
	}

	transaction := map[string]any{"amount": req.Amount.StringFixed(2)}
	if req.Reference != "" {
		transaction["orderId"] = req.Reference
	}

	resp, err := b.do(ctx, graphQLRequest{
		Query: query,
		Variables: map[string]any{
			"input": map[string]any{
				"paymentMethodId": req.Nonce,
				"transaction":     transaction,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Errors) > 0 {
		e := resp.Errors[0]
		if e.Extensions.ErrorClass == "VALIDATION" {
			return &model.SaleResult{Reason: e.Message}, nil
		}
		return nil, fmt.Errorf("%s: %s: %s", field, e.Extensions.ErrorClass, e.Message)
	}

	var data map[string]struct {
		Transaction braintreeTransaction `json:"transaction"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	tx := data[field].Transaction
	if tx.ID == "" {
		return nil, fmt.Errorf("%s: empty transaction", field)
	}

	if !braintreeSucceeded(tx.Status) {
		return &model.SaleResult{Reason: strings.ToLower(tx.Status)}, nil
	}

	amount, err := decimal.NewFromString(tx.Amount.Value)
	if err != nil {
		amount = req.Amount
	}

	raw, _ := json.Marshal(tx)
	return &model.SaleResult{
		Settlement: &model.Settlement{
			TransactionID: tx.ID,
			Status:        tx.Status,
			Amount:        amount,
			Provider:      "braintree",
			Raw:           raw,
		},
	}, nil
}

func braintreeSucceeded(status string) bool {
	switch status {
	case "AUTHORIZED", "SUBMITTED_FOR_SETTLEMENT", "SETTLING", "SETTLEMENT_PENDING", "SETTLED":
		return true
	}
	return false
}

func (b *Braintree) do(ctx context.Context, body graphQLRequest) (*graphQLResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(b.publicKey, b.privateKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Braintree-Version", braintreeVersion)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient инкапсулирует взаимодействие с платёжным шлюзом по HTTP.
// Каждый изменяющий запрос несёт заголовок Idempotency-Key.
type HTTPClient struct {
	baseURL    string
	currency   string
	httpClient *http.Client
}

type payoutRequest struct {
	Account     string `json:"account"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type refundRequest struct {
	Payment     string `json:"payment"`
	AmountCents int64  `json:"amount_cents"`
}

type objectResponse struct {
	ID string `json:"id"`
}

// NewHTTPClient создаёт HTTP-клиент платёжного шлюза по указанному адресу.
func NewHTTPClient(baseURL, currency string) *HTTPClient {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &HTTPClient{
		baseURL:  base,
		currency: currency,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IssuePayout переводит amountCents на счёт accountRef и возвращает идентификатор выплаты.
func (c *HTTPClient) IssuePayout(ctx context.Context, accountRef string, amountCents int64, token string) (string, error) {
	return c.post(ctx, "/v1/payouts", token, payoutRequest{
		Account:     accountRef,
		AmountCents: amountCents,
		Currency:    c.currency,
	})
}

// IssueRefund возвращает amountCents по платежу paymentRef и возвращает идентификатор возврата.
func (c *HTTPClient) IssueRefund(ctx context.Context, paymentRef string, amountCents int64, token string) (string, error) {
	return c.post(ctx, "/v1/refunds", token, refundRequest{
		Payment:     paymentRef,
		AmountCents: amountCents,
	})
}

// FindPayout ищет выплату по ключу идемпотентности, с которым она создавалась.
func (c *HTTPClient) FindPayout(ctx context.Context, token string) (string, bool, error) {
	if c == nil || c.baseURL == "" {
		return "", false, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/payouts?idempotency_key="+url.QueryEscape(token), nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result objectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	return result.ID, result.ID != "", nil
}

func (c *HTTPClient) post(ctx context.Context, path, token string, body any) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Запрос мог дойти до шлюза: без ответа исход неизвестен.
		return "", fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: rate limited, retry after %s", ErrRejected, retryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrOutcomeUnknown, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result objectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrOutcomeUnknown, err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: empty object id", ErrOutcomeUnknown)
	}
	return result.ID, nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// IsOutcomeUnknown сообщает, что исход операции у провайдера не определён.
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrOutcomeUnknown)
}

package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/transfer"
)

// StripeClient выполняет выплаты как Stripe Connect transfers и возвраты как Stripe refunds.
type StripeClient struct {
	currency string
}

// NewStripeClient инициализирует Stripe с указанным ключом API.
func NewStripeClient(apiKey, currency string) (*StripeClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	stripe.Key = apiKey
	return &StripeClient{currency: strings.ToLower(currency)}, nil
}

// IssuePayout создаёт transfer на подключённый аккаунт. Токен используется и как ключ
// идемпотентности, и как transfer_group, по которому FindPayout находит перевод при сверке.
func (c *StripeClient) IssuePayout(ctx context.Context, accountRef string, amountCents int64, token string) (string, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(c.currency),
		Destination:   stripe.String(accountRef),
		TransferGroup: stripe.String(token),
	}
	params.Context = ctx
	params.SetIdempotencyKey(token)

	t, err := transfer.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return t.ID, nil
}

// IssueRefund создаёт возврат по payment intent или charge.
func (c *StripeClient) IssueRefund(ctx context.Context, paymentRef string, amountCents int64, token string) (string, error) {
	params := &stripe.RefundParams{
		Amount: stripe.Int64(amountCents),
	}
	if strings.HasPrefix(paymentRef, "ch_") || strings.HasPrefix(paymentRef, "py_") {
		params.Charge = stripe.String(paymentRef)
	} else {
		params.PaymentIntent = stripe.String(paymentRef)
	}
	params.Context = ctx
	params.SetIdempotencyKey(token)

	r, err := refund.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return r.ID, nil
}

// FindPayout ищет transfer по transfer_group, равному токену выплаты.
func (c *StripeClient) FindPayout(ctx context.Context, token string) (string, bool, error) {
	params := &stripe.TransferListParams{
		TransferGroup: stripe.String(token),
	}
	params.Context = ctx

	it := transfer.List(params)
	for it.Next() {
		t := it.Transfer()
		if t != nil && !t.Reversed {
			return t.ID, true, nil
		}
	}
	if err := it.Err(); err != nil {
		return "", false, fmt.Errorf("list transfers: %w", err)
	}
	return "", false, nil
}

// classifyStripeError отделяет определённые отказы Stripe (4xx) от неизвестного исхода.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
		return fmt.Errorf("%w: %s", ErrRejected, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
}

package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/settlement-core/internal/model"
)

type orderCapturedRequest struct {
	OrderID    string `json:"order_id" validate:"required,uuid"`
	PartnerID  string `json:"partner_id" validate:"required,uuid"`
	TotalCents int64  `json:"total_cents" validate:"gt=0"`
	Currency   string `json:"currency" validate:"omitempty,currency"`
	PaymentRef string `json:"payment_ref" validate:"omitempty,ref"`
	ChargeRef  string `json:"charge_ref" validate:"omitempty,ref"`
}

type deliveryCompletedRequest struct {
	OrderID     string    `json:"order_id" validate:"required,uuid"`
	CompletedAt time.Time `json:"completed_at" validate:"required"`
}

type accountUpdatedRequest struct {
	PartnerID          string `json:"partner_id" validate:"required,uuid"`
	ProcessorAccountID string `json:"processor_account_id" validate:"omitempty,ref"`
	PayoutsEnabled     bool   `json:"payouts_enabled"`
	ChargesEnabled     bool   `json:"charges_enabled"`
	DetailsSubmitted   bool   `json:"details_submitted"`
}

type debtAdjustmentRequest struct {
	AmountCents    int64  `json:"amount_cents" validate:"ne=0"`
	Note           string `json:"note" validate:"max=500"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=128"`
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Reason      string `json:"reason" validate:"max=500"`
}

type payoutTriggerRequest struct {
	Date string `json:"date" validate:"omitempty,date"`
}

type entriesQuery struct {
	Status  string `json:"status" validate:"omitempty,oneof=pending available paid"`
	Type    string `json:"type" validate:"omitempty,oneof=sale platform_fee refund payout adjustment"`
	OrderID string `json:"order_id" validate:"omitempty,uuid"`
	Limit   int    `json:"limit" validate:"gte=0,lte=1000"`
}

type entryResponse struct {
	ID             uuid.UUID  `json:"id"`
	PartnerID      uuid.UUID  `json:"partner_id"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	Type           string     `json:"type"`
	AmountCents    int64      `json:"amount_cents"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	AvailableAt    string     `json:"available_at,omitempty"`
	IdempotencyKey string     `json:"idempotency_key"`
	PaymentRef     string     `json:"payment_ref,omitempty"`
	ChargeRef      string     `json:"charge_ref,omitempty"`
	RefundRef      string     `json:"refund_ref,omitempty"`
	PayoutRef      string     `json:"payout_ref,omitempty"`
	Note           string     `json:"note,omitempty"`
	CreatedAt      string     `json:"created_at"`
}

func newEntryResponse(e model.LedgerEntry) entryResponse {
	resp := entryResponse{
		ID:             e.ID,
		PartnerID:      e.PartnerID,
		OrderID:        e.OrderID,
		Type:           string(e.Type),
		AmountCents:    e.AmountCents,
		Currency:       e.Currency,
		Status:         string(e.Status),
		IdempotencyKey: e.IdempotencyKey,
		PaymentRef:     e.PaymentRef,
		ChargeRef:      e.ChargeRef,
		RefundRef:      e.RefundRef,
		PayoutRef:      e.PayoutRef,
		Note:           e.Note,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
	if e.AvailableAt != nil {
		resp.AvailableAt = e.AvailableAt.Format(time.RFC3339)
	}
	return resp
}

type settlementResponse struct {
	Sale entryResponse `json:"sale"`
	Fee  entryResponse `json:"fee"`
}

type deliveryResponse struct {
	Transitioned int `json:"transitioned"`
}

type refundResponse struct {
	RefundRef        string `json:"refund_ref"`
	BalanceCents     int64  `json:"balance_cents"`
	DebtCents        int64  `json:"debt_cents"`
	PayoutsSuspended bool   `json:"payouts_suspended"`
}

type debtResponse struct {
	Entry            entryResponse `json:"entry"`
	BalanceCents     int64         `json:"balance_cents"`
	DebtCents        int64         `json:"debt_cents"`
	PayoutsSuspended bool          `json:"payouts_suspended"`
}

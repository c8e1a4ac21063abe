// Package model содержит доменные сущности расчётного ядра маркетплейса.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EntryType описывает вид записи в леджере.
type EntryType string

const (
	EntryTypeSale        EntryType = "sale"
	EntryTypePlatformFee EntryType = "platform_fee"
	EntryTypeRefund      EntryType = "refund"
	EntryTypePayout      EntryType = "payout"
	EntryTypeAdjustment  EntryType = "adjustment"
)

// IsValid сообщает, входит ли тип в закрытый набор типов записей.
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeSale, EntryTypePlatformFee, EntryTypeRefund, EntryTypePayout, EntryTypeAdjustment:
		return true
	}
	return false
}

// ValidAmount проверяет знак суммы для данного типа записи.
func (t EntryType) ValidAmount(amountCents int64) bool {
	switch t {
	case EntryTypeSale:
		return amountCents > 0
	case EntryTypePlatformFee, EntryTypeRefund, EntryTypePayout:
		return amountCents < 0
	case EntryTypeAdjustment:
		return amountCents != 0
	}
	return false
}

// EntryStatus описывает стадию жизненного цикла записи леджера.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusAvailable EntryStatus = "available"
	EntryStatusPaid      EntryStatus = "paid"
)

// IsValid сообщает, входит ли статус в закрытый набор статусов.
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusPending, EntryStatusAvailable, EntryStatusPaid:
		return true
	}
	return false
}

// CanTransitionTo разрешает только переходы pending→available и available→paid.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	switch s {
	case EntryStatusPending:
		return next == EntryStatusAvailable
	case EntryStatusAvailable:
		return next == EntryStatusPaid
	}
	return false
}

// LedgerEntry описывает неизменяемый факт о деньгах, причитающихся продавцу или с продавца.
type LedgerEntry struct {
	ID             uuid.UUID
	PartnerID      uuid.UUID
	OrderID        *uuid.UUID
	Type           EntryType
	AmountCents    int64
	Currency       string
	Status         EntryStatus
	AvailableAt    *time.Time
	IdempotencyKey string
	PaymentRef     string
	ChargeRef      string
	RefundRef      string
	PayoutRef      string
	Note           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntryRef содержит id и сумму записи, которую потребляет выплата.
type EntryRef struct {
	ID          uuid.UUID
	AmountCents int64
}

// TransitionExtra содержит поля, которые разрешено менять вместе со статусом.
type TransitionExtra struct {
	AvailableAt *time.Time
	PayoutRef   string
}

// EntryFilter ограничивает выборку записей партнёра.
type EntryFilter struct {
	Status  EntryStatus
	Type    EntryType
	OrderID *uuid.UUID
	Limit   int
}

// VendorAccount представляет минимальную проекцию аккаунта продавца у платёжного провайдера.
type VendorAccount struct {
	ID                 uuid.UUID
	ProcessorAccountID string
	// PayoutsEnabled принадлежит подсистеме онбординга, ядро его не меняет.
	PayoutsEnabled     bool
	ChargesEnabled     bool
	DetailsSubmitted   bool
	DebtCents          int64
	SuspensionReason   *string
	UpdatedAt          time.Time
}

// SuspensionReasonDebt фиксирует, что выплаты отключены из-за долга.
const SuspensionReasonDebt = "debt_threshold_exceeded"

// SuspendedForDebt сообщает, приостановлены ли выплаты из-за превышения долга.
func (a VendorAccount) SuspendedForDebt() bool {
	return a.SuspensionReason != nil && *a.SuspensionReason == SuspensionReasonDebt
}

// PayoutsAllowed сообщает, можно ли платить продавцу: онбординг разрешил выплаты
// и ядро их не приостановило.
func (a VendorAccount) PayoutsAllowed() bool {
	return a.PayoutsEnabled && a.SuspensionReason == nil
}

// CapturedOrder описывает событие успешного списания оплаты заказа.
type CapturedOrder struct {
	OrderID    uuid.UUID
	PartnerID  uuid.UUID
	TotalCents int64
	Currency   string
	PaymentRef string
	ChargeRef  string
}

// SettlementRecord описывает результат записи продажи и комиссии по заказу.
type SettlementRecord struct {
	Sale         LedgerEntry
	Fee          LedgerEntry
	SaleInserted bool
	FeeInserted  bool
}

// RefundResult описывает состояние продавца после возврата.
type RefundResult struct {
	RefundRef        string
	BalanceCents     int64
	DebtCents        int64
	PayoutsSuspended bool
}

// DebtAdjustment описывает ручную корректировку долга администратором.
type DebtAdjustment struct {
	PartnerID      uuid.UUID
	AmountCents    int64
	Note           string
	IdempotencyKey string
}

// DebtResult описывает состояние долга после корректировки.
type DebtResult struct {
	Entry            LedgerEntry
	BalanceCents     int64
	DebtCents        int64
	PayoutsSuspended bool
}

// Balance содержит балансы партнёра в разрезе статусов.
type Balance struct {
	PartnerID      uuid.UUID `json:"partner_id"`
	PendingCents   int64     `json:"pending_cents"`
	AvailableCents int64     `json:"available_cents"`
	HeldCents      int64     `json:"held_cents"`
	PaidCents      int64     `json:"paid_cents"`
	DebtCents      int64     `json:"debt_cents"`
	PayoutsEnabled bool      `json:"payouts_enabled"` // с учётом приостановки за долг
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus описывает состояние запуска пакетной выплаты.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsValid сообщает, входит ли статус в закрытый набор.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// PayoutRun описывает одно выполнение пакетной выплаты за расчётный период.
type PayoutRun struct {
	ID                uuid.UUID       `json:"id"`
	ISOWeek           string          `json:"iso_week"`
	Status            RunStatus       `json:"status"`
	IdempotencyKey    string          `json:"idempotency_key"`
	TotalPartners     int             `json:"total_partners"`
	SuccessfulPayouts int             `json:"successful_payouts"`
	FailedPayouts     int             `json:"failed_payouts"`
	SkippedPartners   int             `json:"skipped_partners"`
	TotalAmountCents  int64           `json:"total_amount_cents"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Results           []PartnerResult `json:"results,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// RunFilter ограничивает выборку запусков.
type RunFilter struct {
	Status RunStatus
	Limit  int
}

// PartnerOutcome описывает итог обработки одного партнёра в запуске.
type PartnerOutcome string

const (
	OutcomeSuccess PartnerOutcome = "success"
	OutcomeSkipped PartnerOutcome = "skipped"
	OutcomeError   PartnerOutcome = "error"
)

// Причины пропуска партнёра.
const (
	SkipReasonNoBalance    = "no balance"
	SkipReasonBelowMinimum = "below minimum"
)

// PartnerResult описывает итог выплаты одному партнёру.
type PartnerResult struct {
	PartnerID   uuid.UUID      `json:"partner_id"`
	Outcome     PartnerOutcome `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	AmountCents int64          `json:"amount_cents"`
	PayoutRef   string         `json:"payout_ref,omitempty"`
	Reconciled  bool           `json:"reconciled,omitempty"`
}

// PayoutRunResult содержит сводку выполнения RunPayouts.
type PayoutRunResult struct {
	RunID             uuid.UUID       `json:"run_id,omitempty"`
	Period            string          `json:"period,omitempty"`
	Status            RunStatus       `json:"status,omitempty"`
	Skipped           bool            `json:"skipped"`
	SkipReason        string          `json:"skip_reason,omitempty"`
	ExistingRunID     uuid.UUID       `json:"existing_run_id,omitempty"`
	Results           []PartnerResult `json:"results,omitempty"`
	TotalPartners     int             `json:"total_partners"`
	SuccessfulPayouts int             `json:"successful_payouts"`
	FailedPayouts     int             `json:"failed_payouts"`
	SkippedPartners   int             `json:"skipped_partners"`
	TotalAmountCents  int64           `json:"total_amount_cents"`
}

// ReconciliationStatus описывает состояние сверки неизвестного исхода выплаты.
type ReconciliationStatus string

const (
	ReconciliationOpen              ReconciliationStatus = "open"
	ReconciliationResolvedPaid      ReconciliationStatus = "resolved_paid"
	ReconciliationResolvedNotIssued ReconciliationStatus = "resolved_not_issued"
)

// PayoutReconciliation фиксирует выплату, исход которой у провайдера не подтверждён в леджере.
type PayoutReconciliation struct {
	ID               uuid.UUID
	PartnerID        uuid.UUID
	RunID            uuid.UUID
	IdempotencyToken string
	AmountCents      int64
	EntryIDs         []uuid.UUID
	Reason           string
	Status           ReconciliationStatus
	PayoutRef        string
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

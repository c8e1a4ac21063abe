// Package service реализует бизнес-логику расчётного ядра маркетплейса:
// запись продаж и комиссий, доступность средств, возвраты с учётом долга и пакетные выплаты.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/metrics"
	"github.com/mmeshcher/settlement-core/internal/model"
)

// Значения политики по умолчанию.
const (
	DefaultHoldDays           = 7
	DefaultMinPayoutCents     = 3000
	DefaultDebtThresholdCents = 10000
	DefaultPayoutConcurrency  = 4
	DefaultCurrency           = "usd"
)

var (
	// ErrInvalidInput возвращается при некорректных идентификаторах или параметрах запроса.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidAmount возвращается при недопустимой сумме.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrRefundAmountInvalid возвращается, если сумма возврата не положительна или больше суммы продажи.
	ErrRefundAmountInvalid = errors.New("refund amount must be positive and not exceed the sale")
)

// ProcessorError оборачивает ошибку платёжного провайдера.
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor %s: %v", e.Op, e.Err)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// Repository описывает контракт доступа к данным, используемый сервисом.
// Методы, вызванные внутри InTx, выполняются в одной транзакции.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	InSnapshot(ctx context.Context, fn func(ctx context.Context) error) error

	InsertEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, bool, error)
	TransitionStatus(ctx context.Context, entryID uuid.UUID, from, to model.EntryStatus, extra model.TransitionExtra) error
	SumByStatus(ctx context.Context, partnerID uuid.UUID, status model.EntryStatus, asOf time.Time) (int64, error)
	SumUndistributed(ctx context.Context, partnerID uuid.UUID) (int64, error)
	SumByType(ctx context.Context, partnerID uuid.UUID, entryType model.EntryType) (int64, error)
	ListAvailableEntries(ctx context.Context, partnerID uuid.UUID, asOf time.Time) ([]model.EntryRef, error)
	ListEntriesByOrder(ctx context.Context, orderID uuid.UUID) ([]model.LedgerEntry, error)
	GetSaleEntry(ctx context.Context, orderID uuid.UUID) (model.LedgerEntry, error)
	ListEntries(ctx context.Context, partnerID uuid.UUID, filter model.EntryFilter) ([]model.LedgerEntry, error)

	GetVendorAccount(ctx context.Context, partnerID uuid.UUID) (model.VendorAccount, error)
	LockVendorAccount(ctx context.Context, partnerID uuid.UUID) (model.VendorAccount, error)
	UpdateVendorDebt(ctx context.Context, partnerID uuid.UUID, debtCents int64, suspensionReason *string) error
	UpsertVendorAccount(ctx context.Context, a model.VendorAccount) error
	ListEligiblePartners(ctx context.Context, debtThresholdCents int64) ([]model.VendorAccount, error)

	CreatePayoutRun(ctx context.Context, run model.PayoutRun) (uuid.UUID, bool, error)
	FinalizePayoutRun(ctx context.Context, run model.PayoutRun) error
	GetPayoutRun(ctx context.Context, id uuid.UUID) (model.PayoutRun, error)
	ListPayoutRuns(ctx context.Context, filter model.RunFilter) ([]model.PayoutRun, error)

	CreateReconciliation(ctx context.Context, rec model.PayoutReconciliation) error
	OpenReconciliations(ctx context.Context, partnerID uuid.UUID) ([]model.PayoutReconciliation, error)
	ResolveReconciliation(ctx context.Context, id uuid.UUID, status model.ReconciliationStatus, payoutRef string) error
}

// Processor описывает платёжного провайдера.
type Processor interface {
	IssuePayout(ctx context.Context, accountRef string, amountCents int64, token string) (string, error)
	IssueRefund(ctx context.Context, paymentRef string, amountCents int64, token string) (string, error)
	FindPayout(ctx context.Context, token string) (string, bool, error)
}

// Policy содержит денежные пороги и параметры выплат.
type Policy struct {
	HoldDays           int
	MinPayoutCents     int64
	DebtThresholdCents int64
	PayoutConcurrency  int
	Currency           string
}

// DefaultPolicy возвращает политику по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		HoldDays:           DefaultHoldDays,
		MinPayoutCents:     DefaultMinPayoutCents,
		DebtThresholdCents: DefaultDebtThresholdCents,
		PayoutConcurrency:  DefaultPayoutConcurrency,
		Currency:           DefaultCurrency,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.HoldDays <= 0 {
		p.HoldDays = d.HoldDays
	}
	if p.MinPayoutCents <= 0 {
		p.MinPayoutCents = d.MinPayoutCents
	}
	if p.DebtThresholdCents <= 0 {
		p.DebtThresholdCents = d.DebtThresholdCents
	}
	if p.PayoutConcurrency <= 0 {
		p.PayoutConcurrency = d.PayoutConcurrency
	}
	p.Currency = strings.ToLower(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = d.Currency
	}
	return p
}

// Service содержит бизнес-логику расчётного ядра.
type Service struct {
	repo      Repository
	processor Processor
	policy    Policy
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewService создаёт сервис с указанным репозиторием, платёжным провайдером и политикой.
// Логгер и метрики могут быть nil.
func NewService(repo Repository, processor Processor, policy Policy, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		processor: processor,
		policy:    policy.withDefaults(),
		logger:    logger,
		metrics:   m,
	}
}

// Policy возвращает действующую политику.
func (s *Service) Policy() Policy {
	return s.policy
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Package handler содержит HTTP-обработчики API расчётного сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/middleware"
	"github.com/mmeshcher/settlement-core/internal/model"
	"github.com/mmeshcher/settlement-core/internal/repository"
	"github.com/mmeshcher/settlement-core/internal/service"
	"github.com/mmeshcher/settlement-core/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RecordSaleAndFee(ctx context.Context, order model.CapturedOrder) (model.SettlementRecord, error)
	MarkAvailableAfterDelivery(ctx context.Context, orderID uuid.UUID, completedAt time.Time) (int, error)
	SyncVendorAccount(ctx context.Context, a model.VendorAccount) error
	GetBalance(ctx context.Context, partnerID uuid.UUID, now time.Time) (*model.Balance, error)
	ListEntries(ctx context.Context, partnerID uuid.UUID, filter model.EntryFilter) ([]model.LedgerEntry, error)
	AdjustDebt(ctx context.Context, adj model.DebtAdjustment) (model.DebtResult, error)
	ProcessRefund(ctx context.Context, orderID uuid.UUID, amountCents int64, reason string) (model.RefundResult, error)
	ListPayoutRuns(ctx context.Context, filter model.RunFilter) ([]model.PayoutRun, error)
	GetPayoutRunDetail(ctx context.Context, id uuid.UUID) (model.PayoutRun, error)
	RunPayouts(ctx context.Context, now time.Time) (model.PayoutRunResult, error)
}

// Handler реализует HTTP-обработчики API расчётного сервиса.
type Handler struct {
	service  Service
	logger   *zap.Logger
	auth     *middleware.AdminAuth
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// Если gatherer равен nil, /metrics отдаёт реестр Prometheus по умолчанию.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AdminAuth, gatherer prometheus.Gatherer) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		service:  s,
		logger:   logger,
		auth:     auth,
		gatherer: gatherer,
		now:      time.Now,
	}
}

type validationErrorResponse struct {
	Errors validation.Errors `json:"errors"`
}

// decode читает JSON-тело и проверяет его тегами validate.
// Ответ с ошибкой уже записан, если возвращено false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return h.validate(w, dst)
}

func (h *Handler) validate(w http.ResponseWriter, v any) bool {
	err := validation.Struct(v)
	if err == nil {
		return true
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{Errors: verrs})
		return false
	}
	h.logger.Error("validate request", zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	return false
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит доменную ошибку в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrRefundAmountInvalid),
		errors.Is(err, repository.ErrInvalidEntry):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrPartnerNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrStaleState),
		errors.Is(err, repository.ErrIllegalTransition):
		status = http.StatusConflict
	case service.IsProcessorError(err):
		status = http.StatusBadGateway
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" error", fields...)
	} else {
		h.logger.Info(op+" rejected", fields...)
	}

	if status == http.StatusUnprocessableEntity {
		http.Error(w, err.Error(), status)
		return
	}
	http.Error(w, http.StatusText(status), status)
}

package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/model"
)

// OrderCaptured записывает продажу и комиссию платформы по оплаченному заказу.
// Повторное событие отвечает 200 с уже записанными проводками.
func (h *Handler) OrderCaptured(w http.ResponseWriter, r *http.Request) {
	var req orderCapturedRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.service.RecordSaleAndFee(r.Context(), model.CapturedOrder{
		OrderID:    uuid.MustParse(req.OrderID),
		PartnerID:  uuid.MustParse(req.PartnerID),
		TotalCents: req.TotalCents,
		Currency:   strings.ToLower(req.Currency),
		PaymentRef: req.PaymentRef,
		ChargeRef:  req.ChargeRef,
	})
	if err != nil {
		h.writeError(w, r, "record sale", err)
		return
	}

	status := http.StatusOK
	if rec.SaleInserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, settlementResponse{
		Sale: newEntryResponse(rec.Sale),
		Fee:  newEntryResponse(rec.Fee),
	})
}

// DeliveryCompleted запускает удержание записей заказа после доставки.
func (h *Handler) DeliveryCompleted(w http.ResponseWriter, r *http.Request) {
	var req deliveryCompletedRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.service.MarkAvailableAfterDelivery(r.Context(), uuid.MustParse(req.OrderID), req.CompletedAt)
	if err != nil {
		h.writeError(w, r, "mark available", err)
		return
	}

	writeJSON(w, http.StatusOK, deliveryResponse{Transitioned: n})
}

// AccountUpdated принимает флаги аккаунта продавца от подсистемы онбординга.
func (h *Handler) AccountUpdated(w http.ResponseWriter, r *http.Request) {
	var req accountUpdatedRequest
	if !h.decode(w, r, &req) {
		return
	}

	partnerID := uuid.MustParse(req.PartnerID)
	err := h.service.SyncVendorAccount(r.Context(), model.VendorAccount{
		ID:                 partnerID,
		ProcessorAccountID: req.ProcessorAccountID,
		PayoutsEnabled:     req.PayoutsEnabled,
		ChargesEnabled:     req.ChargesEnabled,
		DetailsSubmitted:   req.DetailsSubmitted,
	})
	if err != nil {
		h.writeError(w, r, "sync account", err)
		return
	}

	h.logger.Debug("account event applied", zap.String("partner_id", partnerID.String()))
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/settlement-core/internal/model"
)

// GetBalance возвращает балансы партнёра на текущий момент.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := pathID(w, r, "partnerID")
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), partnerID, h.now().UTC())
	if err != nil {
		h.writeError(w, r, "get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// ListEntries возвращает записи леджера партнёра с фильтрами status, type, order_id и limit.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := pathID(w, r, "partnerID")
	if !ok {
		return
	}

	q := r.URL.Query()
	query := entriesQuery{
		Status:  q.Get("status"),
		Type:    q.Get("type"),
		OrderID: q.Get("order_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		query.Limit = limit
	}
	if !h.validate(w, query) {
		return
	}

	filter := model.EntryFilter{
		Status: model.EntryStatus(query.Status),
		Type:   model.EntryType(query.Type),
		Limit:  query.Limit,
	}
	if query.OrderID != "" {
		orderID := uuid.MustParse(query.OrderID)
		filter.OrderID = &orderID
	}

	entries, err := h.service.ListEntries(r.Context(), partnerID, filter)
	if err != nil {
		h.writeError(w, r, "list entries", err)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AdjustDebt записывает ручную корректировку долга партнёра.
// Ключ идемпотентности берётся из тела или заголовка Idempotency-Key.
func (h *Handler) AdjustDebt(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := pathID(w, r, "partnerID")
	if !ok {
		return
	}

	var req debtAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	res, err := h.service.AdjustDebt(r.Context(), model.DebtAdjustment{
		PartnerID:      partnerID,
		AmountCents:    req.AmountCents,
		Note:           req.Note,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeError(w, r, "adjust debt", err)
		return
	}

	writeJSON(w, http.StatusCreated, debtResponse{
		Entry:            newEntryResponse(res.Entry),
		BalanceCents:     res.BalanceCents,
		DebtCents:        res.DebtCents,
		PayoutsSuspended: res.PayoutsSuspended,
	})
}

// Refund возвращает покупателю часть или всю сумму заказа.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}

	var req refundRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.ProcessRefund(r.Context(), orderID, req.AmountCents, req.Reason)
	if err != nil {
		h.writeError(w, r, "refund", err)
		return
	}

	writeJSON(w, http.StatusCreated, refundResponse{
		RefundRef:        res.RefundRef,
		BalanceCents:     res.BalanceCents,
		DebtCents:        res.DebtCents,
		PayoutsSuspended: res.PayoutsSuspended,
	})
}

package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/model"
	"github.com/mmeshcher/settlement-core/internal/validation"
)

// ListPayoutRuns возвращает историю запусков выплат, новые первыми.
func (h *Handler) ListPayoutRuns(w http.ResponseWriter, r *http.Request) {
	filter := model.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	runs, err := h.service.ListPayoutRuns(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, "list payout runs", err)
		return
	}

	if len(runs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// GetPayoutRun возвращает запуск с итогами по каждому партнёру.
func (h *Handler) GetPayoutRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathID(w, r, "runID")
	if !ok {
		return
	}

	run, err := h.service.GetPayoutRunDetail(r.Context(), runID)
	if err != nil {
		h.writeError(w, r, "get payout run", err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// TriggerPayoutRun запускает выплату вручную. Дата в теле задаёт день запуска,
// без неё используется текущая дата UTC.
func (h *Handler) TriggerPayoutRun(w http.ResponseWriter, r *http.Request) {
	var req payoutTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !h.validate(w, req) {
		return
	}

	now := h.now().UTC()
	if req.Date != "" {
		day, err := validation.ParseDate(req.Date)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if day.After(now) {
			h.logger.Warn("payout run date is in the future",
				zap.String("date", req.Date),
				zap.Time("now", now),
			)
			http.Error(w, "payout date is in the future", http.StatusUnprocessableEntity)
			return
		}
		now = day
	}

	res, err := h.service.RunPayouts(r.Context(), now)
	if err != nil {
		h.writeError(w, r, "run payouts", err)
		return
	}

	h.logger.Info("manual payout run",
		zap.String("period", res.Period),
		zap.Bool("skipped", res.Skipped),
		zap.String("skip_reason", res.SkipReason),
	)

	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

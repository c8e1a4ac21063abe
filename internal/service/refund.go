package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/model"
)

// debtState описывает состояние продавца после пересчёта долга.
type debtState struct {
	balanceCents int64
	debtCents    int64
	suspended    bool
	newlyBlocked bool
}

// ProcessRefund возвращает покупателю amountCents по заказу через провайдера, записывает
// возврат в леджер и пересчитывает долг продавца. При долге выше порога выплаты
// продавцу приостанавливаются, при снижении до порога возобновляются.
func (s *Service) ProcessRefund(ctx context.Context, orderID uuid.UUID, amountCents int64, reason string) (model.RefundResult, error) {
	if orderID == uuid.Nil {
		return model.RefundResult{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if amountCents <= 0 {
		s.metrics.ObserveRefund("invalid")
		return model.RefundResult{}, fmt.Errorf("%w: %d", ErrRefundAmountInvalid, amountCents)
	}

	var (
		res     model.RefundResult
		blocked bool
	)
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		sale, err := s.repo.GetSaleEntry(ctx, orderID)
		if err != nil {
			return err
		}
		paymentRef := sale.PaymentRef
		if paymentRef == "" {
			paymentRef = sale.ChargeRef
		}
		if paymentRef == "" {
			return fmt.Errorf("%w: order %s has no payment reference", ErrInvalidInput, orderID)
		}

		account, err := s.repo.LockVendorAccount(ctx, sale.PartnerID)
		if err != nil {
			return err
		}
		if err := s.checkRefundCap(ctx, sale, amountCents); err != nil {
			return err
		}

		refundRef, err := s.processor.IssueRefund(ctx, paymentRef, amountCents, refundToken(orderID, amountCents))
		if err != nil {
			return &ProcessorError{Op: "refund", Err: err}
		}

		_, _, err = s.repo.InsertEntry(ctx, model.LedgerEntry{
			PartnerID:      sale.PartnerID,
			OrderID:        &orderID,
			Type:           model.EntryTypeRefund,
			AmountCents:    -amountCents,
			Currency:       sale.Currency,
			Status:         model.EntryStatusAvailable,
			IdempotencyKey: refundKey(refundRef),
			RefundRef:      refundRef,
			Note:           strings.TrimSpace(reason),
		})
		if err != nil {
			return fmt.Errorf("record refund: %w", err)
		}

		state, err := s.reevaluateDebt(ctx, account)
		if err != nil {
			return err
		}
		res = model.RefundResult{
			RefundRef:        refundRef,
			BalanceCents:     state.balanceCents,
			DebtCents:        state.debtCents,
			PayoutsSuspended: state.suspended,
		}
		blocked = state.newlyBlocked
		return nil
	})
	if err != nil {
		s.metrics.ObserveRefund("failed")
		s.logger.Warn("refund failed",
			zap.String("order_id", orderID.String()),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err),
		)
		return model.RefundResult{}, err
	}

	s.metrics.ObserveRefund("ok")
	if blocked {
		s.metrics.IncSuspension()
	}
	s.logger.Info("refund processed",
		zap.String("order_id", orderID.String()),
		zap.String("refund_ref", res.RefundRef),
		zap.Int64("amount_cents", amountCents),
		zap.Int64("debt_cents", res.DebtCents),
		zap.Bool("payouts_suspended", res.PayoutsSuspended),
	)
	return res, nil
}

// checkRefundCap проверяет, что сумма возвратов по заказу не превысит продажу.
// Повтор уже записанного возврата той же суммы пропускается: провайдер вернёт тот же возврат по токену.
func (s *Service) checkRefundCap(ctx context.Context, sale model.LedgerEntry, amountCents int64) error {
	entries, err := s.repo.ListEntriesByOrder(ctx, *sale.OrderID)
	if err != nil {
		return err
	}
	var refunded int64
	for _, e := range entries {
		if e.Type != model.EntryTypeRefund {
			continue
		}
		if e.AmountCents == -amountCents {
			return nil
		}
		refunded -= e.AmountCents
	}
	if refunded+amountCents > sale.AmountCents {
		return fmt.Errorf("%w: %d with %d already refunded exceeds sale %d",
			ErrRefundAmountInvalid, amountCents, refunded, sale.AmountCents)
	}
	return nil
}

// AdjustDebt записывает ручную корректировку баланса продавца и пересчитывает долг.
// Положительная сумма уменьшает долг, отрицательная увеличивает.
func (s *Service) AdjustDebt(ctx context.Context, adj model.DebtAdjustment) (model.DebtResult, error) {
	if adj.PartnerID == uuid.Nil {
		return model.DebtResult{}, fmt.Errorf("%w: partner id is required", ErrInvalidInput)
	}
	if adj.AmountCents == 0 {
		return model.DebtResult{}, fmt.Errorf("%w: adjustment must be non-zero", ErrInvalidAmount)
	}

	key := strings.TrimSpace(adj.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	var (
		res     model.DebtResult
		blocked bool
	)
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		account, err := s.repo.LockVendorAccount(ctx, adj.PartnerID)
		if err != nil {
			return err
		}

		entry, _, err := s.repo.InsertEntry(ctx, model.LedgerEntry{
			PartnerID:      adj.PartnerID,
			Type:           model.EntryTypeAdjustment,
			AmountCents:    adj.AmountCents,
			Currency:       s.policy.Currency,
			Status:         model.EntryStatusAvailable,
			IdempotencyKey: adjustmentKey(key),
			Note:           strings.TrimSpace(adj.Note),
		})
		if err != nil {
			return fmt.Errorf("record adjustment: %w", err)
		}

		state, err := s.reevaluateDebt(ctx, account)
		if err != nil {
			return err
		}
		res = model.DebtResult{
			Entry:            entry,
			BalanceCents:     state.balanceCents,
			DebtCents:        state.debtCents,
			PayoutsSuspended: state.suspended,
		}
		blocked = state.newlyBlocked
		return nil
	})
	if err != nil {
		return model.DebtResult{}, err
	}
	if blocked {
		s.metrics.IncSuspension()
	}

	s.logger.Info("debt adjusted",
		zap.String("partner_id", adj.PartnerID.String()),
		zap.Int64("amount_cents", adj.AmountCents),
		zap.Int64("debt_cents", res.DebtCents),
		zap.Bool("payouts_suspended", res.PayoutsSuspended),
	)
	return res, nil
}

// reevaluateDebt пересчитывает долг по невыплаченному балансу и сохраняет состояние приостановки.
// Вызывается внутри транзакции, в которой аккаунт уже заблокирован.
func (s *Service) reevaluateDebt(ctx context.Context, account model.VendorAccount) (debtState, error) {
	balance, err := s.repo.SumUndistributed(ctx, account.ID)
	if err != nil {
		return debtState{}, err
	}

	var debt int64
	if balance < 0 {
		debt = -balance
	}

	reason := account.SuspensionReason
	var newlyBlocked, lifted bool

	switch {
	case debt > s.policy.DebtThresholdCents:
		if !account.SuspendedForDebt() {
			newlyBlocked = true
		}
		r := model.SuspensionReasonDebt
		reason = &r
	case account.SuspendedForDebt():
		reason = nil
		lifted = true
	}

	if err := s.repo.UpdateVendorDebt(ctx, account.ID, debt, reason); err != nil {
		return debtState{}, err
	}

	if newlyBlocked {
		s.logger.Warn("payouts suspended for debt",
			zap.String("partner_id", account.ID.String()),
			zap.Int64("debt_cents", debt),
			zap.Int64("threshold_cents", s.policy.DebtThresholdCents),
		)
	} else if lifted {
		s.logger.Info("debt suspension lifted",
			zap.String("partner_id", account.ID.String()),
			zap.Int64("debt_cents", debt),
			zap.Bool("onboarding_payouts_enabled", account.PayoutsEnabled),
		)
	}

	return debtState{
		balanceCents: balance,
		debtCents:    debt,
		suspended:    reason != nil,
		newlyBlocked: newlyBlocked,
	}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/settlement-core/internal/model"
	"github.com/mmeshcher/settlement-core/internal/processor"
)

// Причины пропуска запуска.
const (
	SkipReasonNotPayoutDay = "not a payout day"
	SkipReasonAlreadyRun   = "period already executed"
)

const skipReasonNotEligible = "payouts not enabled"

// IsValidPayoutDay сообщает, является ли дата днём выплат: понедельник чётной ISO-недели.
// День и неделя вычисляются в часовом поясе now.
func IsValidPayoutDay(now time.Time) bool {
	if now.Weekday() != time.Monday {
		return false
	}
	_, week := now.ISOWeek()
	return week%2 == 0
}

// PeriodKey возвращает ключ идемпотентности запуска за ISO-неделю даты.
func PeriodKey(now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("payout-%04d-W%02d", year, week)
}

func isoWeekLabel(now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// payoutToken строит токен идемпотентности выплаты партнёру за период.
func payoutToken(partnerID uuid.UUID, now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("payout-%s-%04d-W%02d", partnerID, year, week)
}

// RunPayouts выполняет пакетную выплату за период, которому принадлежит now.
// Вне дня выплат и при повторном запуске за тот же период ничего не делает и возвращает Skipped.
// Ошибка выплаты одному партнёру не прерывает обработку остальных.
func (s *Service) RunPayouts(ctx context.Context, now time.Time) (model.PayoutRunResult, error) {
	if !IsValidPayoutDay(now) {
		return model.PayoutRunResult{Skipped: true, SkipReason: SkipReasonNotPayoutDay}, nil
	}

	started := time.Now()
	period := PeriodKey(now)

	runID, created, err := s.repo.CreatePayoutRun(ctx, model.PayoutRun{
		ISOWeek:        isoWeekLabel(now),
		IdempotencyKey: period,
	})
	if err != nil {
		return model.PayoutRunResult{}, fmt.Errorf("create payout run: %w", err)
	}
	if !created {
		s.logger.Info("payout period already executed",
			zap.String("period", period),
			zap.String("run_id", runID.String()),
		)
		return model.PayoutRunResult{
			Period:        period,
			Skipped:       true,
			SkipReason:    SkipReasonAlreadyRun,
			ExistingRunID: runID,
		}, nil
	}

	s.logger.Info("payout run started", zap.String("period", period), zap.String("run_id", runID.String()))

	partners, err := s.repo.ListEligiblePartners(ctx, s.policy.DebtThresholdCents)
	if err != nil {
		err = fmt.Errorf("list eligible partners: %w", err)
		s.failRun(ctx, runID, err, started)
		return model.PayoutRunResult{RunID: runID, Period: period, Status: model.RunStatusFailed}, err
	}

	results := make([]model.PartnerResult, len(partners))
	var g errgroup.Group
	g.SetLimit(s.policy.PayoutConcurrency)
	for i, partner := range partners {
		g.Go(func() error {
			results[i] = s.payPartner(ctx, runID, partner, now)
			return nil
		})
	}
	_ = g.Wait()

	res := model.PayoutRunResult{
		RunID:         runID,
		Period:        period,
		Status:        model.RunStatusCompleted,
		Results:       results,
		TotalPartners: len(partners),
	}
	for _, r := range results {
		switch r.Outcome {
		case model.OutcomeSuccess:
			res.SuccessfulPayouts++
			res.TotalAmountCents += r.AmountCents
		case model.OutcomeError:
			res.FailedPayouts++
		case model.OutcomeSkipped:
			res.SkippedPartners++
		}
		s.metrics.ObservePartner(string(r.Outcome), successAmount(r))
	}

	err = s.repo.FinalizePayoutRun(context.WithoutCancel(ctx), model.PayoutRun{
		ID:                runID,
		Status:            model.RunStatusCompleted,
		TotalPartners:     res.TotalPartners,
		SuccessfulPayouts: res.SuccessfulPayouts,
		FailedPayouts:     res.FailedPayouts,
		SkippedPartners:   res.SkippedPartners,
		TotalAmountCents:  res.TotalAmountCents,
		Results:           results,
	})
	if err != nil {
		return res, fmt.Errorf("finalize payout run: %w", err)
	}
	s.metrics.ObserveRun(string(model.RunStatusCompleted), time.Since(started))

	s.logger.Info("payout run completed",
		zap.String("run_id", runID.String()),
		zap.Int("partners", res.TotalPartners),
		zap.Int("paid", res.SuccessfulPayouts),
		zap.Int("failed", res.FailedPayouts),
		zap.Int("skipped", res.SkippedPartners),
		zap.Int64("total_cents", res.TotalAmountCents),
	)
	return res, nil
}

func successAmount(r model.PartnerResult) int64 {
	if r.Outcome == model.OutcomeSuccess {
		return r.AmountCents
	}
	return 0
}

func (s *Service) failRun(ctx context.Context, runID uuid.UUID, cause error, started time.Time) {
	s.logger.Error("payout run failed", zap.String("run_id", runID.String()), zap.Error(cause))
	err := s.repo.FinalizePayoutRun(context.WithoutCancel(ctx), model.PayoutRun{
		ID:           runID,
		Status:       model.RunStatusFailed,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		s.logger.Error("mark payout run failed", zap.String("run_id", runID.String()), zap.Error(err))
	}
	s.metrics.ObserveRun(string(model.RunStatusFailed), time.Since(started))
}

func (s *Service) eligible(a model.VendorAccount) bool {
	return a.PayoutsAllowed() && a.ChargesEnabled && a.DetailsSubmitted && a.DebtCents <= s.policy.DebtThresholdCents
}

// payPartner выплачивает партнёру доступный баланс в отдельной транзакции.
// Аккаунт и потребляемые записи заблокированы до фиксации, поэтому после успешного
// вызова провайдера записи не могут измениться конкурентно.
func (s *Service) payPartner(ctx context.Context, runID uuid.UUID, partner model.VendorAccount, now time.Time) model.PartnerResult {
	token := payoutToken(partner.ID, now)

	var (
		res       model.PartnerResult
		total     int64
		entryIDs  []uuid.UUID
		issuedRef string
		unknown   bool
	)
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		res = model.PartnerResult{PartnerID: partner.ID}
		total, entryIDs, issuedRef, unknown = 0, nil, "", false

		account, err := s.repo.LockVendorAccount(ctx, partner.ID)
		if err != nil {
			return err
		}
		if !s.eligible(account) {
			res.Outcome = model.OutcomeSkipped
			res.Reason = skipReasonNotEligible
			return nil
		}

		reconciled, err := s.reconcile(ctx, account)
		if err != nil {
			return err
		}
		res.Reconciled = reconciled

		entries, err := s.repo.ListAvailableEntries(ctx, account.ID, now)
		if err != nil {
			return err
		}
		for _, e := range entries {
			total += e.AmountCents
			entryIDs = append(entryIDs, e.ID)
		}
		res.AmountCents = total

		if len(entries) == 0 || total <= 0 {
			res.Outcome = model.OutcomeSkipped
			res.Reason = model.SkipReasonNoBalance
			return nil
		}
		if total < s.policy.MinPayoutCents {
			res.Outcome = model.OutcomeSkipped
			res.Reason = model.SkipReasonBelowMinimum
			return nil
		}

		payoutRef, err := s.processor.IssuePayout(ctx, account.ProcessorAccountID, total, token)
		if err != nil {
			unknown = processor.IsOutcomeUnknown(err)
			return &ProcessorError{Op: "payout", Err: err}
		}
		issuedRef = payoutRef

		if err := s.recordPayout(ctx, account.ID, total, payoutRef, entryIDs); err != nil {
			return err
		}

		res.Outcome = model.OutcomeSuccess
		res.PayoutRef = payoutRef
		return nil
	})
	if err == nil {
		if res.Outcome == model.OutcomeSuccess {
			s.logger.Info("partner paid",
				zap.String("partner_id", partner.ID.String()),
				zap.Int64("amount_cents", res.AmountCents),
				zap.String("payout_ref", res.PayoutRef),
			)
		}
		return res
	}

	s.logger.Error("partner payout failed",
		zap.String("partner_id", partner.ID.String()),
		zap.String("run_id", runID.String()),
		zap.Int64("amount_cents", total),
		zap.Error(err),
	)

	if unknown || issuedRef != "" {
		rec := model.PayoutReconciliation{
			PartnerID:        partner.ID,
			RunID:            runID,
			IdempotencyToken: token,
			AmountCents:      total,
			EntryIDs:         entryIDs,
			Reason:           err.Error(),
			PayoutRef:        issuedRef,
		}
		if recErr := s.repo.CreateReconciliation(context.WithoutCancel(ctx), rec); recErr != nil {
			s.logger.Error("register payout reconciliation",
				zap.String("partner_id", partner.ID.String()),
				zap.String("token", token),
				zap.Error(recErr),
			)
		} else {
			s.logger.Warn("payout outcome requires reconciliation",
				zap.String("partner_id", partner.ID.String()),
				zap.String("token", token),
			)
		}
	}

	return model.PartnerResult{
		PartnerID:   partner.ID,
		Outcome:     model.OutcomeError,
		Reason:      err.Error(),
		AmountCents: total,
	}
}

// recordPayout записывает выплату в леджер и переводит потреблённые записи в paid.
func (s *Service) recordPayout(ctx context.Context, partnerID uuid.UUID, amountCents int64, payoutRef string, entryIDs []uuid.UUID) error {
	_, _, err := s.repo.InsertEntry(ctx, model.LedgerEntry{
		PartnerID:      partnerID,
		Type:           model.EntryTypePayout,
		AmountCents:    -amountCents,
		Currency:       s.policy.Currency,
		Status:         model.EntryStatusPaid,
		IdempotencyKey: payoutKey(payoutRef),
		PayoutRef:      payoutRef,
	})
	if err != nil {
		return fmt.Errorf("record payout: %w", err)
	}

	for _, id := range entryIDs {
		err := s.repo.TransitionStatus(ctx, id, model.EntryStatusAvailable, model.EntryStatusPaid,
			model.TransitionExtra{PayoutRef: payoutRef})
		if err != nil {
			return fmt.Errorf("mark entry %s paid: %w", id, err)
		}
	}
	return nil
}

// reconcile закрывает открытые сверки партнёра: если провайдер подтверждает выплату,
// она дописывается в леджер, иначе сверка закрывается как невыполненная.
func (s *Service) reconcile(ctx context.Context, account model.VendorAccount) (bool, error) {
	recs, err := s.repo.OpenReconciliations(ctx, account.ID)
	if err != nil {
		return false, err
	}

	var reconciled bool
	for _, rec := range recs {
		payoutRef, found, err := s.processor.FindPayout(ctx, rec.IdempotencyToken)
		if err != nil {
			return false, &ProcessorError{Op: "find payout", Err: err}
		}
		if !found {
			if err := s.repo.ResolveReconciliation(ctx, rec.ID, model.ReconciliationResolvedNotIssued, ""); err != nil {
				return false, err
			}
			s.logger.Info("reconciliation resolved: payout not issued",
				zap.String("partner_id", account.ID.String()),
				zap.String("token", rec.IdempotencyToken),
			)
			continue
		}

		if err := s.recordPayout(ctx, account.ID, rec.AmountCents, payoutRef, rec.EntryIDs); err != nil {
			return false, fmt.Errorf("reconcile %s: %w", rec.IdempotencyToken, err)
		}
		if err := s.repo.ResolveReconciliation(ctx, rec.ID, model.ReconciliationResolvedPaid, payoutRef); err != nil {
			return false, err
		}
		reconciled = true
		s.logger.Info("reconciliation resolved: payout recorded",
			zap.String("partner_id", account.ID.String()),
			zap.String("token", rec.IdempotencyToken),
			zap.String("payout_ref", payoutRef),
		)
	}
	return reconciled, nil
}

// IsProcessorError сообщает, вызвана ли ошибка платёжным провайдером.
func IsProcessorError(err error) bool {
	var pe *ProcessorError
	return errors.As(err, &pe)
}

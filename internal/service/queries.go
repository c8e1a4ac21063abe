package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/model"
)

// GetBalance возвращает балансы партнёра на момент now.
// Held — доступные записи, срок удержания которых ещё не истёк.
// Все суммы читаются из одного снимка БД.
func (s *Service) GetBalance(ctx context.Context, partnerID uuid.UUID, now time.Time) (*model.Balance, error) {
	var b *model.Balance
	err := s.repo.InSnapshot(ctx, func(ctx context.Context) error {
		account, err := s.repo.GetVendorAccount(ctx, partnerID)
		if err != nil {
			return err
		}

		pending, err := s.repo.SumByStatus(ctx, partnerID, model.EntryStatusPending, now)
		if err != nil {
			return err
		}
		available, err := s.repo.SumByStatus(ctx, partnerID, model.EntryStatusAvailable, now)
		if err != nil {
			return err
		}
		undistributed, err := s.repo.SumUndistributed(ctx, partnerID)
		if err != nil {
			return err
		}
		payouts, err := s.repo.SumByType(ctx, partnerID, model.EntryTypePayout)
		if err != nil {
			return err
		}

		b = &model.Balance{
			PartnerID:      partnerID,
			PendingCents:   pending,
			AvailableCents: available,
			HeldCents:      undistributed - pending - available,
			PaidCents:      -payouts,
			DebtCents:      account.DebtCents,
			PayoutsEnabled: account.PayoutsAllowed(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListEntries возвращает записи леджера партнёра.
func (s *Service) ListEntries(ctx context.Context, partnerID uuid.UUID, filter model.EntryFilter) ([]model.LedgerEntry, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, filter.Type)
	}
	if _, err := s.repo.GetVendorAccount(ctx, partnerID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, partnerID, filter)
}

// ListPayoutRuns возвращает историю запусков выплат.
func (s *Service) ListPayoutRuns(ctx context.Context, filter model.RunFilter) ([]model.PayoutRun, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown run status %q", ErrInvalidInput, filter.Status)
	}
	return s.repo.ListPayoutRuns(ctx, filter)
}

// GetPayoutRunDetail возвращает запуск с результатами по партнёрам.
func (s *Service) GetPayoutRunDetail(ctx context.Context, id uuid.UUID) (model.PayoutRun, error) {
	return s.repo.GetPayoutRun(ctx, id)
}

// SyncVendorAccount сохраняет флаги аккаунта продавца, полученные от подсистемы онбординга.
func (s *Service) SyncVendorAccount(ctx context.Context, a model.VendorAccount) error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("%w: partner id is required", ErrInvalidInput)
	}
	a.ProcessorAccountID = strings.TrimSpace(a.ProcessorAccountID)
	if err := s.repo.UpsertVendorAccount(ctx, a); err != nil {
		return err
	}
	s.logger.Info("vendor account synced",
		zap.String("partner_id", a.ID.String()),
		zap.Bool("payouts_enabled", a.PayoutsEnabled),
		zap.Bool("charges_enabled", a.ChargesEnabled),
		zap.Bool("details_submitted", a.DetailsSubmitted),
	)
	return nil
}

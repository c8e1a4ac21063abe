package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/fee"
	"github.com/mmeshcher/settlement-core/internal/model"
	"github.com/mmeshcher/settlement-core/internal/repository"
)

// Ключи идемпотентности записей леджера.
func saleKey(orderID uuid.UUID) string {
	return "sale-" + orderID.String()
}

func feeKey(orderID uuid.UUID) string {
	return "platform_fee-" + orderID.String()
}

func refundKey(refundRef string) string {
	return "refund-" + refundRef
}

func payoutKey(payoutRef string) string {
	return "payout-" + payoutRef
}

func adjustmentKey(key string) string {
	return "adjustment-" + key
}

// refundToken совпадает для повторов одного и того же возврата, поэтому провайдер не вернёт деньги дважды.
func refundToken(orderID uuid.UUID, amountCents int64) string {
	return fmt.Sprintf("refund-%s-%d", orderID, amountCents)
}

// RecordSaleAndFee записывает продажу и комиссию платформы по оплаченному заказу.
// Обе записи создаются в одной транзакции. Повторный вызов для того же заказа
// возвращает уже сохранённые записи и ничего не добавляет.
func (s *Service) RecordSaleAndFee(ctx context.Context, order model.CapturedOrder) (model.SettlementRecord, error) {
	if order.OrderID == uuid.Nil || order.PartnerID == uuid.Nil {
		return model.SettlementRecord{}, fmt.Errorf("%w: order and partner ids are required", ErrInvalidInput)
	}
	if order.TotalCents <= 0 {
		return model.SettlementRecord{}, fmt.Errorf("%w: order total %d", ErrInvalidAmount, order.TotalCents)
	}

	currency := strings.ToLower(strings.TrimSpace(order.Currency))
	if currency == "" {
		currency = s.policy.Currency
	}
	orderID := order.OrderID
	feeCents := fee.Compute(order.TotalCents)

	var rec model.SettlementRecord
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetVendorAccount(ctx, order.PartnerID); err != nil {
			return err
		}

		sale, inserted, err := s.repo.InsertEntry(ctx, model.LedgerEntry{
			PartnerID:      order.PartnerID,
			OrderID:        &orderID,
			Type:           model.EntryTypeSale,
			AmountCents:    order.TotalCents,
			Currency:       currency,
			Status:         model.EntryStatusPending,
			IdempotencyKey: saleKey(orderID),
			PaymentRef:     order.PaymentRef,
		})
		if err != nil {
			return fmt.Errorf("record sale: %w", err)
		}
		rec.Sale, rec.SaleInserted = sale, inserted

		feeEntry, inserted, err := s.repo.InsertEntry(ctx, model.LedgerEntry{
			PartnerID:      order.PartnerID,
			OrderID:        &orderID,
			Type:           model.EntryTypePlatformFee,
			AmountCents:    -feeCents,
			Currency:       currency,
			Status:         model.EntryStatusPending,
			IdempotencyKey: feeKey(orderID),
			ChargeRef:      order.ChargeRef,
		})
		if err != nil {
			return fmt.Errorf("record platform fee: %w", err)
		}
		rec.Fee, rec.FeeInserted = feeEntry, inserted
		return nil
	})
	if err != nil {
		return model.SettlementRecord{}, err
	}

	s.logger.Info("sale recorded",
		zap.String("order_id", orderID.String()),
		zap.String("partner_id", order.PartnerID.String()),
		zap.Int64("total_cents", order.TotalCents),
		zap.Int64("fee_cents", feeCents),
		zap.Bool("inserted", rec.SaleInserted || rec.FeeInserted),
	)
	return rec, nil
}

// MarkAvailableAfterDelivery переводит pending-записи заказа в available с датой
// доступности completedAt плюс срок удержания. Уже переведённые записи не меняются.
// Возвращает число переведённых записей.
func (s *Service) MarkAvailableAfterDelivery(ctx context.Context, orderID uuid.UUID, completedAt time.Time) (int, error) {
	if orderID == uuid.Nil {
		return 0, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if completedAt.IsZero() {
		return 0, fmt.Errorf("%w: delivery completion time is required", ErrInvalidInput)
	}

	availableAt := completedAt.AddDate(0, 0, s.policy.HoldDays)

	var transitioned int
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		transitioned = 0

		entries, err := s.repo.ListEntriesByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: %s", repository.ErrOrderNotFound, orderID)
		}

		for _, e := range entries {
			if e.Status != model.EntryStatusPending {
				continue
			}
			err := s.repo.TransitionStatus(ctx, e.ID, model.EntryStatusPending, model.EntryStatusAvailable,
				model.TransitionExtra{AvailableAt: &availableAt})
			if err != nil {
				return fmt.Errorf("mark entry %s available: %w", e.ID, err)
			}
			transitioned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("order funds scheduled",
		zap.String("order_id", orderID.String()),
		zap.Time("available_at", availableAt),
		zap.Int("entries", transitioned),
	)
	return transitioned, nil
}

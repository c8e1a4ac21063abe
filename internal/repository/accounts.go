package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/settlement-core/internal/model"
)

const accountColumns = `id, processor_account_id, payouts_enabled, charges_enabled, details_submitted,
	debt_cents, suspension_reason, updated_at`

func scanAccount(row pgx.Row) (model.VendorAccount, error) {
	var a model.VendorAccount
	err := row.Scan(&a.ID, &a.ProcessorAccountID, &a.PayoutsEnabled, &a.ChargesEnabled, &a.DetailsSubmitted,
		&a.DebtCents, &a.SuspensionReason, &a.UpdatedAt)
	return a, err
}

func (r *PostgresRepository) getAccount(ctx context.Context, query string, partnerID uuid.UUID) (model.VendorAccount, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx, query, partnerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VendorAccount{}, fmt.Errorf("%w: %s", ErrPartnerNotFound, partnerID)
		}
		return model.VendorAccount{}, fmt.Errorf("get vendor account: %w", err)
	}
	return a, nil
}

// GetVendorAccount возвращает проекцию аккаунта продавца.
func (r *PostgresRepository) GetVendorAccount(ctx context.Context, partnerID uuid.UUID) (model.VendorAccount, error) {
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM vendor_accounts WHERE id = $1`, partnerID)
}

// LockVendorAccount возвращает аккаунт продавца, блокируя строку до конца транзакции.
// Блокировка сериализует выплаты, возвраты и корректировки одного партнёра.
func (r *PostgresRepository) LockVendorAccount(ctx context.Context, partnerID uuid.UUID) (model.VendorAccount, error) {
	return r.getAccount(ctx, `SELECT `+accountColumns+` FROM vendor_accounts WHERE id = $1 FOR UPDATE`, partnerID)
}

// UpdateVendorDebt сохраняет долг и причину приостановки выплат. Флаг онбординга payouts_enabled не меняется.
func (r *PostgresRepository) UpdateVendorDebt(ctx context.Context, partnerID uuid.UUID, debtCents int64, suspensionReason *string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE vendor_accounts
		 SET debt_cents = $2, suspension_reason = $3, updated_at = now()
		 WHERE id = $1`,
		partnerID, debtCents, suspensionReason,
	)
	if err != nil {
		return fmt.Errorf("update vendor debt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPartnerNotFound, partnerID)
	}
	return nil
}

// UpsertVendorAccount синхронизирует флаги возможностей из подсистемы онбординга.
// Долг и причина приостановки не затрагиваются.
func (r *PostgresRepository) UpsertVendorAccount(ctx context.Context, a model.VendorAccount) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO vendor_accounts (id, processor_account_id, payouts_enabled, charges_enabled, details_submitted)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		     processor_account_id = EXCLUDED.processor_account_id,
		     payouts_enabled = EXCLUDED.payouts_enabled,
		     charges_enabled = EXCLUDED.charges_enabled,
		     details_submitted = EXCLUDED.details_submitted,
		     updated_at = now()`,
		a.ID, a.ProcessorAccountID, a.PayoutsEnabled, a.ChargesEnabled, a.DetailsSubmitted,
	)
	if err != nil {
		return fmt.Errorf("upsert vendor account: %w", err)
	}
	return nil
}

// ListEligiblePartners возвращает партнёров, которым онбординг разрешил выплаты, выплаты не приостановлены
// и долг не выше порога.
func (r *PostgresRepository) ListEligiblePartners(ctx context.Context, debtThresholdCents int64) ([]model.VendorAccount, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+accountColumns+`
		 FROM vendor_accounts
		 WHERE payouts_enabled AND suspension_reason IS NULL
		   AND charges_enabled AND details_submitted AND debt_cents <= $1
		 ORDER BY id`,
		debtThresholdCents,
	)
	if err != nil {
		return nil, fmt.Errorf("select eligible partners: %w", err)
	}
	defer rows.Close()

	var res []model.VendorAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor account: %w", err)
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

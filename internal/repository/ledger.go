package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/settlement-core/internal/model"
)

const entryColumns = `id, partner_id, order_id, type, amount_cents, currency, status, available_at,
	idempotency_key, payment_ref, charge_ref, refund_ref, payout_ref, note, created_at, updated_at`

func scanEntry(row pgx.Row) (model.LedgerEntry, error) {
	var (
		e                                           model.LedgerEntry
		entryType, status                           string
		paymentRef, chargeRef, refundRef, payoutRef *string
	)
	err := row.Scan(&e.ID, &e.PartnerID, &e.OrderID, &entryType, &e.AmountCents, &e.Currency, &status,
		&e.AvailableAt, &e.IdempotencyKey, &paymentRef, &chargeRef, &refundRef, &payoutRef, &e.Note,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	e.Type = model.EntryType(entryType)
	e.Status = model.EntryStatus(status)
	e.PaymentRef = derefString(paymentRef)
	e.ChargeRef = derefString(chargeRef)
	e.RefundRef = derefString(refundRef)
	e.PayoutRef = derefString(payoutRef)
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]model.LedgerEntry, error) {
	defer rows.Close()

	var res []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// InsertEntry вставляет запись леджера. Если запись с тем же ключом идемпотентности уже есть,
// возвращает сохранённую запись и inserted=false, ничего не записывая.
func (r *PostgresRepository) InsertEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, bool, error) {
	if !e.Type.IsValid() || !e.Status.IsValid() || !e.Type.ValidAmount(e.AmountCents) {
		return model.LedgerEntry{}, false, fmt.Errorf("%w: type=%s status=%s amount=%d",
			ErrInvalidEntry, e.Type, e.Status, e.AmountCents)
	}
	if e.IdempotencyKey == "" {
		return model.LedgerEntry{}, false, fmt.Errorf("%w: idempotency key is required", ErrInvalidEntry)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO ledger_entries (id, partner_id, order_id, type, amount_cents, currency, status, available_at,
			idempotency_key, payment_ref, charge_ref, refund_ref, payout_ref, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING `+entryColumns,
		e.ID, e.PartnerID, e.OrderID, string(e.Type), e.AmountCents, e.Currency, string(e.Status), e.AvailableAt,
		e.IdempotencyKey, nullString(e.PaymentRef), nullString(e.ChargeRef), nullString(e.RefundRef),
		nullString(e.PayoutRef), e.Note,
	)

	stored, err := scanEntry(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.LedgerEntry{}, false, fmt.Errorf("insert entry: %w", err)
	}

	existing, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`,
		e.IdempotencyKey,
	))
	if err != nil {
		return model.LedgerEntry{}, false, fmt.Errorf("select existing entry: %w", err)
	}
	return existing, false, nil
}

// TransitionStatus меняет статус записи, только если текущий статус равен from.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, entryID uuid.UUID, from, to model.EntryStatus, extra model.TransitionExtra) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE ledger_entries
		 SET status = $3,
		     available_at = COALESCE($4::timestamptz, available_at),
		     payout_ref = COALESCE($5::text, payout_ref),
		     updated_at = now()
		 WHERE id = $1 AND status = $2`,
		entryID, string(from), string(to), extra.AvailableAt, nullString(extra.PayoutRef),
	)
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s is no longer %s", ErrStaleState, entryID, from)
	}
	return nil
}

// SumByStatus возвращает сумму записей партнёра в статусе status, ставших доступными не позже asOf.
func (r *PostgresRepository) SumByStatus(ctx context.Context, partnerID uuid.UUID, status model.EntryStatus, asOf time.Time) (int64, error) {
	var sum int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::bigint
		 FROM ledger_entries
		 WHERE partner_id = $1 AND status = $2 AND (available_at IS NULL OR available_at <= $3)`,
		partnerID, string(status), asOf,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum by status: %w", err)
	}
	return sum, nil
}

// SumUndistributed возвращает сумму ещё не выплаченных записей партнёра (pending и available).
func (r *PostgresRepository) SumUndistributed(ctx context.Context, partnerID uuid.UUID) (int64, error) {
	var sum int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::bigint
		 FROM ledger_entries
		 WHERE partner_id = $1 AND status IN ($2, $3)`,
		partnerID, string(model.EntryStatusPending), string(model.EntryStatusAvailable),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum undistributed: %w", err)
	}
	return sum, nil
}

// ListAvailableEntries возвращает и блокирует записи, которые потребит выплата на момент asOf.
func (r *PostgresRepository) ListAvailableEntries(ctx context.Context, partnerID uuid.UUID, asOf time.Time) ([]model.EntryRef, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, amount_cents
		 FROM ledger_entries
		 WHERE partner_id = $1 AND status = $2 AND (available_at IS NULL OR available_at <= $3)
		 ORDER BY created_at, id
		 FOR UPDATE`,
		partnerID, string(model.EntryStatusAvailable), asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("select available entries: %w", err)
	}
	defer rows.Close()

	var res []model.EntryRef
	for rows.Next() {
		var ref model.EntryRef
		if err := rows.Scan(&ref.ID, &ref.AmountCents); err != nil {
			return nil, fmt.Errorf("scan entry ref: %w", err)
		}
		res = append(res, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ListEntriesByOrder возвращает все записи заказа в порядке создания.
func (r *PostgresRepository) ListEntriesByOrder(ctx context.Context, orderID uuid.UUID) ([]model.LedgerEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE order_id = $1 ORDER BY created_at, id FOR UPDATE`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order entries: %w", err)
	}
	return collectEntries(rows)
}

// GetSaleEntry возвращает запись продажи по заказу.
func (r *PostgresRepository) GetSaleEntry(ctx context.Context, orderID uuid.UUID) (model.LedgerEntry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE order_id = $1 AND type = $2`,
		orderID, string(model.EntryTypeSale),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LedgerEntry{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return model.LedgerEntry{}, fmt.Errorf("get sale entry: %w", err)
	}
	return e, nil
}

// SumByType возвращает сумму всех записей партнёра данного типа.
func (r *PostgresRepository) SumByType(ctx context.Context, partnerID uuid.UUID, entryType model.EntryType) (int64, error) {
	var sum int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::bigint FROM ledger_entries WHERE partner_id = $1 AND type = $2`,
		partnerID, string(entryType),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum by type: %w", err)
	}
	return sum, nil
}

// ListEntries возвращает записи партнёра с учётом фильтра, новые первыми.
func (r *PostgresRepository) ListEntries(ctx context.Context, partnerID uuid.UUID, filter model.EntryFilter) ([]model.LedgerEntry, error) {
	conds := []string{"partner_id = $1"}
	args := []any{partnerID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.OrderID != nil {
		args = append(args, *filter.OrderID)
		conds = append(conds, fmt.Sprintf("order_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE `+strings.Join(conds, " AND ")+`
		 ORDER BY created_at DESC, id
		 LIMIT $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return collectEntries(rows)
}

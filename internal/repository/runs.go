package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/settlement-core/internal/model"
)

const runColumns = `id, iso_week, status, idempotency_key, total_partners, successful_payouts, failed_payouts,
	skipped_partners, total_amount_cents, error_message, results, started_at, completed_at`

func scanRun(row pgx.Row) (model.PayoutRun, error) {
	var (
		run     model.PayoutRun
		status  string
		results []byte
	)
	err := row.Scan(&run.ID, &run.ISOWeek, &status, &run.IdempotencyKey, &run.TotalPartners,
		&run.SuccessfulPayouts, &run.FailedPayouts, &run.SkippedPartners, &run.TotalAmountCents,
		&run.ErrorMessage, &results, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return model.PayoutRun{}, err
	}
	run.Status = model.RunStatus(status)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &run.Results); err != nil {
			return model.PayoutRun{}, fmt.Errorf("decode run results: %w", err)
		}
	}
	return run, nil
}

// CreatePayoutRun создаёт запуск со статусом running. Если запуск с тем же ключом уже существует,
// возвращает его идентификатор и created=false: уникальный ключ периода служит распределённой блокировкой.
func (r *PostgresRepository) CreatePayoutRun(ctx context.Context, run model.PayoutRun) (uuid.UUID, bool, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO payout_runs (id, iso_week, status, idempotency_key)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id`,
		run.ID, run.ISOWeek, string(model.RunStatusRunning), run.IdempotencyKey,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("insert payout run: %w", err)
	}

	err = r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM payout_runs WHERE idempotency_key = $1`,
		run.IdempotencyKey,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("select existing payout run: %w", err)
	}
	return id, false, nil
}

// FinalizePayoutRun переводит запуск из running в итоговый статус с подсчитанными итогами.
func (r *PostgresRepository) FinalizePayoutRun(ctx context.Context, run model.PayoutRun) error {
	if run.Status != model.RunStatusCompleted && run.Status != model.RunStatusFailed {
		return fmt.Errorf("finalize payout run: unexpected status %q", run.Status)
	}

	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("encode run results: %w", err)
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE payout_runs
		 SET status = $2, total_partners = $3, successful_payouts = $4, failed_payouts = $5,
		     skipped_partners = $6, total_amount_cents = $7, error_message = $8, results = $9::jsonb,
		     completed_at = now()
		 WHERE id = $1 AND status = $10`,
		run.ID, string(run.Status), run.TotalPartners, run.SuccessfulPayouts, run.FailedPayouts,
		run.SkippedPartners, run.TotalAmountCents, run.ErrorMessage, results, string(model.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("finalize payout run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: run %s is not running", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetPayoutRun возвращает запуск вместе с результатами по партнёрам.
func (r *PostgresRepository) GetPayoutRun(ctx context.Context, id uuid.UUID) (model.PayoutRun, error) {
	run, err := scanRun(r.conn(ctx).QueryRow(ctx, `SELECT `+runColumns+` FROM payout_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PayoutRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return model.PayoutRun{}, fmt.Errorf("get payout run: %w", err)
	}
	return run, nil
}

// ListPayoutRuns возвращает запуски, новые первыми.
func (r *PostgresRepository) ListPayoutRuns(ctx context.Context, filter model.RunFilter) ([]model.PayoutRun, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+runColumns+`
		 FROM payout_runs
		 WHERE ($1::text = '' OR status = $1::text)
		 ORDER BY started_at DESC
		 LIMIT $2`,
		string(filter.Status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select payout runs: %w", err)
	}
	defer rows.Close()

	var res []model.PayoutRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout run: %w", err)
		}
		run.Results = nil
		res = append(res, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateReconciliation регистрирует выплату с неподтверждённым исходом.
// Повторная регистрация того же токена ничего не меняет.
func (r *PostgresRepository) CreateReconciliation(ctx context.Context, rec model.PayoutReconciliation) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	ids := make([]string, 0, len(rec.EntryIDs))
	for _, id := range rec.EntryIDs {
		ids = append(ids, id.String())
	}

	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO payout_reconciliations
		     (id, partner_id, run_id, idempotency_token, amount_cents, entry_ids, reason, status, payout_ref)
		 VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7, $8, $9)
		 ON CONFLICT (idempotency_token) DO NOTHING`,
		rec.ID, rec.PartnerID, rec.RunID, rec.IdempotencyToken, rec.AmountCents, ids, rec.Reason,
		string(model.ReconciliationOpen), nullString(rec.PayoutRef),
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation: %w", err)
	}
	return nil
}

// OpenReconciliations возвращает незакрытые сверки партнёра.
func (r *PostgresRepository) OpenReconciliations(ctx context.Context, partnerID uuid.UUID) ([]model.PayoutReconciliation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, partner_id, run_id, idempotency_token, amount_cents, entry_ids::text[], reason, status,
		        payout_ref, created_at, resolved_at
		 FROM payout_reconciliations
		 WHERE partner_id = $1 AND status = $2
		 ORDER BY created_at
		 FOR UPDATE`,
		partnerID, string(model.ReconciliationOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("select reconciliations: %w", err)
	}
	defer rows.Close()

	var res []model.PayoutReconciliation
	for rows.Next() {
		var (
			rec       model.PayoutReconciliation
			ids       []string
			status    string
			payoutRef *string
		)
		if err := rows.Scan(&rec.ID, &rec.PartnerID, &rec.RunID, &rec.IdempotencyToken, &rec.AmountCents,
			&ids, &rec.Reason, &status, &payoutRef, &rec.CreatedAt, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		for _, raw := range ids {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("parse reconciliation entry id: %w", err)
			}
			rec.EntryIDs = append(rec.EntryIDs, id)
		}
		rec.Status = model.ReconciliationStatus(status)
		rec.PayoutRef = derefString(payoutRef)
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ResolveReconciliation закрывает сверку с итоговым статусом.
func (r *PostgresRepository) ResolveReconciliation(ctx context.Context, id uuid.UUID, status model.ReconciliationStatus, payoutRef string) error {
	if status == model.ReconciliationOpen {
		return fmt.Errorf("resolve reconciliation: status must be final")
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE payout_reconciliations
		 SET status = $2, payout_ref = COALESCE($3::text, payout_ref), resolved_at = now()
		 WHERE id = $1 AND status = $4`,
		id, string(status), nullString(payoutRef), string(model.ReconciliationOpen),
	)
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: reconciliation %s already resolved", ErrStaleState, id)
	}
	return nil
}

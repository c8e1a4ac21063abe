package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/settlement-core/internal/model"
	"github.com/mmeshcher/settlement-core/internal/processor"
	"github.com/mmeshcher/settlement-core/internal/repository"
)

type txMarker struct{}

type memState struct {
	entries  []model.LedgerEntry
	accounts map[uuid.UUID]model.VendorAccount
	runs     []model.PayoutRun
	recs     []model.PayoutReconciliation
}

func (s memState) clone() memState {
	c := memState{
		entries:  slices.Clone(s.entries),
		accounts: make(map[uuid.UUID]model.VendorAccount, len(s.accounts)),
		runs:     slices.Clone(s.runs),
		recs:     slices.Clone(s.recs),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	return c
}

// memRepo хранит данные в памяти, транзакции откатываются по снимку состояния.
type memRepo struct {
	mu    sync.Mutex
	state memState

	listPartnersErr error
	failPayoutEntry bool
	createRunErr    error

	snapshotCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{state: memState{accounts: map[uuid.UUID]model.VendorAccount{}}}
}

func (m *memRepo) lock(ctx context.Context) func() {
	if ctx.Value(txMarker{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memRepo) InSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	m.snapshotCalls++
	return m.InTx(ctx, fn)
}

func (m *memRepo) addAccount(a model.VendorAccount) {
	m.state.accounts[a.ID] = a
}

func (m *memRepo) account(id uuid.UUID) model.VendorAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.accounts[id]
}

func (m *memRepo) addEntry(e model.LedgerEntry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.IdempotencyKey == "" {
		e.IdempotencyKey = "seed-" + e.ID.String()
	}
	m.state.entries = append(m.state.entries, e)
}

func (m *memRepo) entriesOf(partnerID uuid.UUID) []model.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.LedgerEntry
	for _, e := range m.state.entries {
		if e.PartnerID == partnerID {
			res = append(res, e)
		}
	}
	return res
}

func (m *memRepo) InsertEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, bool, error) {
	defer m.lock(ctx)()

	if !e.Type.IsValid() || !e.Status.IsValid() || !e.Type.ValidAmount(e.AmountCents) || e.IdempotencyKey == "" {
		return model.LedgerEntry{}, false, repository.ErrInvalidEntry
	}
	if m.failPayoutEntry && e.Type == model.EntryTypePayout {
		return model.LedgerEntry{}, false, fmt.Errorf("insert entry: connection reset")
	}
	for _, existing := range m.state.entries {
		if existing.IdempotencyKey == e.IdempotencyKey {
			return existing, false, nil
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Unix(int64(len(m.state.entries)), 0).UTC()
	e.UpdatedAt = e.CreatedAt
	m.state.entries = append(m.state.entries, e)
	return e, true, nil
}

func (m *memRepo) TransitionStatus(ctx context.Context, entryID uuid.UUID, from, to model.EntryStatus, extra model.TransitionExtra) error {
	defer m.lock(ctx)()

	if !from.CanTransitionTo(to) {
		return repository.ErrIllegalTransition
	}
	for i, e := range m.state.entries {
		if e.ID != entryID {
			continue
		}
		if e.Status != from {
			return repository.ErrStaleState
		}
		e.Status = to
		if extra.AvailableAt != nil {
			at := *extra.AvailableAt
			e.AvailableAt = &at
		}
		if extra.PayoutRef != "" {
			e.PayoutRef = extra.PayoutRef
		}
		m.state.entries[i] = e
		return nil
	}
	return repository.ErrStaleState
}

func matured(e model.LedgerEntry, asOf time.Time) bool {
	return e.AvailableAt == nil || !e.AvailableAt.After(asOf)
}

func (m *memRepo) SumByStatus(ctx context.Context, partnerID uuid.UUID, status model.EntryStatus, asOf time.Time) (int64, error) {
	defer m.lock(ctx)()
	var sum int64
	for _, e := range m.state.entries {
		if e.PartnerID == partnerID && e.Status == status && matured(e, asOf) {
			sum += e.AmountCents
		}
	}
	return sum, nil
}

func (m *memRepo) SumUndistributed(ctx context.Context, partnerID uuid.UUID) (int64, error) {
	defer m.lock(ctx)()
	var sum int64
	for _, e := range m.state.entries {
		if e.PartnerID == partnerID && e.Status != model.EntryStatusPaid {
			sum += e.AmountCents
		}
	}
	return sum, nil
}

func (m *memRepo) SumByType(ctx context.Context, partnerID uuid.UUID, entryType model.EntryType) (int64, error) {
	defer m.lock(ctx)()
	var sum int64
	for _, e := range m.state.entries {
		if e.PartnerID == partnerID && e.Type == entryType {
			sum += e.AmountCents
		}
	}
	return sum, nil
}

func (m *memRepo) ListAvailableEntries(ctx context.Context, partnerID uuid.UUID, asOf time.Time) ([]model.EntryRef, error) {
	defer m.lock(ctx)()
	var res []model.EntryRef
	for _, e := range m.state.entries {
		if e.PartnerID == partnerID && e.Status == model.EntryStatusAvailable && matured(e, asOf) {
			res = append(res, model.EntryRef{ID: e.ID, AmountCents: e.AmountCents})
		}
	}
	return res, nil
}

func (m *memRepo) ListEntriesByOrder(ctx context.Context, orderID uuid.UUID) ([]model.LedgerEntry, error) {
	defer m.lock(ctx)()
	var res []model.LedgerEntry
	for _, e := range m.state.entries {
		if e.OrderID != nil && *e.OrderID == orderID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *memRepo) GetSaleEntry(ctx context.Context, orderID uuid.UUID) (model.LedgerEntry, error) {
	defer m.lock(ctx)()
	for _, e := range m.state.entries {
		if e.OrderID != nil && *e.OrderID == orderID && e.Type == model.EntryTypeSale {
			return e, nil
		}
	}
	return model.LedgerEntry{}, repository.ErrOrderNotFound
}

func (m *memRepo) ListEntries(ctx context.Context, partnerID uuid.UUID, filter model.EntryFilter) ([]model.LedgerEntry, error) {
	defer m.lock(ctx)()
	var res []model.LedgerEntry
	for _, e := range m.state.entries {
		if e.PartnerID != partnerID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (m *memRepo) GetVendorAccount(ctx context.Context, partnerID uuid.UUID) (model.VendorAccount, error) {
	defer m.lock(ctx)()
	a, ok := m.state.accounts[partnerID]
	if !ok {
		return model.VendorAccount{}, repository.ErrPartnerNotFound
	}
	return a, nil
}

func (m *memRepo) LockVendorAccount(ctx context.Context, partnerID uuid.UUID) (model.VendorAccount, error) {
	return m.GetVendorAccount(ctx, partnerID)
}

func (m *memRepo) UpdateVendorDebt(ctx context.Context, partnerID uuid.UUID, debtCents int64, suspensionReason *string) error {
	defer m.lock(ctx)()
	a, ok := m.state.accounts[partnerID]
	if !ok {
		return repository.ErrPartnerNotFound
	}
	a.DebtCents = debtCents
	a.SuspensionReason = suspensionReason
	m.state.accounts[partnerID] = a
	return nil
}

func (m *memRepo) UpsertVendorAccount(ctx context.Context, a model.VendorAccount) error {
	defer m.lock(ctx)()
	existing, ok := m.state.accounts[a.ID]
	if ok {
		a.DebtCents = existing.DebtCents
		a.SuspensionReason = existing.SuspensionReason
	}
	m.state.accounts[a.ID] = a
	return nil
}

func (m *memRepo) ListEligiblePartners(ctx context.Context, debtThresholdCents int64) ([]model.VendorAccount, error) {
	defer m.lock(ctx)()
	if m.listPartnersErr != nil {
		return nil, m.listPartnersErr
	}
	var res []model.VendorAccount
	for _, a := range m.state.accounts {
		if a.PayoutsAllowed() && a.ChargesEnabled && a.DetailsSubmitted && a.DebtCents <= debtThresholdCents {
			res = append(res, a)
		}
	}
	slices.SortFunc(res, func(x, y model.VendorAccount) int {
		return strings.Compare(x.ID.String(), y.ID.String())
	})
	return res, nil
}

func (m *memRepo) CreatePayoutRun(ctx context.Context, run model.PayoutRun) (uuid.UUID, bool, error) {
	defer m.lock(ctx)()
	if m.createRunErr != nil {
		return uuid.Nil, false, m.createRunErr
	}
	for _, r := range m.state.runs {
		if r.IdempotencyKey == run.IdempotencyKey {
			return r.ID, false, nil
		}
	}
	run.ID = uuid.New()
	run.Status = model.RunStatusRunning
	m.state.runs = append(m.state.runs, run)
	return run.ID, true, nil
}

func (m *memRepo) FinalizePayoutRun(ctx context.Context, run model.PayoutRun) error {
	defer m.lock(ctx)()
	for i, r := range m.state.runs {
		if r.ID != run.ID {
			continue
		}
		if r.Status != model.RunStatusRunning {
			return repository.ErrRunNotFound
		}
		run.ISOWeek = r.ISOWeek
		run.IdempotencyKey = r.IdempotencyKey
		m.state.runs[i] = run
		return nil
	}
	return repository.ErrRunNotFound
}

func (m *memRepo) GetPayoutRun(ctx context.Context, id uuid.UUID) (model.PayoutRun, error) {
	defer m.lock(ctx)()
	for _, r := range m.state.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return model.PayoutRun{}, repository.ErrRunNotFound
}

func (m *memRepo) ListPayoutRuns(ctx context.Context, filter model.RunFilter) ([]model.PayoutRun, error) {
	defer m.lock(ctx)()
	var res []model.PayoutRun
	for _, r := range m.state.runs {
		if filter.Status == "" || r.Status == filter.Status {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memRepo) CreateReconciliation(ctx context.Context, rec model.PayoutReconciliation) error {
	defer m.lock(ctx)()
	for _, r := range m.state.recs {
		if r.IdempotencyToken == rec.IdempotencyToken {
			return nil
		}
	}
	rec.ID = uuid.New()
	rec.Status = model.ReconciliationOpen
	m.state.recs = append(m.state.recs, rec)
	return nil
}

func (m *memRepo) OpenReconciliations(ctx context.Context, partnerID uuid.UUID) ([]model.PayoutReconciliation, error) {
	defer m.lock(ctx)()
	var res []model.PayoutReconciliation
	for _, r := range m.state.recs {
		if r.PartnerID == partnerID && r.Status == model.ReconciliationOpen {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memRepo) ResolveReconciliation(ctx context.Context, id uuid.UUID, status model.ReconciliationStatus, payoutRef string) error {
	defer m.lock(ctx)()
	for i, r := range m.state.recs {
		if r.ID != id {
			continue
		}
		if r.Status != model.ReconciliationOpen {
			return repository.ErrStaleState
		}
		r.Status = status
		if payoutRef != "" {
			r.PayoutRef = payoutRef
		}
		m.state.recs[i] = r
		return nil
	}
	return repository.ErrStaleState
}

func (m *memRepo) reconciliations() []model.PayoutReconciliation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.recs)
}

// fakeProcessor имитирует провайдера с идемпотентностью по токену.
type fakeProcessor struct {
	mu sync.Mutex

	payouts map[string]string
	refunds map[string]string
	seq     int

	payoutCalls []string
	refundCalls []string

	payoutErr     map[string]error
	lostResponse  map[string]bool
	refundErr     error
	findErr       error
	lastRefundRef string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		payouts:      map[string]string{},
		refunds:      map[string]string{},
		payoutErr:    map[string]error{},
		lostResponse: map[string]bool{},
	}
}

func (p *fakeProcessor) IssuePayout(ctx context.Context, accountRef string, amountCents int64, token string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.payoutCalls = append(p.payoutCalls, token)
	if err := p.payoutErr[accountRef]; err != nil {
		return "", err
	}
	ref, ok := p.payouts[token]
	if !ok {
		p.seq++
		ref = fmt.Sprintf("po_%d", p.seq)
		p.payouts[token] = ref
	}
	if p.lostResponse[accountRef] {
		return "", fmt.Errorf("%w: read timeout", processor.ErrOutcomeUnknown)
	}
	return ref, nil
}

func (p *fakeProcessor) IssueRefund(ctx context.Context, paymentRef string, amountCents int64, token string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refundCalls = append(p.refundCalls, paymentRef+"|"+token)
	if p.refundErr != nil {
		return "", p.refundErr
	}
	ref, ok := p.refunds[token]
	if !ok {
		p.seq++
		ref = fmt.Sprintf("re_%d", p.seq)
		p.refunds[token] = ref
	}
	p.lastRefundRef = ref
	return ref, nil
}

func (p *fakeProcessor) FindPayout(ctx context.Context, token string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.findErr != nil {
		return "", false, p.findErr
	}
	ref, ok := p.payouts[token]
	return ref, ok, nil
}

func (p *fakeProcessor) issuedPayouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payouts)
}

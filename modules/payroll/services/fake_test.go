package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-ledger/modules/payroll/domain"
	"github.com/iota-uz/payroll-ledger/pkg/authz"
	"github.com/iota-uz/payroll-ledger/pkg/money"
)

// fakeWorld is an in-memory stand-in for the database and every external
// collaborator. Its tx runner restores a snapshot when fn fails.
type fakeWorld struct {
	runs          map[uuid.UUID]domain.Run
	lines         map[uuid.UUID][]domain.RunLine
	legalEntities map[string]uuid.UUID
	accounts      map[uuid.UUID]domain.GLAccount
	mappings      []domain.ComponentMapping
	books         map[uuid.UUID]uuid.UUID
	periods       []domain.FiscalPeriod
	journals      map[uuid.UUID]domain.JournalEntry
	liabilities   map[uuid.UUID]domain.Liability
	liabOrder     []uuid.UUID
	links         []domain.PaymentLink
	settlements   map[string]domain.Settlement
	corrections   []domain.Correction
	audits        []AuditLogInsert
	events        []LifecycleEvent

	batches       map[string]PaymentBatch
	evidence      map[uuid.UUID]domain.BankEvidence
	missingBank   map[string]bool
	snapshots     int
	lockedActions map[PeriodAction]bool
	deniedLE      map[uuid.UUID]bool

	beforeCreateBatch func()
	journalInserts    int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		runs:          map[uuid.UUID]domain.Run{},
		lines:         map[uuid.UUID][]domain.RunLine{},
		legalEntities: map[string]uuid.UUID{},
		accounts:      map[uuid.UUID]domain.GLAccount{},
		books:         map[uuid.UUID]uuid.UUID{},
		journals:      map[uuid.UUID]domain.JournalEntry{},
		liabilities:   map[uuid.UUID]domain.Liability{},
		settlements:   map[string]domain.Settlement{},
		batches:       map[string]PaymentBatch{},
		evidence:      map[uuid.UUID]domain.BankEvidence{},
		missingBank:   map[string]bool{},
		lockedActions: map[PeriodAction]bool{},
		deniedLE:      map[uuid.UUID]bool{},
	}
}

type worldState struct {
	runs        map[uuid.UUID]domain.Run
	lines       map[uuid.UUID][]domain.RunLine
	mappings    []domain.ComponentMapping
	journals    map[uuid.UUID]domain.JournalEntry
	liabilities map[uuid.UUID]domain.Liability
	liabOrder   []uuid.UUID
	links       []domain.PaymentLink
	settlements map[string]domain.Settlement
	corrections []domain.Correction
	audits      []AuditLogInsert
	events      []LifecycleEvent
	batches     map[string]PaymentBatch
	inserts     int
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	return append([]T(nil), s...)
}

func (w *fakeWorld) snapshot() worldState {
	return worldState{
		runs:        cloneMap(w.runs),
		lines:       cloneMap(w.lines),
		mappings:    cloneSlice(w.mappings),
		journals:    cloneMap(w.journals),
		liabilities: cloneMap(w.liabilities),
		liabOrder:   cloneSlice(w.liabOrder),
		links:       cloneSlice(w.links),
		settlements: cloneMap(w.settlements),
		corrections: cloneSlice(w.corrections),
		audits:      cloneSlice(w.audits),
		events:      cloneSlice(w.events),
		batches:     cloneMap(w.batches),
		inserts:     w.journalInserts,
	}
}

func (w *fakeWorld) restore(s worldState) {
	w.runs, w.lines, w.mappings = s.runs, s.lines, s.mappings
	w.journals, w.liabilities, w.liabOrder = s.journals, s.liabilities, s.liabOrder
	w.links, w.settlements, w.corrections = s.links, s.settlements, s.corrections
	w.audits, w.events, w.batches = s.audits, s.events, s.batches
	w.journalInserts = s.inserts
}

func (w *fakeWorld) runTx(ctx context.Context, fn func(context.Context) error) error {
	snap := w.snapshot()
	if err := fn(ctx); err != nil {
		w.restore(snap)
		return err
	}
	return nil
}

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", domain.ErrNotFound, what, id)
}

// RunRepository

func (w *fakeWorld) GetRun(_ context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	r, ok := w.runs[runID]
	if !ok || r.TenantID != tenantID {
		return domain.Run{}, notFound("run", runID)
	}
	return r, nil
}

func (w *fakeWorld) LockRun(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	return w.GetRun(ctx, tenantID, runID)
}

func (w *fakeWorld) InsertRun(_ context.Context, run domain.Run) error {
	for _, r := range w.runs {
		if r.TenantID == run.TenantID && r.LegalEntityID == run.LegalEntityID && r.ProviderCode == run.ProviderCode &&
			r.Period == run.Period && r.RunNo == run.RunNo {
			return conflict(CodeRunConflict, "run number already exists")
		}
	}
	w.runs[run.ID] = run
	return nil
}

func (w *fakeWorld) UpdateRun(_ context.Context, run domain.Run) error {
	if _, ok := w.runs[run.ID]; !ok {
		return notFound("run", run.ID)
	}
	w.runs[run.ID] = run
	return nil
}

func (w *fakeWorld) ListRunLines(_ context.Context, _ uuid.UUID, runID uuid.UUID) ([]domain.RunLine, error) {
	return cloneSlice(w.lines[runID]), nil
}

func (w *fakeWorld) InsertRunLines(_ context.Context, _ uuid.UUID, lines []domain.RunLine) error {
	for _, l := range lines {
		w.lines[l.RunID] = append(w.lines[l.RunID], l)
	}
	return nil
}

func (w *fakeWorld) FindLegalEntityIDByCode(_ context.Context, _ uuid.UUID, code string) (uuid.UUID, error) {
	id, ok := w.legalEntities[code]
	if !ok {
		return uuid.Nil, notFound("legal entity", code)
	}
	return id, nil
}

// MappingRepository

func (w *fakeWorld) FindComponentMapping(_ context.Context, q MappingQuery) (*domain.ComponentMapping, error) {
	var found *domain.ComponentMapping
	for _, m := range w.mappings {
		if m.TenantID != q.TenantID || m.LegalEntityID != q.LegalEntityID || m.ProviderCode != q.ProviderCode ||
			m.Currency != q.Currency || m.ComponentCode != q.ComponentCode || !m.ActiveOn(q.AsOf) {
			continue
		}
		if found == nil || m.EffectiveFrom.After(found.EffectiveFrom) {
			m := m
			found = &m
		}
	}
	return found, nil
}

func (w *fakeWorld) GetGLAccount(_ context.Context, _ uuid.UUID, accountID uuid.UUID) (*domain.GLAccount, error) {
	a, ok := w.accounts[accountID]
	if !ok {
		return nil, notFound("gl account", accountID)
	}
	return &a, nil
}

func (w *fakeWorld) ListComponentMappings(_ context.Context, tenantID uuid.UUID, f MappingFilter) ([]domain.ComponentMapping, error) {
	out := []domain.ComponentMapping{}
	for _, m := range w.mappings {
		if m.TenantID != tenantID ||
			(f.LegalEntityID != nil && m.LegalEntityID != *f.LegalEntityID) ||
			(f.ComponentCode != "" && m.ComponentCode != f.ComponentCode) ||
			(f.AsOf != nil && !m.ActiveOn(*f.AsOf)) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (w *fakeWorld) LockComponentMappings(_ context.Context, tenantID, legalEntityID uuid.UUID, provider, currency, component string) ([]domain.ComponentMapping, error) {
	var out []domain.ComponentMapping
	for _, m := range w.mappings {
		if m.TenantID == tenantID && m.LegalEntityID == legalEntityID && m.ProviderCode == provider &&
			m.Currency == currency && m.ComponentCode == component {
			out = append(out, m)
		}
	}
	return out, nil
}

func (w *fakeWorld) InsertComponentMapping(_ context.Context, m domain.ComponentMapping) error {
	w.mappings = append(w.mappings, m)
	return nil
}

func (w *fakeWorld) UpdateComponentMapping(_ context.Context, m domain.ComponentMapping) error {
	for i := range w.mappings {
		if w.mappings[i].ID == m.ID {
			w.mappings[i] = m
			return nil
		}
	}
	return notFound("mapping", m.ID)
}

// JournalRepository

func (w *fakeWorld) ResolveBook(_ context.Context, _ uuid.UUID, legalEntityID uuid.UUID, _ string) (uuid.UUID, error) {
	id, ok := w.books[legalEntityID]
	if !ok {
		return uuid.Nil, notFound("book", legalEntityID)
	}
	return id, nil
}

func (w *fakeWorld) FindFiscalPeriod(_ context.Context, _ uuid.UUID, bookID uuid.UUID, day time.Time) (*domain.FiscalPeriod, error) {
	for _, p := range w.periods {
		if p.BookID == bookID && !day.Before(p.StartDate) && !day.After(p.EndDate) {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (w *fakeWorld) FindJournalByNumber(_ context.Context, tenantID, bookID uuid.UUID, number string) (*uuid.UUID, error) {
	for _, j := range w.journals {
		if j.TenantID == tenantID && j.BookID == bookID && j.JournalNumber == number {
			id := j.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (w *fakeWorld) InsertJournal(_ context.Context, j domain.JournalEntry) error {
	w.journals[j.ID] = j
	w.journalInserts++
	return nil
}

func (w *fakeWorld) GetJournal(_ context.Context, _ uuid.UUID, journalID uuid.UUID) (domain.JournalEntry, error) {
	j, ok := w.journals[journalID]
	if !ok {
		return domain.JournalEntry{}, notFound("journal", journalID)
	}
	return j, nil
}

// LiabilityRepository

func (w *fakeWorld) ListLiabilitiesByRun(_ context.Context, _ uuid.UUID, runID uuid.UUID) ([]domain.Liability, error) {
	out := []domain.Liability{}
	for _, id := range w.liabOrder {
		if l := w.liabilities[id]; l.RunID == runID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (w *fakeWorld) LockLiabilitiesByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]domain.Liability, error) {
	return w.ListLiabilitiesByRun(ctx, tenantID, runID)
}

func (w *fakeWorld) InsertLiabilities(_ context.Context, items []domain.Liability) (int, error) {
	n := 0
	for _, l := range items {
		if _, ok := w.liabilities[l.ID]; ok {
			continue
		}
		w.liabilities[l.ID] = l
		w.liabOrder = append(w.liabOrder, l.ID)
		n++
	}
	return n, nil
}

func (w *fakeWorld) UpdateLiability(_ context.Context, l domain.Liability) error {
	if _, ok := w.liabilities[l.ID]; !ok {
		return notFound("liability", l.ID)
	}
	w.liabilities[l.ID] = l
	return nil
}

func (w *fakeWorld) ListLiabilities(_ context.Context, tenantID uuid.UUID, f LiabilityFilter) ([]domain.Liability, error) {
	out := []domain.Liability{}
	for _, id := range w.liabOrder {
		l := w.liabilities[id]
		if l.TenantID != tenantID ||
			(f.RunID != nil && l.RunID != *f.RunID) ||
			(f.LegalEntityID != nil && l.LegalEntityID != *f.LegalEntityID) ||
			(f.Group != nil && l.LiabilityGroup != *f.Group) {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, s := range f.Statuses {
				match = match || s == l.Status
			}
			if !match {
				continue
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// SettlementRepository

func (w *fakeWorld) InsertPaymentLink(_ context.Context, link domain.PaymentLink) (domain.PaymentLink, bool, error) {
	for _, l := range w.links {
		if l.LiabilityID == link.LiabilityID && l.PaymentBatchLineID == link.PaymentBatchLineID {
			return l, false, nil
		}
	}
	w.links = append(w.links, link)
	return link, true, nil
}

func (w *fakeWorld) UpdatePaymentLink(_ context.Context, link domain.PaymentLink) error {
	for i := range w.links {
		if w.links[i].ID == link.ID {
			w.links[i] = link
			return nil
		}
	}
	return notFound("payment link", link.ID)
}

func (w *fakeWorld) ListPaymentLinksByRun(_ context.Context, _ uuid.UUID, runID uuid.UUID) ([]domain.PaymentLink, error) {
	var out []domain.PaymentLink
	for _, l := range w.links {
		if l.RunID == runID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (w *fakeWorld) ListSettlementCandidates(_ context.Context, tenantID uuid.UUID, f SettlementFilter, _ bool) ([]domain.SettlementCandidate, error) {
	var out []domain.SettlementCandidate
	for _, id := range w.liabOrder {
		l := w.liabilities[id]
		if l.TenantID != tenantID || (l.Status != domain.LiabilityInBatch && l.Status != domain.LiabilityPartiallyPaid) ||
			(f.RunID != nil && l.RunID != *f.RunID) || (f.LegalEntityID != nil && l.LegalEntityID != *f.LegalEntityID) {
			continue
		}
		for _, link := range w.links {
			if link.LiabilityID == l.ID && link.Active() && l.ReservedPaymentBatchID != nil && link.PaymentBatchID == *l.ReservedPaymentBatchID {
				out = append(out, domain.SettlementCandidate{Liability: l, Link: link, RunPeriod: w.runs[l.RunID].Period})
			}
		}
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (w *fakeWorld) UpsertSettlement(_ context.Context, s domain.Settlement) (domain.Settlement, bool, error) {
	if existing, ok := w.settlements[s.SettlementKey]; ok {
		existing.SettledAmount = money.Max(existing.SettledAmount, s.SettledAmount)
		existing.EvidenceCount = s.EvidenceCount
		existing.EvidenceMatchedTotal = s.EvidenceMatchedTotal
		existing.LatestMatchAt = s.LatestMatchAt
		existing.UpdatedAt = s.UpdatedAt
		w.settlements[s.SettlementKey] = existing
		return existing, false, nil
	}
	w.settlements[s.SettlementKey] = s
	return s, true, nil
}

func (w *fakeWorld) ListSettlementsByRun(_ context.Context, _ uuid.UUID, runID uuid.UUID) ([]domain.Settlement, error) {
	var out []domain.Settlement
	for _, s := range w.settlements {
		if s.RunID == runID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettlementKey < out[j].SettlementKey })
	return out, nil
}

// CorrectionRepository

func (w *fakeWorld) FindCorrectionByIdempotencyKey(_ context.Context, tenantID uuid.UUID, key string) (*domain.Correction, error) {
	for _, c := range w.corrections {
		if c.TenantID == tenantID && c.IdempotencyKey != nil && *c.IdempotencyKey == key {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (w *fakeWorld) FindCorrectionByRun(_ context.Context, tenantID, runID uuid.UUID) (*domain.Correction, error) {
	for _, c := range w.corrections {
		if c.TenantID == tenantID && c.CorrectionRunID == runID {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (w *fakeWorld) InsertCorrection(_ context.Context, c domain.Correction) error {
	w.corrections = append(w.corrections, c)
	return nil
}

func (w *fakeWorld) UpdateCorrection(_ context.Context, c domain.Correction) error {
	for i := range w.corrections {
		if w.corrections[i].ID == c.ID {
			w.corrections[i] = c
			return nil
		}
	}
	return notFound("correction", c.ID)
}

func (w *fakeWorld) ListCorrections(_ context.Context, _ uuid.UUID, runID uuid.UUID) ([]domain.Correction, error) {
	var out []domain.Correction
	for _, c := range w.corrections {
		if c.CorrectionRunID == runID || (c.OriginalRunID != nil && *c.OriginalRunID == runID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (w *fakeWorld) InsertAuditLog(_ context.Context, a AuditLogInsert) error {
	w.audits = append(w.audits, a)
	return nil
}

func (w *fakeWorld) auditsFor(action string) []AuditLogInsert {
	var out []AuditLogInsert
	for _, a := range w.audits {
		if a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

// Collaborators

func (w *fakeWorld) AssertScopeAccess(_ context.Context, _ Actor, _ string, scopeID uuid.UUID, _ string) error {
	if w.deniedLE[scopeID] {
		return authz.ErrForbidden
	}
	return nil
}

func (w *fakeWorld) BuildScopeFilter(_ context.Context, _ Actor, _ string, column string, params *[]any) (string, error) {
	*params = append(*params, []uuid.UUID{})
	return fmt.Sprintf("%s = ANY($%d::uuid[])", column, len(*params)), nil
}

func (w *fakeWorld) AssertPeriodActionAllowed(_ context.Context, _ uuid.UUID, legalEntityID uuid.UUID, period string, action PeriodAction) error {
	if w.lockedActions[action] {
		return &PeriodLockedError{LegalEntityID: legalEntityID, Period: period, Action: action, Reason: "closed"}
	}
	return nil
}

func (w *fakeWorld) CreatePaymentBatch(_ context.Context, in CreatePaymentBatchInput) (PaymentBatch, error) {
	if w.beforeCreateBatch != nil {
		w.beforeCreateBatch()
	}
	if b, ok := w.batches[in.IdempotencyKey]; ok {
		b.Reused = true
		return b, nil
	}
	b := PaymentBatch{
		ID:             uuid.New(),
		TenantID:       in.TenantID,
		LegalEntityID:  in.LegalEntityID,
		SourceType:     in.SourceType,
		SourceID:       in.SourceID,
		IdempotencyKey: in.IdempotencyKey,
		Status:         domain.BatchStatusDraft,
		Currency:       in.Currency,
	}
	for _, l := range in.Lines {
		b.Lines = append(b.Lines, PaymentBatchLine{
			ID:           uuid.New(),
			SourceLineID: l.SourceLineID,
			PayeeType:    l.PayeeType,
			PayeeRef:     l.PayeeRef,
			Amount:       l.Amount,
			Status:       domain.BatchStatusDraft,
		})
		b.TotalAmount = b.TotalAmount.Add(l.Amount)
	}
	w.batches[in.IdempotencyKey] = b
	return b, nil
}

func (w *fakeWorld) FindPaymentBatchByKey(_ context.Context, _ uuid.UUID, key string) (*PaymentBatch, error) {
	b, ok := w.batches[key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (w *fakeWorld) LoadPaymentBatches(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]PaymentBatch, error) {
	out := map[uuid.UUID]PaymentBatch{}
	for _, b := range w.batches {
		for _, id := range ids {
			if b.ID == id {
				out[id] = b
			}
		}
	}
	return out, nil
}

func (w *fakeWorld) batchByID(id uuid.UUID) (string, PaymentBatch) {
	for key, b := range w.batches {
		if b.ID == id {
			return key, b
		}
	}
	return "", PaymentBatch{}
}

func (w *fakeWorld) setBatchStatus(id uuid.UUID, status, lineStatus string) {
	key, b := w.batchByID(id)
	b.Status = status
	lines := cloneSlice(b.Lines)
	for i := range lines {
		lines[i].Status = lineStatus
	}
	b.Lines = lines
	w.batches[key] = b
}

func (w *fakeWorld) AssertBeneficiarySetup(_ context.Context, _, _ uuid.UUID, codes []string) error {
	var missing []string
	for _, c := range codes {
		if w.missingBank[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &BeneficiaryMissingError{EmployeeCodes: missing}
	}
	return nil
}

func (w *fakeWorld) AttachBeneficiarySnapshotToLink(_ context.Context, _, _, _ uuid.UUID, _ string) (uuid.UUID, error) {
	w.snapshots++
	return uuid.New(), nil
}

func (w *fakeWorld) ActiveMatchesByBatch(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]domain.BankEvidence, error) {
	out := map[uuid.UUID]domain.BankEvidence{}
	for _, id := range ids {
		if ev, ok := w.evidence[id]; ok {
			out[id] = ev
		}
	}
	return out, nil
}

func (w *fakeWorld) Enqueue(_ context.Context, ev LifecycleEvent) error {
	w.events = append(w.events, ev)
	return nil
}

func (w *fakeWorld) eventTopics() []string {
	out := make([]string, 0, len(w.events))
	for _, e := range w.events {
		out = append(out, e.Topic)
	}
	return out
}

// harness wires a PayrollService over a fakeWorld seeded with one legal
// entity, its book, an open fiscal period and a complete set of mappings.
type harness struct {
	svc      *PayrollService
	world    *fakeWorld
	importer Actor
	reviewer Actor
	tenantID uuid.UUID
	leID     uuid.UUID
	bookID   uuid.UUID
	payDate  time.Time
}

const (
	testLegalEntityCode = "LE-MAIN"
	testProvider        = "ACME_PAYROLL"
	testCurrency        = "USD"
	testPeriod          = "2026-03"
)

func newHarness(settings Settings) *harness {
	w := newFakeWorld()
	h := &harness{
		world:    w,
		tenantID: uuid.New(),
		leID:     uuid.New(),
		bookID:   uuid.New(),
		payDate:  time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC),
	}
	h.importer = Actor{TenantID: h.tenantID, UserID: uuid.New(), RequestID: "req-import"}
	h.reviewer = Actor{TenantID: h.tenantID, UserID: uuid.New(), RequestID: "req-review"}
	w.legalEntities[testLegalEntityCode] = h.leID
	w.books[h.leID] = h.bookID
	w.periods = append(w.periods, domain.FiscalPeriod{
		ID:        uuid.New(),
		BookID:    h.bookID,
		Code:      testPeriod,
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:    domain.FiscalPeriodOpen,
	})
	for _, rule := range domain.AccrualRules {
		h.addMapping(rule.ComponentCode, rule.Side)
	}
	for _, rule := range domain.LiabilityRules {
		h.addMapping(rule.PayableComponent, domain.SideCredit)
	}

	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	h.svc = NewPayrollService(w, Collaborators{
		Scope:         w,
		Periods:       w,
		Batches:       w,
		Beneficiaries: w,
		Evidence:      w,
		Events:        w,
	}, settings).
		WithTxRunner(w.runTx).
		WithClock(func() time.Time { return clock })
	return h
}

func (h *harness) addMapping(component string, side domain.EntrySide) domain.GLAccount {
	acct := domain.GLAccount{
		ID:         uuid.New(),
		TenantID:   h.tenantID,
		Code:       strings.ToLower(component),
		Name:       component,
		IsActive:   true,
		IsPostable: true,
		IsLeaf:     true,
	}
	h.world.accounts[acct.ID] = acct
	h.world.mappings = append(h.world.mappings, domain.ComponentMapping{
		ID:            uuid.New(),
		TenantID:      h.tenantID,
		LegalEntityID: h.leID,
		ProviderCode:  testProvider,
		Currency:      testCurrency,
		ComponentCode: component,
		GLAccountID:   acct.ID,
		EntrySide:     side,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	return acct
}

func (h *harness) removeMapping(component string) {
	kept := h.world.mappings[:0]
	for _, m := range h.world.mappings {
		if m.ComponentCode != component {
			kept = append(kept, m)
		}
	}
	h.world.mappings = kept
}

func amt(v int64) money.Amount { return money.FromInt(v) }

// scenarioRows are two employees with net pay 980 and 840 and statutory
// amounts totalling 840.
func scenarioRows() []ImportRow {
	return []ImportRow{
		{
			EmployeeCode: "E-001", EmployeeName: "Ada Lovelace", CostCenter: "CC-10",
			Amounts: domain.Components{
				BaseSalary: amt(1250), Gross: amt(1250),
				EmployeeTax: amt(150), EmployeeSocialSecurity: amt(100), OtherDeductions: amt(20),
				EmployerTax: amt(120), EmployerSocialSecurity: amt(60),
				NetPay: amt(980),
			},
		},
		{
			EmployeeCode: "E-002", EmployeeName: "Grace Hopper", CostCenter: "CC-20",
			Amounts: domain.Components{
				BaseSalary: amt(1060), Gross: amt(1060),
				EmployeeTax: amt(120), EmployeeSocialSecurity: amt(90), OtherDeductions: amt(10),
				EmployerTax: amt(110), EmployerSocialSecurity: amt(60),
				NetPay: amt(840),
			},
		},
	}
}

func (h *harness) importInput(runNo string) ImportRunInput {
	pay := h.payDate
	return ImportRunInput{
		LegalEntityCode: testLegalEntityCode,
		ProviderCode:    testProvider,
		Period:          testPeriod,
		PayDate:         &pay,
		Currency:        testCurrency,
		RunNo:           runNo,
		Rows:            scenarioRows(),
	}
}

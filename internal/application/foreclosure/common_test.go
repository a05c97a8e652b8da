package foreclosure

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainDiscrepancy "github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memCaseRepo struct {
	mu          sync.Mutex
	cases       map[string]*domainForeclosure.Case
	transitions []domainForeclosure.Transition
	saves       int
}

func newMemCaseRepo() *memCaseRepo {
	return &memCaseRepo{cases: make(map[string]*domainForeclosure.Case)}
}

func cloneCase(c *domainForeclosure.Case) *domainForeclosure.Case {
	out := *c
	out.Defendants = append([]string(nil), c.Defendants...)
	return &out
}

func (r *memCaseRepo) GetByID(_ context.Context, id string) (*domainForeclosure.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, domainForeclosure.ErrCaseNotFound.WithDetail("id=" + id)
	}
	return cloneCase(c), nil
}

func (r *memCaseRepo) GetByCaseNumber(_ context.Context, county, caseNumber string) (*domainForeclosure.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cases {
		if c.County == county && c.CaseNumber == caseNumber {
			return cloneCase(c), nil
		}
	}
	return nil, domainForeclosure.ErrCaseNotFound.WithDetail("case_number=" + caseNumber)
}

func (r *memCaseRepo) Create(_ context.Context, c *domainForeclosure.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cases {
		if existing.County == c.County && existing.CaseNumber == c.CaseNumber {
			return errors.Conflict("case already tracked")
		}
	}
	c.Version = 1
	r.cases[c.ID] = cloneCase(c)
	return nil
}

func (r *memCaseRepo) Save(_ context.Context, c *domainForeclosure.Case, t *domainForeclosure.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cases[c.ID]
	if !ok {
		return domainForeclosure.ErrCaseNotFound
	}
	if stored.Version != c.Version {
		return errors.Conflict("case modified concurrently")
	}
	c.Version++
	r.cases[c.ID] = cloneCase(c)
	if t != nil {
		r.transitions = append(r.transitions, *t)
	}
	r.saves++
	return nil
}

func (r *memCaseRepo) ListStaleUpsetBids(_ context.Context, today time.Time, opts ...domainForeclosure.QueryOption) ([]*domainForeclosure.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domainForeclosure.Case
	for _, c := range r.cases {
		if domainForeclosure.IsStale(c.Classification, c.Ledger.NextBidDeadline, today) {
			out = append(out, cloneCase(c))
		}
	}
	return page(out, opts...), nil
}

func (r *memCaseRepo) ListByClassification(_ context.Context, cl domainForeclosure.Classification, opts ...domainForeclosure.QueryOption) ([]*domainForeclosure.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domainForeclosure.Case
	for _, c := range r.cases {
		if c.Classification == cl {
			out = append(out, cloneCase(c))
		}
	}
	return page(out, opts...), nil
}

func (r *memCaseRepo) ListTransitions(_ context.Context, caseID string) ([]domainForeclosure.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainForeclosure.Transition
	for _, t := range r.transitions {
		if t.CaseID == caseID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memCaseRepo) put(c *domainForeclosure.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Version == 0 {
		c.Version = 1
	}
	r.cases[c.ID] = cloneCase(c)
}

func (r *memCaseRepo) get(id string) *domainForeclosure.Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneCase(r.cases[id])
}

func page(cases []*domainForeclosure.Case, opts ...domainForeclosure.QueryOption) []*domainForeclosure.Case {
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	o := domainForeclosure.ApplyQueryOptions(opts...)
	if o.Offset >= len(cases) {
		return nil
	}
	end := o.Offset + o.Limit
	if end > len(cases) {
		end = len(cases)
	}
	return cases[o.Offset:end]
}

type memEventRepo struct {
	mu     sync.Mutex
	events []domainForeclosure.CaseEvent
}

func (r *memEventRepo) Append(_ context.Context, events []domainForeclosure.CaseEvent) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.events))
	for _, e := range r.events {
		seen[e.DedupKey()] = struct{}{}
	}
	added := 0
	for _, e := range events {
		if _, dup := seen[e.DedupKey()]; dup {
			continue
		}
		seen[e.DedupKey()] = struct{}{}
		e.Seq = int64(len(r.events) + 1)
		r.events = append(r.events, e)
		added++
	}
	return added, nil
}

func (r *memEventRepo) ListByCase(_ context.Context, caseID string) ([]domainForeclosure.CaseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainForeclosure.CaseEvent
	for _, e := range r.events {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memBidRepo struct {
	mu  sync.Mutex
	obs []domainForeclosure.BidObservation
}

func (r *memBidRepo) Add(_ context.Context, o domainForeclosure.BidObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, o)
	return nil
}

func (r *memBidRepo) ListByCase(_ context.Context, caseID string) ([]domainForeclosure.BidObservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainForeclosure.BidObservation
	for _, o := range r.obs {
		if o.CaseID == caseID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memDiscrepancyRepo struct {
	mu      sync.Mutex
	records []domainDiscrepancy.Record
}

func (r *memDiscrepancyRepo) Insert(_ context.Context, records []domainDiscrepancy.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

func (r *memDiscrepancyRepo) ListByCase(_ context.Context, caseID string) ([]domainDiscrepancy.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainDiscrepancy.Record
	for _, rec := range r.records {
		if rec.CaseID == caseID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memDiscrepancyRepo) ListPending(_ context.Context, limit int) ([]domainDiscrepancy.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainDiscrepancy.Record
	for _, rec := range r.records {
		if rec.Status == domainDiscrepancy.StatusPending {
			out = append(out, rec)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Locker and publisher
// ---------------------------------------------------------------------------

// memLocker never blocks: Lock on a held case fails with LockNotAcquired.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) acquire(caseID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[caseID] {
		return false
	}
	l.held[caseID] = true
	return true
}

func (l *memLocker) release(caseID string) ReleaseFunc {
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, caseID)
		return nil
	}
}

func (l *memLocker) Lock(_ context.Context, caseID string) (ReleaseFunc, error) {
	if !l.acquire(caseID) {
		return nil, errors.New(errors.ErrCodeLockNotAcquired, "case lock held").WithDetail("case=" + caseID)
	}
	return l.release(caseID), nil
}

func (l *memLocker) TryLock(_ context.Context, caseID string) (ReleaseFunc, bool, error) {
	if !l.acquire(caseID) {
		return nil, false, nil
	}
	return l.release(caseID), true, nil
}

func (l *memLocker) isHeld(caseID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[caseID]
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishTransition(ctx context.Context, c *domainForeclosure.Case, t domainForeclosure.Transition) error {
	return m.Called(ctx, c, t).Error(0)
}

func (m *mockPublisher) PublishLedger(ctx context.Context, caseID string, u domainForeclosure.LedgerUpdate) error {
	return m.Called(ctx, caseID, u).Error(0)
}

func (m *mockPublisher) PublishDiscrepancies(ctx context.Context, caseID string, records []domainDiscrepancy.Record) error {
	return m.Called(ctx, caseID, records).Error(0)
}

// permissive accepts any publish call.
func (m *mockPublisher) permissive() *mockPublisher {
	m.On("PublishTransition", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishLedger", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishDiscrepancies", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

var testNow = time.Date(2024, time.March, 20, 15, 0, 0, 0, time.UTC)

type harness struct {
	svc           CaseMonitorService
	cases         *memCaseRepo
	events        *memEventRepo
	bids          *memBidRepo
	discrepancies *memDiscrepancyRepo
	locker        *memLocker
	publisher     *mockPublisher
}

func newHarness(t *testing.T, opts ...func(*Dependencies, *ServiceConfig)) *harness {
	t.Helper()
	h := &harness{
		cases:         newMemCaseRepo(),
		events:        &memEventRepo{},
		bids:          &memBidRepo{},
		discrepancies: &memDiscrepancyRepo{},
		locker:        newMemLocker(),
		publisher:     new(mockPublisher),
	}
	deps := Dependencies{
		Cases:         h.cases,
		Events:        h.events,
		Bids:          h.bids,
		Discrepancies: h.discrepancies,
		Locker:        h.locker,
		Publisher:     h.publisher,
	}
	cfg := ServiceConfig{Now: func() time.Time { return testNow }}
	for _, o := range opts {
		o(&deps, &cfg)
	}
	svc, err := NewCaseMonitorService(deps, cfg)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seed(t *testing.T, id string, cl domainForeclosure.Classification) *domainForeclosure.Case {
	t.Helper()
	c, err := domainForeclosure.NewCase("24SP"+id, "wake", testNow.Add(-48*time.Hour))
	require.NoError(t, err)
	c.ID = id
	c.Classification = cl
	h.cases.put(c)
	return h.cases.get(id)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

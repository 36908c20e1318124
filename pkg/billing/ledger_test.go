package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubdues/clubdues/pkg/money"
)

// memoryStore is an in-memory TxRunner. Each unit of work operates on copies that are
// swapped in only when fn succeeds.
type memoryStore struct {
	mu         sync.Mutex
	contracts  map[uuid.UUID]*Contract
	batches    []*PaymentBatch
	payments   []*Payment
	advanceErr error
}

func newMemoryStore(contracts ...*Contract) *memoryStore {
	s := &memoryStore{contracts: make(map[uuid.UUID]*Contract)}
	for _, c := range contracts {
		s.contracts[c.ID] = c
	}
	return s
}

func (s *memoryStore) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:     s,
		contracts: make(map[uuid.UUID]*Contract, len(s.contracts)),
		batches:   append([]*PaymentBatch(nil), s.batches...),
		payments:  append([]*Payment(nil), s.payments...),
	}
	for id, c := range s.contracts {
		clone := *c
		tx.contracts[id] = &clone
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.contracts = tx.contracts
	s.batches = tx.batches
	s.payments = tx.payments
	return nil
}

func (s *memoryStore) contract(id uuid.UUID) *Contract {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contracts[id]
}

type memoryTx struct {
	store     *memoryStore
	contracts map[uuid.UUID]*Contract
	batches   []*PaymentBatch
	payments  []*Payment
}

func (t *memoryTx) Querier() Querier { return nil }

func (t *memoryTx) BatchExists(ctx context.Context, orgID uuid.UUID, month time.Time) (bool, error) {
	for _, b := range t.batches {
		if b.OrganizationID == orgID && b.BillingMonth.Equal(month) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) EligibleContracts(ctx context.Context, orgID uuid.UUID, month time.Time) ([]*Contract, error) {
	var out []*Contract
	for _, c := range t.contracts {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (t *memoryTx) InsertBatch(ctx context.Context, b *PaymentBatch) error {
	for _, existing := range t.batches {
		if existing.OrganizationID == b.OrganizationID && existing.BillingMonth.Equal(b.BillingMonth) {
			return Conflict("batch already exists for this month")
		}
	}
	b.CreatedAt = time.Now()
	t.batches = append(t.batches, b)
	return nil
}

func (t *memoryTx) InsertPayments(ctx context.Context, payments []*Payment) error {
	t.payments = append(t.payments, payments...)
	return nil
}

func (t *memoryTx) AdvanceContracts(ctx context.Context, rollovers []ContractRollover) error {
	for _, r := range rollovers {
		c, ok := t.contracts[r.ContractID]
		if !ok {
			return errors.New("unknown contract")
		}
		c.NextBillingDate = r.NextBillingDate
		if r.JoiningFeePaidAt != nil {
			c.JoiningFeePaidAt = r.JoiningFeePaidAt
		}
		if r.YearlyFeePaidYear != nil {
			c.LastYearlyFeePaidYear = r.YearlyFeePaidYear
		}
	}
	return t.store.advanceErr
}

type staticPricer map[uuid.UUID]money.Amount

func (p staticPricer) MembershipAmounts(ctx context.Context, q Querier, orgID uuid.UUID, memberIDs []uuid.UUID, month time.Time) (map[uuid.UUID]money.Amount, error) {
	out := make(map[uuid.UUID]money.Amount, len(memberIDs))
	for _, id := range memberIDs {
		if amount, ok := p[id]; ok {
			out[id] = amount
		}
	}
	return out, nil
}

type failingPricer struct{}

func (failingPricer) MembershipAmounts(ctx context.Context, q Querier, orgID uuid.UUID, memberIDs []uuid.UUID, month time.Time) (map[uuid.UUID]money.Amount, error) {
	return nil, errors.New("connection reset")
}

func newContract(orgID uuid.UUID, start time.Time) *Contract {
	return &Contract{
		ID:                   uuid.New(),
		MemberID:             uuid.New(),
		OrganizationID:       orgID,
		InitialPeriod:        InitialPeriodMonthly,
		StartDate:            start,
		InitialPeriodEndDate: LastDayOfMonth(start),
		CurrentPeriodEndDate: LastDayOfMonth(start),
		NextBillingDate:      start,
		MandateID:            "M-" + uuid.NewString()[:8],
		MandateSignatureDate: start,
	}
}

func createBatch(t *testing.T, ledger *Ledger, orgID uuid.UUID, month time.Time) *CreateBatchResult {
	t.Helper()
	result, err := ledger.Create(context.Background(), &CreateBatchRequest{OrganizationID: orgID, BillingMonth: month})
	require.NoError(t, err)
	return result
}

func TestLedger_Create_FirstAndSecondMonth(t *testing.T) {
	orgID := uuid.New()
	contract := newContract(orgID, date(2025, time.January, 1))
	contract.JoiningFeeAmount = amountPtr("50.00")
	contract.YearlyFeeAmount = amountPtr("120.00")

	store := newMemoryStore(contract)
	now := time.Date(2025, time.January, 2, 9, 30, 0, 0, time.UTC)
	ledger := NewLedger(store, staticPricer{contract.MemberID: money.MustParse("30.00")},
		WithClock(func() time.Time { return now }),
	)

	t.Run("january charges all three fees", func(t *testing.T) {
		result := createBatch(t, ledger, orgID, date(2025, time.January, 1))

		require.Len(t, result.Payments, 1)
		p := result.Payments[0]
		assert.Equal(t, "30.00", p.MembershipAmount.String())
		assert.Equal(t, "50.00", p.JoiningFeeAmount.String())
		assert.Equal(t, "120.00", p.YearlyFeeAmount.String())
		assert.Equal(t, "200.00", p.TotalAmount.String())
		assert.Equal(t, date(2025, time.January, 1), p.BillingPeriodStart)
		assert.Equal(t, date(2025, time.January, 31), p.BillingPeriodEnd)
		assert.Equal(t, date(2025, time.January, 1), p.DueDate)
		assert.Equal(t, result.Batch.ID, p.BatchID)

		assert.Equal(t, "200.00", result.Batch.TotalAmount.String())
		assert.Equal(t, 1, result.Batch.TransactionCount)
		assert.Equal(t, 1, result.Summary.JoiningFeesCharged)
		assert.Equal(t, 1, result.Summary.YearlyFeesCharged)
		assert.Equal(t, 1, result.Summary.ContractsAdvanced)

		updated := store.contract(contract.ID)
		assert.Equal(t, date(2025, time.February, 1), updated.NextBillingDate)
		require.NotNil(t, updated.JoiningFeePaidAt)
		assert.Equal(t, now, *updated.JoiningFeePaidAt)
		require.NotNil(t, updated.LastYearlyFeePaidYear)
		assert.Equal(t, 2025, *updated.LastYearlyFeePaidYear)
	})

	t.Run("february charges membership only", func(t *testing.T) {
		result := createBatch(t, ledger, orgID, date(2025, time.February, 1))

		require.Len(t, result.Payments, 1)
		assert.Equal(t, "30.00", result.Payments[0].TotalAmount.String())
		assert.Equal(t, "0.00", result.Payments[0].JoiningFeeAmount.String())
		assert.Equal(t, "0.00", result.Payments[0].YearlyFeeAmount.String())
		assert.Equal(t, date(2025, time.February, 28), result.Payments[0].BillingPeriodEnd)
		assert.Equal(t, date(2025, time.March, 1), store.contract(contract.ID).NextBillingDate)
	})
}

func TestLedger_Create_NilRequest(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, staticPricer{})

	result, err := ledger.Create(context.Background(), nil)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidInput))
	assert.Empty(t, store.batches)
}

func TestLedger_Create_Conflict(t *testing.T) {
	orgID := uuid.New()
	store := newMemoryStore(newContract(orgID, date(2025, time.January, 1)))
	ledger := NewLedger(store, staticPricer{})

	createBatch(t, ledger, orgID, date(2025, time.January, 1))

	_, err := ledger.Create(context.Background(), &CreateBatchRequest{
		OrganizationID: orgID,
		BillingMonth:   date(2025, time.January, 1),
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))
	assert.Len(t, store.batches, 1)
	assert.Len(t, store.payments, 1)
}

func TestLedger_Create_OtherOrganizationDoesNotConflict(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	store := newMemoryStore(
		newContract(orgA, date(2025, time.January, 1)),
		newContract(orgB, date(2025, time.January, 1)),
	)
	ledger := NewLedger(store, staticPricer{})

	a := createBatch(t, ledger, orgA, date(2025, time.January, 1))
	b := createBatch(t, ledger, orgB, date(2025, time.January, 1))

	assert.Len(t, a.Payments, 1)
	assert.Len(t, b.Payments, 1)
	assert.NotEqual(t, a.Batch.BatchNumber, b.Batch.BatchNumber)
}

func TestLedger_Create_NoEligibleContracts(t *testing.T) {
	orgID := uuid.New()
	future := newContract(orgID, date(2025, time.June, 1))
	store := newMemoryStore(future)
	ledger := NewLedger(store, staticPricer{})

	_, err := ledger.Create(context.Background(), &CreateBatchRequest{
		OrganizationID: orgID,
		BillingMonth:   date(2025, time.March, 1),
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNoEligibleContracts))
	assert.Empty(t, store.batches)
	assert.Equal(t, date(2025, time.June, 1), store.contract(future.ID).NextBillingDate)
}

func TestLedger_Create_InvalidInput(t *testing.T) {
	ledger := NewLedger(newMemoryStore(), staticPricer{})

	tests := []struct {
		name string
		req  *CreateBatchRequest
	}{
		{name: "mid month", req: &CreateBatchRequest{OrganizationID: uuid.New(), BillingMonth: date(2025, time.January, 15)}},
		{name: "missing organization", req: &CreateBatchRequest{BillingMonth: date(2025, time.January, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindInvalidInput))
		})
	}
}

func TestLedger_Create_CancelledContracts(t *testing.T) {
	orgID := uuid.New()
	month := date(2025, time.April, 1)

	before := newContract(orgID, date(2025, time.January, 1))
	before.NextBillingDate = month
	cancelledBefore := date(2025, time.March, 31)
	before.CancellationEffectiveDate = &cancelledBefore

	onMonth := newContract(orgID, date(2025, time.January, 1))
	onMonth.NextBillingDate = month
	onMonth.CancellationEffectiveDate = &month

	store := newMemoryStore(before, onMonth)
	ledger := NewLedger(store, staticPricer{})

	result := createBatch(t, ledger, orgID, month)

	require.Len(t, result.Payments, 1)
	assert.Equal(t, onMonth.ID, result.Payments[0].ContractID)
	assert.Equal(t, month, store.contract(before.ID).NextBillingDate)
}

func TestLedger_Create_YearlyFeeOncePerYear(t *testing.T) {
	orgID := uuid.New()
	contract := newContract(orgID, date(2025, time.March, 1))
	contract.YearlyFeeAmount = amountPtr("120.00")

	store := newMemoryStore(contract)
	ledger := NewLedger(store, staticPricer{contract.MemberID: money.MustParse("10.00")})

	charged := map[string]string{}
	for month := date(2025, time.March, 1); !month.After(date(2027, time.February, 1)); month = NextBillingMonth(month) {
		result := createBatch(t, ledger, orgID, month)
		require.Len(t, result.Payments, 1)
		if result.Payments[0].YearlyFeeAmount.IsPositive() {
			charged[month.Format("2006-01")] = result.Payments[0].YearlyFeeAmount.String()
		}
	}

	assert.Equal(t, map[string]string{
		"2026-01": "120.00",
		"2027-01": "120.00",
	}, charged)
}

func TestLedger_Create_JoiningFeeOnce(t *testing.T) {
	orgID := uuid.New()
	contract := newContract(orgID, date(2025, time.May, 1))
	contract.JoiningFeeAmount = amountPtr("25.00")

	store := newMemoryStore(contract)
	ledger := NewLedger(store, staticPricer{})

	var joiningLines int
	for month := date(2025, time.May, 1); month.Before(date(2025, time.September, 1)); month = NextBillingMonth(month) {
		result := createBatch(t, ledger, orgID, month)
		if result.Payments[0].JoiningFeeAmount.IsPositive() {
			joiningLines++
		}
	}
	assert.Equal(t, 1, joiningLines)
}

func TestLedger_Create_CatchesUpOverdueContract(t *testing.T) {
	orgID := uuid.New()
	contract := newContract(orgID, date(2025, time.January, 1))
	store := newMemoryStore(contract)
	ledger := NewLedger(store, staticPricer{})

	createBatch(t, ledger, orgID, date(2025, time.March, 1))

	assert.Equal(t, date(2025, time.April, 1), store.contract(contract.ID).NextBillingDate)
}

func TestLedger_Create_TotalsAreSumOfRoundedLines(t *testing.T) {
	orgID := uuid.New()
	prices := staticPricer{}
	var contracts []*Contract
	for _, raw := range []string{"10.005", "0.125", "19.994", "7.5"} {
		c := newContract(orgID, date(2025, time.February, 1))
		prices[c.MemberID] = money.MustParse(raw)
		contracts = append(contracts, c)
	}
	joining := newContract(orgID, date(2025, time.February, 1))
	joining.JoiningFeeAmount = amountPtr("33.335")
	contracts = append(contracts, joining)

	ledger := NewLedger(newMemoryStore(contracts...), prices)
	result := createBatch(t, ledger, orgID, date(2025, time.February, 1))

	lines := make([]money.Amount, 0, len(result.Payments))
	memberships := make([]money.Amount, 0, len(result.Payments))
	for _, p := range result.Payments {
		assert.True(t, p.TotalAmount.Equal(money.Sum(p.MembershipAmount, p.JoiningFeeAmount, p.YearlyFeeAmount)))
		lines = append(lines, p.TotalAmount)
		memberships = append(memberships, p.MembershipAmount)
	}

	assert.True(t, result.Batch.TotalAmount.Equal(money.Sum(lines...)))
	assert.True(t, result.Batch.MembershipTotal.Equal(money.Sum(memberships...)))
	assert.Equal(t, "37.63", result.Batch.MembershipTotal.String())
	assert.Equal(t, "33.34", result.Batch.JoiningFeeTotal.String())
	assert.Equal(t, "70.97", result.Batch.TotalAmount.String())
	assert.Equal(t, len(contracts), result.Batch.TransactionCount)
}

func TestLedger_Create_MissingPriceBillsZeroLine(t *testing.T) {
	orgID := uuid.New()
	contract := newContract(orgID, date(2025, time.February, 1))
	ledger := NewLedger(newMemoryStore(contract), staticPricer{})

	result := createBatch(t, ledger, orgID, date(2025, time.February, 1))

	require.Len(t, result.Payments, 1)
	assert.True(t, result.Payments[0].TotalAmount.IsZero())
	assert.Equal(t, "0.00", result.Batch.TotalAmount.String())
}

func TestLedger_Create_RollsBackOnFailure(t *testing.T) {
	orgID := uuid.New()
	contract := newContract(orgID, date(2025, time.January, 1))
	contract.JoiningFeeAmount = amountPtr("50.00")

	t.Run("rollover failure", func(t *testing.T) {
		store := newMemoryStore(contract)
		store.advanceErr = errors.New("deadlock detected")
		ledger := NewLedger(store, staticPricer{})

		_, err := ledger.Create(context.Background(), &CreateBatchRequest{
			OrganizationID: orgID,
			BillingMonth:   date(2025, time.January, 1),
		})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindInternal))
		assert.Empty(t, store.batches)
		assert.Empty(t, store.payments)
		assert.Nil(t, store.contract(contract.ID).JoiningFeePaidAt)
		assert.Equal(t, date(2025, time.January, 1), store.contract(contract.ID).NextBillingDate)
	})

	t.Run("pricing failure", func(t *testing.T) {
		store := newMemoryStore(contract)
		ledger := NewLedger(store, failingPricer{})

		_, err := ledger.Create(context.Background(), &CreateBatchRequest{
			OrganizationID: orgID,
			BillingMonth:   date(2025, time.January, 1),
		})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindInternal))
		assert.Empty(t, store.batches)
	})
}

func TestLedger_Create_ConcurrentCallersProduceOneBatch(t *testing.T) {
	orgID := uuid.New()
	store := newMemoryStore(newContract(orgID, date(2025, time.January, 1)))
	ledger := NewLedger(store, staticPricer{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Create(context.Background(), &CreateBatchRequest{
				OrganizationID: orgID,
				BillingMonth:   date(2025, time.January, 1),
			})
		}(i)
	}
	wg.Wait()

	var created, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case IsKind(err, KindConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, conflicts)
	assert.Len(t, store.batches, 1)
}

func TestBatchNumber(t *testing.T) {
	orgID := uuid.MustParse("1a2b3c4d-0000-0000-0000-000000000000")
	assert.Equal(t, "B202501-1A2B3C4D", BatchNumber(orgID, date(2025, time.January, 1)))
}

func TestLedger_Create_IDGenerator(t *testing.T) {
	orgID := uuid.New()
	contract := newContract(orgID, date(2025, time.January, 1))
	store := newMemoryStore(contract)

	ids := []uuid.UUID{
		uuid.MustParse("00000000-0000-0000-0000-00000000000a"),
		uuid.MustParse("00000000-0000-0000-0000-00000000000b"),
	}
	next := 0
	ledger := NewLedger(store, staticPricer{contract.MemberID: money.MustParse("30.00")},
		WithIDGenerator(func() uuid.UUID {
			id := ids[next]
			next++
			return id
		}),
	)

	result := createBatch(t, ledger, orgID, date(2025, time.January, 1))

	assert.Equal(t, ids[0], result.Batch.ID)
	require.Len(t, result.Payments, 1)
	assert.Equal(t, ids[1], result.Payments[0].ID)
	assert.Equal(t, ids[0], result.Payments[0].BatchID)
}

package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/mehedi-4/LMS/bank-service/internal/domain"
	"github.com/mehedi-4/LMS/bank-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const platformNo = "9999999999999999"

// memoryLedger behaves like a READ COMMITTED store with row locks: every read
// sees the latest committed state, LockAccounts blocks on per-account locks, and
// a transaction's writes are applied only when fn returns nil.
type memoryLedger struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	transfers map[string]domain.Transfer
	rows      map[string]*sync.Mutex
	// failOn makes the named LedgerTx step fail, to prove rollback.
	failOn string
	// staleKeyLookups makes the next N in-transaction key lookups miss committed
	// transfers, as a statement that ran before a concurrent commit would.
	staleKeyLookups int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		accounts:  map[string]domain.Account{},
		transfers: map[string]domain.Transfer{},
		rows:      map[string]*sync.Mutex{},
	}
}

func (m *memoryLedger) row(accountNo string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.rows[accountNo]
	if !ok {
		lock = &sync.Mutex{}
		m.rows[accountNo] = lock
	}
	return lock
}

func (m *memoryLedger) GetAccount(_ context.Context, accountNo string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountNo]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &acc, nil
}

func (m *memoryLedger) CreateAccount(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.AccountNo]; ok {
		return domain.ErrAccountExists
	}
	m.accounts[account.AccountNo] = *account
	return nil
}

func (m *memoryLedger) FindTransferByKey(_ context.Context, key string) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[key]
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return &t, nil
}

func (m *memoryLedger) RunInTx(_ context.Context, fn func(tx store.LedgerTx) error) error {
	tx := &memoryTx{parent: m, accounts: map[string]domain.Account{}, transfers: map[string]domain.Transfer{}}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range tx.transfers {
		if _, ok := m.transfers[key]; ok {
			return domain.ErrDuplicateTransfer
		}
	}
	for k, v := range tx.accounts {
		m.accounts[k] = v
	}
	for k, v := range tx.transfers {
		m.transfers[k] = v
	}
	return nil
}

func (m *memoryLedger) balance(accountNo string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountNo].Balance
}

func (m *memoryLedger) total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, acc := range m.accounts {
		sum = sum.Add(acc.Balance)
	}
	return sum
}

func (m *memoryLedger) transferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transfers)
}

type memoryTx struct {
	parent    *memoryLedger
	accounts  map[string]domain.Account
	transfers map[string]domain.Transfer
	locked    []*sync.Mutex
}

func (t *memoryTx) release() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		t.locked[i].Unlock()
	}
	t.locked = nil
}

func (t *memoryTx) FindTransferByKey(_ context.Context, key string) (*domain.Transfer, error) {
	if tr, ok := t.transfers[key]; ok {
		return &tr, nil
	}
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	if t.parent.staleKeyLookups > 0 {
		t.parent.staleKeyLookups--
		return nil, domain.ErrTransferNotFound
	}
	tr, ok := t.parent.transfers[key]
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return &tr, nil
}

func (t *memoryTx) SecretHash(_ context.Context, accountNo string) (string, error) {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	acc, ok := t.parent.accounts[accountNo]
	if !ok {
		return "", domain.ErrAccountNotFound
	}
	return acc.SecretHash, nil
}

func (t *memoryTx) LockAccounts(_ context.Context, accountNos ...string) (map[string]domain.Account, error) {
	sorted := append([]string(nil), accountNos...)
	sort.Strings(sorted)
	for i, no := range sorted {
		if i > 0 && sorted[i-1] == no {
			continue
		}
		lock := t.parent.row(no)
		lock.Lock()
		t.locked = append(t.locked, lock)
	}

	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	out := map[string]domain.Account{}
	for _, no := range sorted {
		if acc, ok := t.parent.accounts[no]; ok {
			t.accounts[no] = acc
			out[no] = acc
		}
	}
	return out, nil
}

func (t *memoryTx) Debit(_ context.Context, accountNo string, amount decimal.Decimal) (decimal.Decimal, error) {
	acc, ok := t.accounts[accountNo]
	if !ok || acc.Balance.LessThan(amount) {
		return decimal.Zero, domain.ErrInsufficientFunds
	}
	acc.Balance = acc.Balance.Sub(amount)
	t.accounts[accountNo] = acc
	return acc.Balance, nil
}

func (t *memoryTx) Credit(_ context.Context, accountNo string, amount decimal.Decimal) (decimal.Decimal, error) {
	if t.parent.failOn == "credit" {
		return decimal.Zero, errors.New("credit failed")
	}
	acc, ok := t.accounts[accountNo]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	acc.Balance = acc.Balance.Add(amount)
	t.accounts[accountNo] = acc
	return acc.Balance, nil
}

func (t *memoryTx) InsertTransfer(_ context.Context, transfer *domain.Transfer) error {
	if t.parent.failOn == "insert" {
		return errors.New("insert failed")
	}
	if transfer.IdempotencyKey == nil {
		return nil
	}
	key := *transfer.IdempotencyKey
	if _, ok := t.transfers[key]; ok {
		return domain.ErrDuplicateTransfer
	}
	t.parent.mu.Lock()
	_, committed := t.parent.transfers[key]
	t.parent.mu.Unlock()
	if committed {
		return domain.ErrDuplicateTransfer
	}
	t.transfers[key] = *transfer
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T) (*Service, *memoryLedger, *recordingPublisher) {
	t.Helper()
	ledger := newMemoryLedger()
	publisher := &recordingPublisher{}
	svc := NewService(ledger, NewBcryptHasher(bcrypt.MinCost), publisher, platformNo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.SeedAccount(context.Background(), "1001", "s3cret", dec("100.00"))
	require.NoError(t, err)
	_, err = svc.SeedAccount(context.Background(), "2002", "instr", dec("0.00"))
	require.NoError(t, err)
	_, err = svc.SeedAccount(context.Background(), platformNo, "platform", dec("0.00"))
	require.NoError(t, err)
	return svc, ledger, publisher
}

func TestTransferToPlatform_Success(t *testing.T) {
	svc, ledger, publisher := newTestService(t)
	before := ledger.total()

	res, err := svc.TransferToPlatform(context.Background(), ChargeInput{
		FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("30"), IdempotencyKey: "attempt-1",
	})
	require.NoError(t, err)

	assert.False(t, res.Replayed)
	assert.True(t, res.Transfer.FromBalanceAfter.Equal(dec("70")))
	assert.True(t, res.Transfer.ToBalanceAfter.Equal(dec("30")))
	assert.True(t, ledger.balance("1001").Equal(dec("70")))
	assert.True(t, ledger.balance(platformNo).Equal(dec("30")))
	assert.True(t, ledger.total().Equal(before), "money must be conserved")
	assert.Equal(t, 1, publisher.count())
}

func TestTransferToPlatform_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		in      ChargeInput
		wantErr error
	}{
		{name: "wrong secret", in: ChargeInput{FromAccountNo: "1001", SecretKey: "nope", Amount: dec("10")}, wantErr: domain.ErrInvalidCredentials},
		{name: "unknown account", in: ChargeInput{FromAccountNo: "5555", SecretKey: "s3cret", Amount: dec("10")}, wantErr: domain.ErrInvalidCredentials},
		{name: "insufficient funds", in: ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("100.01")}, wantErr: domain.ErrInsufficientFunds},
		{name: "zero amount", in: ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("0")}, wantErr: domain.ErrInvalidAmount},
		{name: "negative amount", in: ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("-5")}, wantErr: domain.ErrInvalidAmount},
		{name: "sub-cent amount", in: ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("1.005")}, wantErr: domain.ErrInvalidAmount},
		{name: "platform to itself", in: ChargeInput{FromAccountNo: platformNo, SecretKey: "platform", Amount: dec("1")}, wantErr: domain.ErrSameAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ledger, publisher := newTestService(t)

			_, err := svc.TransferToPlatform(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.wantErr)

			assert.True(t, ledger.balance("1001").Equal(dec("100")))
			assert.True(t, ledger.balance(platformNo).IsZero())
			assert.Equal(t, 0, publisher.count())
		})
	}
}

func TestTransferToPlatform_ExactBalanceLeavesZero(t *testing.T) {
	svc, ledger, _ := newTestService(t)

	_, err := svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("100.00")})
	require.NoError(t, err)
	assert.True(t, ledger.balance("1001").IsZero())
}

func TestTransfer_RollsBackOnMidTransactionFailure(t *testing.T) {
	for _, step := range []string{"credit", "insert"} {
		t.Run(step, func(t *testing.T) {
			svc, ledger, publisher := newTestService(t)
			ledger.failOn = step

			_, err := svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("25"), IdempotencyKey: "k"})
			require.Error(t, err)

			assert.True(t, ledger.balance("1001").Equal(dec("100")), "debit must be rolled back")
			assert.True(t, ledger.balance(platformNo).IsZero())
			_, lookupErr := ledger.FindTransferByKey(context.Background(), "k")
			assert.ErrorIs(t, lookupErr, domain.ErrTransferNotFound)
			assert.Equal(t, 0, publisher.count())
		})
	}
}

func TestTransferToPlatform_IdempotentReplay(t *testing.T) {
	svc, ledger, publisher := newTestService(t)
	in := ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("30"), IdempotencyKey: "attempt-1"}

	first, err := svc.TransferToPlatform(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.TransferToPlatform(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transfer.ID, second.Transfer.ID)
	assert.True(t, ledger.balance("1001").Equal(dec("70")), "replay must not debit twice")
	assert.Equal(t, 1, publisher.count())
}

func TestTransferToPlatform_KeyReuseWithDifferentAmount(t *testing.T) {
	svc, ledger, _ := newTestService(t)

	_, err := svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("30"), IdempotencyKey: "attempt-1"})
	require.NoError(t, err)

	_, err = svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("40"), IdempotencyKey: "attempt-1"})
	require.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	assert.True(t, ledger.balance("1001").Equal(dec("70")))
}

func TestTransferToPlatform_ReplayStillRequiresSecret(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("30"), IdempotencyKey: "attempt-1"})
	require.NoError(t, err)

	_, err = svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "guess", Amount: dec("30"), IdempotencyKey: "attempt-1"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestTransferToPlatform_ResendAfterConcurrentCommitIsReplay(t *testing.T) {
	svc, ledger, publisher := newTestService(t)
	in := ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("60"), IdempotencyKey: "attempt-1"}

	first, err := svc.TransferToPlatform(context.Background(), in)
	require.NoError(t, err)

	// The resend's first key read predates the commit; only the read taken
	// under the row locks can see it.
	ledger.staleKeyLookups = 1
	second, err := svc.TransferToPlatform(context.Background(), in)
	require.NoError(t, err, "a resend must not be judged against the already debited balance")

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transfer.ID, second.Transfer.ID)
	assert.True(t, ledger.balance("1001").Equal(dec("40")))
	assert.Equal(t, 1, publisher.count())
}

func TestTransferToPlatform_ConcurrentSameKeyChargesOnce(t *testing.T) {
	svc, ledger, publisher := newTestService(t)
	in := ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("60"), IdempotencyKey: "attempt-1"}

	const callers = 8
	results := make([]*domain.TransferResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.TransferToPlatform(context.Background(), in)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		if !results[i].Replayed {
			applied++
		}
		assert.Equal(t, results[0].Transfer.ID, results[i].Transfer.ID)
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, ledger.transferCount())
	assert.True(t, ledger.balance("1001").Equal(dec("40")))
	assert.True(t, ledger.balance(platformNo).Equal(dec("60")))
	assert.Equal(t, 1, publisher.count())
}

func TestPayoutFromPlatform_InstructorWithExistingBalance(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	_, err := svc.SeedAccount(context.Background(), "3003", "instr2", dec("200.00"))
	require.NoError(t, err)
	_, err = svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("100.00")})
	require.NoError(t, err)
	before := ledger.total()

	res, err := svc.PayoutFromPlatform(context.Background(), PayoutInput{ToAccountNo: "3003", Amount: dec("50.00")})
	require.NoError(t, err)

	assert.True(t, res.Transfer.ToBalanceAfter.Equal(dec("250.00")))
	assert.True(t, ledger.balance("3003").Equal(dec("250.00")))
	assert.True(t, ledger.balance(platformNo).Equal(dec("50.00")), "platform balance decreases by the payout")
	assert.True(t, ledger.total().Equal(before))
}

func TestPayoutFromPlatform(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	_, err := svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("50")})
	require.NoError(t, err)

	res, err := svc.PayoutFromPlatform(context.Background(), PayoutInput{ToAccountNo: "2002", Amount: dec("20"), IdempotencyKey: "payout-1"})
	require.NoError(t, err)
	assert.True(t, res.Transfer.FromBalanceAfter.Equal(dec("30")))
	assert.True(t, res.Transfer.ToBalanceAfter.Equal(dec("20")))

	_, err = svc.PayoutFromPlatform(context.Background(), PayoutInput{ToAccountNo: "2002", Amount: dec("31")})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = svc.PayoutFromPlatform(context.Background(), PayoutInput{ToAccountNo: "7777", Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.True(t, ledger.balance(platformNo).Equal(dec("30")))
	assert.True(t, ledger.balance("2002").Equal(dec("20")))
}

func TestTransferToPlatform_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	before := ledger.total()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("30")})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.True(t, ledger.balance("1001").Equal(dec("10")))
	assert.True(t, ledger.total().Equal(before))
}

func TestGetTransfer(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetTransfer(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrTransferNotFound)

	_, err = svc.TransferToPlatform(context.Background(), ChargeInput{FromAccountNo: "1001", SecretKey: "s3cret", Amount: dec("5"), IdempotencyKey: "found"})
	require.NoError(t, err)

	transfer, err := svc.GetTransfer(context.Background(), "found")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferKindPlatformCharge, transfer.Kind)
}

func TestBcryptHasher_VerifyEmptyHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("pw")
	require.NoError(t, err)

	assert.True(t, h.Verify(hash, "pw"))
	assert.False(t, h.Verify(hash, "other"))
	assert.False(t, h.Verify("", "pw"))
}

package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardLedger/internal/asset"
	"rewardLedger/internal/checkpoint"
	"rewardLedger/internal/events"
	"rewardLedger/internal/ledger"
	"rewardLedger/internal/model"
)

var (
	pool  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

type flakyStorage struct {
	mu      sync.Mutex
	failing bool
	records []model.EventRecord
}

func (s *flakyStorage) PutEventBatch(_ context.Context, records []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("storage offline")
	}
	s.records = append(s.records, records...)
	return nil
}

// lossyAsset moves tokens but loses the receipt while lost is set.
type lossyAsset struct {
	*asset.Memory
	lost bool
}

func (a *lossyAsset) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	ok, err := a.Memory.Transfer(ctx, to, amount)
	if a.lost {
		return false, &asset.OutcomeUnknownError{Method: "transfer", Err: context.Canceled}
	}
	return ok, err
}

type harness struct {
	svc   *Service
	mem   *lossyAsset
	clock *ledger.ManualClock
	store *flakyStorage
	cp    *checkpoint.FileStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := asset.NewMemory(pool)
	mem.Mint(alice, uint256.NewInt(1_000))
	mem.Mint(owner, uint256.NewInt(1_000))
	a := &lossyAsset{Memory: mem}
	clock := ledger.NewManualClock(time.Unix(1_700_000_000, 0))
	journal := events.NewJournal(zap.NewNop())

	l, err := ledger.New(ledger.Config{Pool: pool, Owner: owner, RewardRate: uint256.NewInt(2)}, a, journal, clock, nil)
	require.NoError(t, err)

	store := &flakyStorage{}
	cp := &checkpoint.FileStore{Path: filepath.Join(t.TempDir(), "state.json")}
	svc := New(Config{MaxRetries: 0, RetryBackoff: time.Millisecond}, l, journal, store, cp, zap.NewNop())
	return &harness{svc: svc, mem: a, clock: clock, store: store, cp: cp}
}

func TestSuccessfulOperationPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.FundRewards(ctx, owner, uint256.NewInt(500)))
	require.NoError(t, h.svc.Deposit(ctx, alice, uint256.NewInt(100)))
	h.clock.Advance(10 * time.Second)
	paid, err := h.svc.ClaimRewards(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(20), paid.Uint64())

	require.Len(t, h.store.records, 3)
	require.Equal(t, ledger.EventRewardsFunded, h.store.records[0].EventName)
	require.Equal(t, ledger.EventDeposited, h.store.records[1].EventName)
	require.Equal(t, ledger.EventRewardPaid, h.store.records[2].EventName)

	snap, ok, err := h.cp.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h.svc.Ledger().Snapshot(), snap)
	require.Equal(t, uint64(3), snap.EventSeq)
}

func TestFailedOperationPersistsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.svc.Withdraw(ctx, alice, uint256.NewInt(1))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.ErrorIs(t, h.svc.SetRewardRate(ctx, alice, uint256.NewInt(9)), ledger.ErrNotOwner)

	require.Empty(t, h.store.records)
	_, ok, err := h.cp.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorageOutageKeepsEventsBuffered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.store.failing = true
	require.NoError(t, h.svc.Deposit(ctx, alice, uint256.NewInt(100)))
	require.Empty(t, h.store.records)
	require.Error(t, h.svc.Persist(ctx))

	h.store.failing = false
	require.NoError(t, h.svc.Withdraw(ctx, alice, uint256.NewInt(40)))
	require.Len(t, h.store.records, 2)
	require.Equal(t, uint64(1), h.store.records[0].Seq)
	require.Equal(t, uint64(2), h.store.records[1].Seq)

	require.NoError(t, h.svc.Persist(ctx))
	require.Len(t, h.store.records, 2)
}

func TestExitThroughService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.FundRewards(ctx, owner, uint256.NewInt(500)))
	require.NoError(t, h.svc.Deposit(ctx, alice, uint256.NewInt(100)))
	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.svc.Exit(ctx, alice))

	bal, err := h.mem.BalanceOf(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1_010), bal.Uint64())
	require.True(t, h.svc.Ledger().TotalDeposits().IsZero())
	h.svc.RefreshGauges()
}

func TestLostReceiptPersistsHalt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.Deposit(ctx, alice, uint256.NewInt(100)))
	h.mem.lost = true
	err := h.svc.Withdraw(ctx, alice, uint256.NewInt(100))
	require.ErrorIs(t, err, ledger.ErrTransferUnknown)
	h.mem.lost = false

	snap, ok, err := h.cp.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, snap.Halted)
	require.Equal(t, "100", snap.TotalDeposited)
	require.Len(t, h.store.records, 1)

	require.ErrorIs(t, h.svc.Withdraw(ctx, alice, uint256.NewInt(100)), ledger.ErrHalted)
	require.NoError(t, h.svc.Reconcile(ctx, owner, true))

	snap, _, err = h.cp.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.Halted)
	require.Equal(t, "0", snap.TotalDeposited)
	require.Len(t, h.store.records, 2)
	require.Equal(t, ledger.EventWithdrawn, h.store.records[1].EventName)
}

func TestNilPersistenceIsAllowed(t *testing.T) {
	mem := asset.NewMemory(pool)
	mem.Mint(alice, uint256.NewInt(10))
	l, err := ledger.New(ledger.Config{Pool: pool, Owner: owner}, mem, nil, ledger.NewManualClock(time.Unix(0, 0)), nil)
	require.NoError(t, err)

	svc := New(Config{}, l, nil, nil, nil, nil)
	require.NoError(t, svc.Deposit(context.Background(), alice, uint256.NewInt(10)))
	require.NoError(t, svc.Persist(context.Background()))
}

package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Asset moves the pooled token. A false result with a nil error is a failure.
type Asset interface {
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error)
}

// Config holds construction parameters for a Ledger.
type Config struct {
	// Pool is the address that holds deposits and reward reserves in the asset ledger.
	Pool common.Address
	// Owner is the operator allowed to change the rate and fund rewards.
	Owner common.Address
	// RewardRate is reward units per second for the whole pool.
	RewardRate *uint256.Int
}

// Ledger is a pooled-deposit reward ledger. Rewards accrue continuously at
// RewardRate and are split pro rata over principal using a reward-per-unit
// accumulator, so every operation is O(1) in the number of participants.
type Ledger struct {
	mu sync.RWMutex

	pool  common.Address
	owner common.Address

	acc      accumulator
	accounts map[common.Address]Account
	seq      uint64

	// halted is set when a transfer's outcome could not be observed; staged
	// holds the change that transfer belongs to.
	halted string
	staged *txn

	asset  Asset
	sink   EventSink
	clock  Clock
	logger *zap.Logger
}

// New builds a Ledger whose accumulator starts at the clock's current time.
func New(cfg Config, asset Asset, sink EventSink, clock Clock, logger *zap.Logger) (*Ledger, error) {
	if asset == nil {
		return nil, fmt.Errorf("asset ledger is nil")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	l := newLedger(cfg.Pool, cfg.Owner, asset, sink, clock, logger)
	if cfg.RewardRate != nil {
		l.acc.RewardRate = *cfg.RewardRate
	}
	l.acc.LastUpdate = unixSeconds(clock.Now())
	return l, nil
}

func newLedger(pool, owner common.Address, asset Asset, sink EventSink, clock Clock, logger *zap.Logger) *Ledger {
	if sink == nil {
		sink = discardSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		pool:     pool,
		owner:    owner,
		accounts: make(map[common.Address]Account),
		asset:    asset,
		sink:     sink,
		clock:    clock,
		logger:   logger,
	}
}

// txn is an operation's staged view of the ledger. Nothing in it is visible
// until commit.
type txn struct {
	now     uint64
	acc     accumulator
	caller  common.Address
	account *Account
	existed bool
	events  []Event
}

// begin settles the accumulator, and the caller's account when withAccount
// is set, into a staged copy.
func (l *Ledger) begin(caller common.Address, withAccount bool) (*txn, error) {
	tx := &txn{
		now:    unixSeconds(l.clock.Now()),
		acc:    l.acc,
		caller: caller,
	}
	if withAccount {
		acct, ok := l.accounts[caller]
		tx.account = &acct
		tx.existed = ok
	}
	if err := tx.acc.settle(tx.now, tx.account); err != nil {
		return nil, err
	}
	return tx, nil
}

func (tx *txn) emit(ev Event) {
	tx.events = append(tx.events, ev)
}

func (l *Ledger) commit(tx *txn) {
	l.acc = tx.acc
	// Accounts come into existence on first deposit; a claim by a stranger
	// must not leave an empty record behind.
	if tx.account != nil && (tx.existed || !tx.account.Principal.IsZero() || !tx.account.PendingRewards.IsZero()) {
		l.accounts[tx.caller] = *tx.account
	}
	for _, ev := range tx.events {
		l.seq++
		l.sink.Publish(Emission{Seq: l.seq, Pool: l.pool, Timestamp: tx.now, Event: ev})
	}
}

// Deposit pulls amount from caller into the pool and credits it as principal.
func (l *Ledger) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if isZero(amount) {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkRunning(); err != nil {
		return err
	}
	tx, err := l.begin(caller, true)
	if err != nil {
		return err
	}
	if _, overflow := tx.account.Principal.AddOverflow(&tx.account.Principal, amount); overflow {
		return fmt.Errorf("deposit principal: %w", ErrOverflow)
	}
	if _, overflow := tx.acc.TotalDeposited.AddOverflow(&tx.acc.TotalDeposited, amount); overflow {
		return fmt.Errorf("deposit total: %w", ErrOverflow)
	}

	tx.emit(Deposited{User: caller, Amount: amount.Clone()})
	ok, err := l.asset.TransferFrom(ctx, caller, l.pool, amount)
	if err := l.settleTransfer(tx, "pull deposit", ok, err); err != nil {
		return err
	}
	l.commit(tx)
	l.logger.Debug("deposit", zap.Stringer("user", caller), zap.String("amount", amount.Dec()))
	return nil
}

// Withdraw returns amount of principal to caller.
func (l *Ledger) Withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if isZero(amount) {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkRunning(); err != nil {
		return err
	}
	current := l.accounts[caller]
	if amount.Gt(&current.Principal) {
		return ErrInsufficientBalance
	}

	tx, err := l.begin(caller, true)
	if err != nil {
		return err
	}
	tx.debit(amount)

	tx.emit(Withdrawn{User: caller, Amount: amount.Clone()})
	ok, err := l.asset.Transfer(ctx, caller, amount)
	if err := l.settleTransfer(tx, "push withdrawal", ok, err); err != nil {
		return err
	}
	l.commit(tx)
	l.logger.Debug("withdraw", zap.Stringer("user", caller), zap.String("amount", amount.Dec()))
	return nil
}

// ClaimRewards pays out the caller's pending rewards and returns the amount
// paid. Nothing pending is not an error: the settlement is kept and zero is
// returned.
func (l *Ledger) ClaimRewards(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkRunning(); err != nil {
		return nil, err
	}
	tx, err := l.begin(caller, true)
	if err != nil {
		return nil, err
	}
	reward := tx.account.PendingRewards.Clone()
	if reward.IsZero() {
		l.commit(tx)
		return reward, nil
	}
	tx.account.PendingRewards.Clear()

	tx.emit(RewardPaid{User: caller, Amount: reward.Clone()})
	ok, err := l.asset.Transfer(ctx, caller, reward)
	if err := l.settleTransfer(tx, "pay reward", ok, err); err != nil {
		return nil, err
	}
	l.commit(tx)
	l.logger.Debug("reward paid", zap.Stringer("user", caller), zap.String("amount", reward.Dec()))
	return reward, nil
}

// Exit withdraws the caller's full principal and claims pending rewards.
// Both legs are paid in one transfer so the pair commits or fails together.
func (l *Ledger) Exit(ctx context.Context, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkRunning(); err != nil {
		return err
	}
	current := l.accounts[caller]
	if current.Principal.IsZero() {
		return ErrZeroAmount
	}

	tx, err := l.begin(caller, true)
	if err != nil {
		return err
	}
	principal := tx.account.Principal.Clone()
	tx.debit(principal)
	reward := tx.account.PendingRewards.Clone()
	tx.account.PendingRewards.Clear()

	payout, overflow := new(uint256.Int).AddOverflow(principal, reward)
	if overflow {
		return fmt.Errorf("exit payout: %w", ErrOverflow)
	}
	tx.emit(Withdrawn{User: caller, Amount: principal})
	if !reward.IsZero() {
		tx.emit(RewardPaid{User: caller, Amount: reward})
	}
	ok, err := l.asset.Transfer(ctx, caller, payout)
	if err := l.settleTransfer(tx, "pay exit", ok, err); err != nil {
		return err
	}
	l.commit(tx)
	l.logger.Debug("exit", zap.Stringer("user", caller), zap.String("principal", principal.Dec()), zap.String("reward", reward.Dec()))
	return nil
}

// SetRewardRate changes the pool-wide rate. Accrual up to now is frozen at
// the old rate first.
func (l *Ledger) SetRewardRate(caller common.Address, rate *uint256.Int) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if rate == nil {
		rate = new(uint256.Int)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkRunning(); err != nil {
		return err
	}
	tx, err := l.begin(caller, false)
	if err != nil {
		return err
	}
	old := tx.acc.RewardRate.Clone()
	tx.acc.RewardRate = *rate

	tx.emit(RewardRateUpdated{Old: old, New: rate.Clone()})
	l.commit(tx)
	l.logger.Info("reward rate updated", zap.String("old", old.Dec()), zap.String("new", rate.Dec()))
	return nil
}

// FundRewards pulls amount from the operator into the pool's reward reserve.
// Accounting state is untouched.
func (l *Ledger) FundRewards(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	if isZero(amount) {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkRunning(); err != nil {
		return err
	}
	tx := &txn{now: unixSeconds(l.clock.Now()), acc: l.acc, caller: caller}
	tx.emit(RewardsFunded{Amount: amount.Clone()})
	ok, err := l.asset.TransferFrom(ctx, caller, l.pool, amount)
	if err := l.settleTransfer(tx, "pull funding", ok, err); err != nil {
		return err
	}
	l.commit(tx)
	l.logger.Info("rewards funded", zap.String("amount", amount.Dec()))
	return nil
}

// debit is only called after the caller's principal was checked to cover amount.
func (tx *txn) debit(amount *uint256.Int) {
	tx.account.Principal.Sub(&tx.account.Principal, amount)
	tx.acc.TotalDeposited.Sub(&tx.acc.TotalDeposited, amount)
}

// Reconcile clears a halt. executed reports whether the transfer behind the
// halt took effect; if so its staged change is committed, otherwise dropped.
func (l *Ledger) Reconcile(caller common.Address, executed bool) error {
	if caller != l.owner {
		return ErrNotOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted == "" {
		return ErrNothingToReconcile
	}
	if executed {
		if l.staged == nil {
			return fmt.Errorf("staged change for %q was not retained; restore a corrected snapshot instead", l.halted)
		}
		l.commit(l.staged)
	}
	l.logger.Info("ledger reconciled", zap.String("halted", l.halted), zap.Bool("executed", executed))
	l.halted, l.staged = "", nil
	return nil
}

func (l *Ledger) checkRunning() error {
	if l.halted != "" {
		return fmt.Errorf("%w: %s", ErrHalted, l.halted)
	}
	return nil
}

// settleTransfer classifies a transfer result. An unobservable outcome halts
// the ledger and keeps tx for Reconcile.
func (l *Ledger) settleTransfer(tx *txn, what string, ok bool, err error) error {
	if err != nil && isOutcomeUnknown(err) {
		l.halted = fmt.Sprintf("%s for %s: %v", what, tx.caller.Hex(), err)
		l.staged = tx
		l.logger.Error("ledger halted", zap.String("op", what), zap.Stringer("caller", tx.caller), zap.Error(err))
		return fmt.Errorf("%s: %w: %w", what, ErrTransferUnknown, err)
	}
	if err := checkTransfer(ok, err); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func checkTransfer(ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if !ok {
		return ErrTransferFailed
	}
	return nil
}

func isZero(amount *uint256.Int) bool {
	return amount == nil || amount.IsZero()
}

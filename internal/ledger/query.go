package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Queries never mutate state; they evaluate the accumulator at the clock's
// current time.

func (l *Ledger) Pool() common.Address {
	return l.pool
}

func (l *Ledger) Owner() common.Address {
	return l.owner
}

// TotalDeposits returns the sum of all principal.
func (l *Ledger) TotalDeposits() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acc.TotalDeposited.Clone()
}

// RewardRate returns reward units per second for the whole pool.
func (l *Ledger) RewardRate() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acc.RewardRate.Clone()
}

// BalanceOf returns the principal deposited by account.
func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct := l.accounts[account]
	return acct.Principal.Clone()
}

// RewardPerUnit returns the current accumulator value.
func (l *Ledger) RewardPerUnit() (PerUnit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acc.rewardPerUnit(unixSeconds(l.clock.Now()))
}

// Earned returns settled plus unsettled rewards owed to account.
func (l *Ledger) Earned(account common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rpu, err := l.acc.rewardPerUnit(unixSeconds(l.clock.Now()))
	if err != nil {
		return nil, err
	}
	acct := l.accounts[account]
	return earned(&acct, rpu)
}

// Account returns a copy of the stored record for account as of its last
// settlement.
func (l *Ledger) Account(account common.Address) (Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[account]
	return acct, ok
}

// RewardPerUnitStored returns the accumulator as of the last settlement.
func (l *Ledger) RewardPerUnitStored() PerUnit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acc.RewardPerUnitStored
}

// LastUpdate returns the unix time of the last settlement.
func (l *Ledger) LastUpdate() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acc.LastUpdate
}

func (l *Ledger) AccountCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}

// Halted reports why the ledger stopped accepting operations, if it did.
func (l *Ledger) Halted() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.halted, l.halted != ""
}

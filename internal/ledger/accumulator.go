package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Account is a participant's ledger record. The zero value is a fresh account.
type Account struct {
	Principal         uint256.Int
	RewardPerUnitPaid PerUnit
	PendingRewards    uint256.Int
}

// accumulator is the pool-wide reward state. It is a value type so an
// operation can stage changes on a copy and commit them in one assignment.
type accumulator struct {
	TotalDeposited      uint256.Int
	RewardRate          uint256.Int
	LastUpdate          uint64
	RewardPerUnitStored PerUnit
}

// rewardPerUnit returns the accumulator value at now without mutating it.
// Nothing accrues while the pool is empty.
func (a *accumulator) rewardPerUnit(now uint64) (PerUnit, error) {
	if a.TotalDeposited.IsZero() {
		return a.RewardPerUnitStored, nil
	}
	var elapsed uint64
	if now > a.LastUpdate {
		elapsed = now - a.LastUpdate
	}
	if elapsed == 0 || a.RewardRate.IsZero() {
		return a.RewardPerUnitStored, nil
	}

	accrued, overflow := new(uint256.Int).MulOverflow(&a.RewardRate, uint256.NewInt(elapsed))
	if overflow {
		return PerUnit{}, fmt.Errorf("accrue %d seconds at rate %s: %w", elapsed, a.RewardRate.Dec(), ErrOverflow)
	}
	delta, err := PerUnitFromRatio(accrued, &a.TotalDeposited)
	if err != nil {
		return PerUnit{}, err
	}
	return a.RewardPerUnitStored.Add(delta)
}

// earned returns the rewards owed to acct if it were settled against rpu.
func earned(acct *Account, rpu PerUnit) (*uint256.Int, error) {
	owed, err := rpu.Sub(acct.RewardPerUnitPaid).Apply(&acct.Principal)
	if err != nil {
		return nil, err
	}
	if _, overflow := owed.AddOverflow(owed, &acct.PendingRewards); overflow {
		return nil, fmt.Errorf("earned: %w", ErrOverflow)
	}
	return owed, nil
}

// settle freezes accrual up to now into the accumulator and, when acct is
// non-nil, credits the account's share since its last checkpoint.
func (a *accumulator) settle(now uint64, acct *Account) error {
	rpu, err := a.rewardPerUnit(now)
	if err != nil {
		return err
	}
	a.RewardPerUnitStored = rpu
	if now > a.LastUpdate {
		a.LastUpdate = now
	}
	if acct == nil {
		return nil
	}

	owed, err := earned(acct, rpu)
	if err != nil {
		return err
	}
	acct.PendingRewards = *owed
	acct.RewardPerUnitPaid = rpu
	return nil
}

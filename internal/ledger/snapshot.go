package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Snapshot is the persistent form of a Ledger.
type Snapshot struct {
	Pool                string            `json:"pool"`
	Owner               string            `json:"owner"`
	RewardRate          string            `json:"reward_rate"`
	TotalDeposited      string            `json:"total_deposited"`
	RewardPerUnitStored PerUnit           `json:"reward_per_unit_stored"`
	LastUpdate          uint64            `json:"last_update"`
	EventSeq            uint64            `json:"event_seq"`
	Halted              string            `json:"halted,omitempty"`
	Accounts            []AccountSnapshot `json:"accounts"`
}

// AccountSnapshot is the persistent form of an Account.
type AccountSnapshot struct {
	Address           string  `json:"address"`
	Principal         string  `json:"principal"`
	RewardPerUnitPaid PerUnit `json:"reward_per_unit_paid"`
	PendingRewards    string  `json:"pending_rewards"`
}

// Snapshot captures the full ledger state. Accounts are ordered by address.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	addrs := make([]common.Address, 0, len(l.accounts))
	for addr := range l.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0
	})

	accounts := make([]AccountSnapshot, 0, len(addrs))
	for _, addr := range addrs {
		acct := l.accounts[addr]
		accounts = append(accounts, AccountSnapshot{
			Address:           addr.Hex(),
			Principal:         acct.Principal.Dec(),
			RewardPerUnitPaid: acct.RewardPerUnitPaid,
			PendingRewards:    acct.PendingRewards.Dec(),
		})
	}

	return Snapshot{
		Pool:                l.pool.Hex(),
		Owner:               l.owner.Hex(),
		RewardRate:          l.acc.RewardRate.Dec(),
		TotalDeposited:      l.acc.TotalDeposited.Dec(),
		RewardPerUnitStored: l.acc.RewardPerUnitStored,
		LastUpdate:          l.acc.LastUpdate,
		EventSeq:            l.seq,
		Halted:              l.halted,
		Accounts:            accounts,
	}
}

// Restore rebuilds a Ledger from a snapshot, rejecting snapshots whose
// principal does not sum to the total, that list an account twice, or whose
// accounts are ahead of the accumulator. A halted snapshot restores halted.
func Restore(snap Snapshot, asset Asset, sink EventSink, clock Clock, logger *zap.Logger) (*Ledger, error) {
	if asset == nil {
		return nil, fmt.Errorf("asset ledger is nil")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if !common.IsHexAddress(snap.Pool) || !common.IsHexAddress(snap.Owner) {
		return nil, fmt.Errorf("snapshot pool or owner address is invalid")
	}

	l := newLedger(common.HexToAddress(snap.Pool), common.HexToAddress(snap.Owner), asset, sink, clock, logger)
	if err := l.acc.RewardRate.SetFromDecimal(snap.RewardRate); err != nil {
		return nil, fmt.Errorf("parse reward rate: %w", err)
	}
	if err := l.acc.TotalDeposited.SetFromDecimal(snap.TotalDeposited); err != nil {
		return nil, fmt.Errorf("parse total deposited: %w", err)
	}
	l.acc.RewardPerUnitStored = snap.RewardPerUnitStored
	l.acc.LastUpdate = snap.LastUpdate
	l.seq = snap.EventSeq
	l.halted = snap.Halted

	sum := new(uint256.Int)
	for _, rec := range snap.Accounts {
		if !common.IsHexAddress(rec.Address) {
			return nil, fmt.Errorf("invalid account address: %s", rec.Address)
		}
		addr := common.HexToAddress(rec.Address)
		if _, dup := l.accounts[addr]; dup {
			return nil, fmt.Errorf("duplicate account %s", addr.Hex())
		}
		var acct Account
		if err := acct.Principal.SetFromDecimal(rec.Principal); err != nil {
			return nil, fmt.Errorf("parse principal of %s: %w", rec.Address, err)
		}
		if err := acct.PendingRewards.SetFromDecimal(rec.PendingRewards); err != nil {
			return nil, fmt.Errorf("parse pending rewards of %s: %w", rec.Address, err)
		}
		acct.RewardPerUnitPaid = rec.RewardPerUnitPaid
		if acct.RewardPerUnitPaid.Cmp(l.acc.RewardPerUnitStored) > 0 {
			return nil, fmt.Errorf("account %s paid per-unit %s exceeds stored %s", rec.Address, acct.RewardPerUnitPaid, l.acc.RewardPerUnitStored)
		}
		if _, overflow := sum.AddOverflow(sum, &acct.Principal); overflow {
			return nil, fmt.Errorf("sum principal: %w", ErrOverflow)
		}
		l.accounts[addr] = acct
	}
	if !sum.Eq(&l.acc.TotalDeposited) {
		return nil, fmt.Errorf("principal sum %s does not match total deposited %s", sum.Dec(), l.acc.TotalDeposited.Dec())
	}

	return l, nil
}

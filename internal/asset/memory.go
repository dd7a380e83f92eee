package asset

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Memory is an in-process token ledger. Transfer sends from Holder; a
// transfer that the sender cannot cover returns false and moves nothing.
type Memory struct {
	Holder common.Address

	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
}

func NewMemory(holder common.Address) *Memory {
	return &Memory{Holder: holder, balances: make(map[common.Address]*uint256.Int)}
}

// Mint credits amount to account out of thin air.
func (m *Memory) Mint(account common.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balanceLocked(account)
	bal.Add(bal, amount)
}

// BalanceOf returns the token balance of account.
func (m *Memory) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(account).Clone(), nil
}

func (m *Memory) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	return m.TransferFrom(ctx, m.Holder, to, amount)
}

func (m *Memory) TransferFrom(_ context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.balanceLocked(from)
	if amount.Gt(src) {
		return false, nil
	}
	src.Sub(src, amount)
	dst := m.balanceLocked(to)
	dst.Add(dst, amount)
	return true, nil
}

func (m *Memory) balanceLocked(account common.Address) *uint256.Int {
	bal, ok := m.balances[account]
	if !ok {
		bal = new(uint256.Int)
		m.balances[account] = bal
	}
	return bal
}

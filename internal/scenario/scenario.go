package scenario

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"rewardLedger/internal/ledger"
)

// Scenario is a scripted sequence of ledger operations against an
// in-memory asset and a manual clock.
type Scenario struct {
	Name     string            `yaml:"name"`
	Owner    string            `yaml:"owner"`
	Pool     string            `yaml:"pool"`
	Rate     string            `yaml:"rate"`
	Start    int64             `yaml:"start"`
	Accounts map[string]string `yaml:"accounts"`
	Mint     map[string]string `yaml:"mint"`
	Steps    []Step            `yaml:"steps"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op      string  `yaml:"op"`
	Caller  string  `yaml:"caller"`
	Amount  string  `yaml:"amount"`
	Rate    string  `yaml:"rate"`
	Seconds uint64  `yaml:"seconds"`
	Paid    string  `yaml:"paid"`
	Error   string  `yaml:"error"`
	Expect  *Expect `yaml:"expect"`
}

// Expect lists assertions checked by an expect step. Empty fields are skipped.
type Expect struct {
	Account      string `yaml:"account"`
	Earned       string `yaml:"earned"`
	Balance      string `yaml:"balance"`
	Pending      string `yaml:"pending"`
	AssetBalance string `yaml:"asset-balance"`
	Total        string `yaml:"total"`
	Rate         string `yaml:"rate"`
	Same         string `yaml:"same-earned-as"`
}

const (
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
	OpClaim    = "claim"
	OpExit     = "exit"
	OpSetRate  = "set-rate"
	OpFund     = "fund"
	OpAdvance  = "advance"
	OpExpect   = "expect"
)

var errorKinds = map[string]error{
	"ZeroAmount":          ledger.ErrZeroAmount,
	"InsufficientBalance": ledger.ErrInsufficientBalance,
	"TransferFailed":      ledger.ErrTransferFailed,
	"NotOwner":            ledger.ErrNotOwner,
	"Overflow":            ledger.ErrOverflow,
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if _, err := ledger.ParseAddress(sc.Owner); err != nil {
		return fmt.Errorf("scenario owner: %w", err)
	}
	if _, err := ledger.ParseAddress(sc.Pool); err != nil {
		return fmt.Errorf("scenario pool: %w", err)
	}
	for name, addr := range sc.Accounts {
		if _, err := ledger.ParseAddress(addr); err != nil {
			return fmt.Errorf("scenario account %s: %w", name, err)
		}
	}
	for i, step := range sc.Steps {
		switch step.Op {
		case OpDeposit, OpWithdraw, OpFund:
			if step.Amount == "" {
				return fmt.Errorf("step %d (%s): amount is required", i+1, step.Op)
			}
		case OpSetRate:
			if step.Rate == "" {
				return fmt.Errorf("step %d (%s): rate is required", i+1, step.Op)
			}
		case OpClaim, OpExit, OpAdvance:
		case OpExpect:
			if step.Expect == nil {
				return fmt.Errorf("step %d (%s): expect block is required", i+1, step.Op)
			}
		default:
			return fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
		if step.Error != "" {
			if _, ok := errorKinds[step.Error]; !ok {
				return fmt.Errorf("step %d: unknown error kind %q", i+1, step.Error)
			}
		}
	}
	return nil
}

// resolve accepts an account name, "owner", "pool" or a hex address.
func (sc *Scenario) resolve(ref string) (common.Address, error) {
	ref = strings.TrimSpace(ref)
	switch ref {
	case "owner":
		return ledger.ParseAddress(sc.Owner)
	case "pool":
		return ledger.ParseAddress(sc.Pool)
	}
	if addr, ok := sc.Accounts[ref]; ok {
		return ledger.ParseAddress(addr)
	}
	return ledger.ParseAddress(ref)
}

package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rewardLedger/internal/asset"
	"rewardLedger/internal/checkpoint"
	"rewardLedger/internal/events"
	"rewardLedger/internal/ledger"
	"rewardLedger/internal/service"
	"rewardLedger/internal/storage"
)

// Result summarises a completed run.
type Result struct {
	Steps    int
	Snapshot ledger.Snapshot
}

// Runner executes scenarios. Storage and Checkpoint are optional.
type Runner struct {
	Storage    storage.Storage
	Checkpoint checkpoint.Store
	Logger     *zap.Logger
}

type run struct {
	sc    *Scenario
	svc   *service.Service
	mem   *asset.Memory
	clock *ledger.ManualClock
}

// Run executes every step in order and stops at the first step whose outcome
// does not match its expectation.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := sc.resolve("pool")
	if err != nil {
		return nil, err
	}
	owner, err := sc.resolve("owner")
	if err != nil {
		return nil, err
	}
	rate := new(uint256.Int)
	if sc.Rate != "" {
		if rate, err = ledger.ParseAmount(sc.Rate); err != nil {
			return nil, fmt.Errorf("scenario rate: %w", err)
		}
	}

	mem := asset.NewMemory(pool)
	for ref, amount := range sc.Mint {
		addr, err := sc.resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("mint: %w", err)
		}
		value, err := ledger.ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("mint %s: %w", ref, err)
		}
		mem.Mint(addr, value)
	}

	clock := ledger.NewManualClock(time.Unix(sc.Start, 0))
	journal := events.NewJournal(logger)
	l, err := ledger.New(ledger.Config{Pool: pool, Owner: owner, RewardRate: rate}, mem, journal, clock, logger)
	if err != nil {
		return nil, err
	}
	svc := service.New(service.Config{}, l, journal, r.Storage, r.Checkpoint, logger)

	rn := &run{sc: sc, svc: svc, mem: mem, clock: clock}
	for i, step := range sc.Steps {
		if err := rn.step(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}
	if err := svc.Persist(ctx); err != nil {
		return nil, err
	}

	logger.Info("scenario complete",
		zap.String("name", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.String("total_deposited", l.TotalDeposits().Dec()),
	)
	return &Result{Steps: len(sc.Steps), Snapshot: l.Snapshot()}, nil
}

func (rn *run) step(ctx context.Context, step Step) error {
	switch step.Op {
	case OpAdvance:
		rn.clock.Advance(time.Duration(step.Seconds) * time.Second)
		return nil
	case OpExpect:
		return rn.expect(ctx, step.Expect)
	}

	caller, err := rn.sc.resolve(step.Caller)
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}

	var opErr error
	switch step.Op {
	case OpDeposit, OpWithdraw, OpFund:
		amount, err := ledger.ParseAmount(step.Amount)
		if err != nil {
			return err
		}
		switch step.Op {
		case OpDeposit:
			opErr = rn.svc.Deposit(ctx, caller, amount)
		case OpWithdraw:
			opErr = rn.svc.Withdraw(ctx, caller, amount)
		default:
			opErr = rn.svc.FundRewards(ctx, caller, amount)
		}
	case OpSetRate:
		rate, err := ledger.ParseAmount(step.Rate)
		if err != nil {
			return err
		}
		opErr = rn.svc.SetRewardRate(ctx, caller, rate)
	case OpClaim:
		var paid *uint256.Int
		paid, opErr = rn.svc.ClaimRewards(ctx, caller)
		if opErr == nil && step.Paid != "" {
			if err := compare("paid", paid, step.Paid); err != nil {
				return err
			}
		}
	case OpExit:
		opErr = rn.svc.Exit(ctx, caller)
	}

	return checkOutcome(opErr, step.Error)
}

func checkOutcome(got error, want string) error {
	if want == "" {
		return got
	}
	target := errorKinds[want]
	if got == nil {
		return fmt.Errorf("expected %s, operation succeeded", want)
	}
	if !errors.Is(got, target) {
		return fmt.Errorf("expected %s, got: %w", want, got)
	}
	return nil
}

func (rn *run) expect(ctx context.Context, exp *Expect) error {
	l := rn.svc.Ledger()
	if exp.Total != "" {
		if err := compare("total", l.TotalDeposits(), exp.Total); err != nil {
			return err
		}
	}
	if exp.Rate != "" {
		if err := compare("rate", l.RewardRate(), exp.Rate); err != nil {
			return err
		}
	}
	if exp.Account == "" {
		return nil
	}

	addr, err := rn.sc.resolve(exp.Account)
	if err != nil {
		return fmt.Errorf("expect account: %w", err)
	}
	earned, err := l.Earned(addr)
	if err != nil {
		return err
	}
	if exp.Earned != "" {
		if err := compare("earned", earned, exp.Earned); err != nil {
			return err
		}
	}
	if exp.Same != "" {
		other, err := rn.sc.resolve(exp.Same)
		if err != nil {
			return fmt.Errorf("expect same-earned-as: %w", err)
		}
		otherEarned, err := l.Earned(other)
		if err != nil {
			return err
		}
		if !earned.Eq(otherEarned) {
			return fmt.Errorf("earned %s != earned of %s %s", earned.Dec(), exp.Same, otherEarned.Dec())
		}
	}
	if exp.Balance != "" {
		if err := compare("balance", l.BalanceOf(addr), exp.Balance); err != nil {
			return err
		}
	}
	if exp.Pending != "" {
		acct, _ := l.Account(addr)
		if err := compare("pending", &acct.PendingRewards, exp.Pending); err != nil {
			return err
		}
	}
	if exp.AssetBalance != "" {
		bal, err := rn.mem.BalanceOf(ctx, addr)
		if err != nil {
			return err
		}
		if err := compare("asset-balance", bal, exp.AssetBalance); err != nil {
			return err
		}
	}
	return nil
}

func compare(label string, got *uint256.Int, want string) error {
	expected, err := ledger.ParseAmount(want)
	if err != nil {
		return fmt.Errorf("%s expectation: %w", label, err)
	}
	if !got.Eq(expected) {
		return fmt.Errorf("%s: got %s, want %s", label, got.Dec(), expected.Dec())
	}
	return nil
}

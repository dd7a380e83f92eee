package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rewardLedger/internal/chain"
	"rewardLedger/internal/checkpoint"
	"rewardLedger/internal/events"
	"rewardLedger/internal/ledger"
	"rewardLedger/internal/metrics"
	"rewardLedger/internal/model"
	"rewardLedger/internal/storage"
)

// Config controls persistence retries.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Service runs ledger operations and persists their effects. Events go to
// storage and the snapshot to the checkpoint store after every successful
// operation; either may be nil.
type Service struct {
	ledger     *ledger.Ledger
	journal    *events.Journal
	storage    storage.Storage
	checkpoint checkpoint.Store
	cfg        Config
	logger     *zap.Logger

	persistMu sync.Mutex
	unwritten []model.EventRecord
}

func New(cfg Config, l *ledger.Ledger, journal *events.Journal, store storage.Storage, cp checkpoint.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledger:     l,
		journal:    journal,
		storage:    store,
		checkpoint: cp,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Service) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return s.run(ctx, "deposit", caller, func() error {
		return s.ledger.Deposit(ctx, caller, amount)
	})
}

func (s *Service) Withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return s.run(ctx, "withdraw", caller, func() error {
		return s.ledger.Withdraw(ctx, caller, amount)
	})
}

func (s *Service) ClaimRewards(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := s.run(ctx, "claim", caller, func() error {
		var err error
		paid, err = s.ledger.ClaimRewards(ctx, caller)
		return err
	})
	return paid, err
}

func (s *Service) Exit(ctx context.Context, caller common.Address) error {
	return s.run(ctx, "exit", caller, func() error {
		return s.ledger.Exit(ctx, caller)
	})
}

func (s *Service) SetRewardRate(ctx context.Context, caller common.Address, rate *uint256.Int) error {
	return s.run(ctx, "set_rate", caller, func() error {
		return s.ledger.SetRewardRate(caller, rate)
	})
}

func (s *Service) FundRewards(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return s.run(ctx, "fund", caller, func() error {
		return s.ledger.FundRewards(ctx, caller, amount)
	})
}

// Reconcile clears a halt after the operator has checked the transfer on-chain.
func (s *Service) Reconcile(ctx context.Context, caller common.Address, executed bool) error {
	return s.run(ctx, "reconcile", caller, func() error {
		return s.ledger.Reconcile(caller, executed)
	})
}

func (s *Service) run(ctx context.Context, op string, caller common.Address, fn func() error) error {
	start := time.Now()
	err := fn()
	kind := ledger.Kind(err)
	metrics.RecordOperation(op, time.Since(start), kind)
	if errors.Is(err, ledger.ErrTransferUnknown) {
		// The halt must survive a restart, even when the caller has gone away.
		s.logger.Error("ledger halted", zap.String("op", op), zap.Stringer("caller", caller), zap.Error(err))
		s.RefreshGauges()
		if perr := s.Persist(context.WithoutCancel(ctx)); perr != nil {
			s.logger.Error("persist halted ledger", zap.String("op", op), zap.Error(perr))
		}
		return err
	}
	if err != nil {
		s.logger.Warn("operation failed",
			zap.String("op", op),
			zap.Stringer("caller", caller),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return err
	}

	// The ledger has committed; a persistence failure is logged and retried
	// on the next operation instead of being reported as an operation failure.
	if perr := s.Persist(ctx); perr != nil {
		s.logger.Error("persist after operation", zap.String("op", op), zap.Error(perr))
	}
	return nil
}

// Persist writes buffered events and the current snapshot. Events that fail
// to write stay buffered for the next call.
func (s *Service) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.journal != nil {
		s.unwritten = append(s.unwritten, s.journal.Drain()...)
	}
	if s.storage != nil && len(s.unwritten) > 0 {
		start := time.Now()
		err := chain.WithRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			return s.storage.PutEventBatch(ctx, s.unwritten)
		})
		metrics.RecordPersistLatency(time.Since(start), "events", err != nil)
		if err != nil {
			return fmt.Errorf("write %d events: %w", len(s.unwritten), err)
		}
		metrics.RecordEventsWritten(len(s.unwritten))
		s.logger.Debug("events written", zap.Int("count", len(s.unwritten)))
	}
	s.unwritten = nil

	if s.checkpoint != nil {
		start := time.Now()
		err := s.checkpoint.Save(ctx, s.ledger.Snapshot())
		metrics.RecordPersistLatency(time.Since(start), "snapshot", err != nil)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	return nil
}

// RefreshGauges publishes the pool totals to the metrics gauges.
func (s *Service) RefreshGauges() {
	_, halted := s.ledger.Halted()
	metrics.RecordPoolState(s.ledger.TotalDeposits(), s.ledger.RewardRate(), s.ledger.AccountCount(), halted)
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rewardLedger/internal/config"
	"rewardLedger/internal/events"
	"rewardLedger/internal/ledger"
	"rewardLedger/internal/model"
	"rewardLedger/internal/storage"
)

func runEvents(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEvents(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var pool string
	if cfg.Pool != "" {
		addr, err := ledger.ParseAddress(cfg.Pool)
		if err != nil {
			return err
		}
		pool = addr.Hex()
	}

	var total, shown int
	err = storage.ScanEvents(cfg.In, func(rec model.EventRecord) error {
		total++
		if pool != "" && !strings.EqualFold(rec.Pool, pool) {
			return nil
		}
		em, err := events.Decode(rec)
		if err != nil {
			return fmt.Errorf("decode seq %d: %w", rec.Seq, err)
		}
		shown++
		logger.Info(em.Event.EventName(), append([]zap.Field{
			zap.Uint64("seq", em.Seq),
			zap.Stringer("pool", em.Pool),
			zap.Uint64("ts", em.Timestamp),
		}, eventFields(em.Event)...)...)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("events done", zap.Int("total", total), zap.Int("shown", shown))
	return nil
}

func eventFields(ev ledger.Event) []zap.Field {
	switch e := ev.(type) {
	case ledger.Deposited:
		return []zap.Field{zap.Stringer("user", e.User), zap.String("amount", e.Amount.Dec())}
	case ledger.Withdrawn:
		return []zap.Field{zap.Stringer("user", e.User), zap.String("amount", e.Amount.Dec())}
	case ledger.RewardPaid:
		return []zap.Field{zap.Stringer("user", e.User), zap.String("reward", e.Amount.Dec())}
	case ledger.RewardRateUpdated:
		return []zap.Field{zap.String("old_rate", e.Old.Dec()), zap.String("new_rate", e.New.Dec())}
	case ledger.RewardsFunded:
		return []zap.Field{zap.String("amount", e.Amount.Dec())}
	default:
		return nil
	}
}

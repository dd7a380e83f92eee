package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rewardLedger/internal/checkpoint"
	"rewardLedger/internal/config"
	"rewardLedger/internal/scenario"
	"rewardLedger/internal/storage"
	"rewardLedger/internal/storage/postgres"
)

func runScenario(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRun(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}
	start, ok, err := config.ParseTimestamp(cfg.Start)
	if err != nil {
		return fmt.Errorf("parse start: %w", err)
	}
	if ok {
		sc.Start = start
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &scenario.Runner{Logger: logger}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		runner.Storage = store
		runner.Checkpoint = &checkpoint.DBStore{Store: store, Name: cfg.StateName}
	}
	if cfg.Out != "" {
		runner.Storage = storage.NewJsonlStorage(cfg.Out)
	}
	if cfg.StateFile != "" {
		runner.Checkpoint = &checkpoint.FileStore{Path: cfg.StateFile}
	}

	logger.Info("scenario start",
		zap.String("scenario", cfg.Scenario),
		zap.String("name", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.String("out", cfg.Out),
		zap.String("state_file", cfg.StateFile),
	)

	res, err := runner.Run(ctx, sc)
	if err != nil {
		return err
	}

	logger.Info("scenario passed",
		zap.Int("steps", res.Steps),
		zap.Uint64("events", res.Snapshot.EventSeq),
		zap.Int("accounts", len(res.Snapshot.Accounts)),
		zap.String("reward_per_unit_stored", res.Snapshot.RewardPerUnitStored.String()),
	)
	return nil
}

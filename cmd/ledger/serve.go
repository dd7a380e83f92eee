package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rewardLedger/internal/api"
	"rewardLedger/internal/asset"
	"rewardLedger/internal/chain"
	"rewardLedger/internal/checkpoint"
	"rewardLedger/internal/config"
	"rewardLedger/internal/events"
	"rewardLedger/internal/ledger"
	"rewardLedger/internal/metrics"
	"rewardLedger/internal/service"
	"rewardLedger/internal/storage"
	"rewardLedger/internal/storage/postgres"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 2 * time.Minute
	serverIdleTimeout  = 60 * time.Second
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	owner, err := ledger.ParseAddress(cfg.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	rate, err := ledger.ParseAmount(cfg.Rate)
	if err != nil {
		return fmt.Errorf("rate: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		assetLedger ledger.Asset
		pool        common.Address
	)
	switch cfg.Asset {
	case "erc20":
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		token, err := ledger.ParseAddress(cfg.Token)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		erc20, err := asset.NewERC20(ctx, asset.ERC20Config{
			Token:          token,
			PrivateKey:     cfg.PrivateKey,
			MaxRetries:     cfg.MaxRetries,
			RetryBackoff:   cfg.RetryBackoff,
			ReceiptTimeout: cfg.ReceiptTimeout,
		}, chainClient, logger)
		if err != nil {
			return err
		}
		meta, err := erc20.Meta(ctx)
		if err != nil {
			return fmt.Errorf("token meta: %w", err)
		}
		logger.Info("erc20 asset", zap.String("token", meta.Address), zap.String("symbol", meta.Symbol), zap.Uint8("decimals", meta.Decimals))
		assetLedger, pool = erc20, erc20.Address()
	default:
		pool, err = ledger.ParseAddress(cfg.Pool)
		if err != nil {
			return fmt.Errorf("pool: %w", err)
		}
		mem := asset.NewMemory(pool)
		if err := mintBalances(mem, cfg.Mint); err != nil {
			return err
		}
		assetLedger = mem
	}

	var (
		store storage.Storage
		cp    checkpoint.Store
	)
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pg
		cp = &checkpoint.DBStore{Store: pg, Name: cfg.StateName}
	} else {
		if cfg.EventsOut != "" {
			store = storage.NewJsonlStorage(cfg.EventsOut)
		}
		if cfg.StateFile != "" {
			cp = &checkpoint.FileStore{Path: cfg.StateFile}
		}
	}

	journal := events.NewJournal(logger)
	l, err := openLedger(ctx, cp, ledger.Config{Pool: pool, Owner: owner, RewardRate: rate}, assetLedger, journal, logger)
	if err != nil {
		return err
	}

	svc := service.New(service.Config{MaxRetries: cfg.MaxRetries, RetryBackoff: cfg.RetryBackoff}, l, journal, store, cp, logger)

	metrics.Init()
	svc.RefreshGauges()
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.GaugeSchedule, svc.RefreshGauges); err != nil {
		return fmt.Errorf("register gauge refresh: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.NewServer(svc, logger),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger serve start",
			zap.String("listen", cfg.Listen),
			zap.String("asset", cfg.Asset),
			zap.Stringer("pool", l.Pool()),
			zap.Stringer("owner", l.Owner()),
			zap.String("rate", l.RewardRate().Dec()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := svc.Persist(shutdownCtx); err != nil {
		return fmt.Errorf("final persist: %w", err)
	}
	logger.Info("ledger serve stopped")
	return nil
}

// openLedger restores the last snapshot when one exists and starts fresh otherwise.
func openLedger(ctx context.Context, cp checkpoint.Store, cfg ledger.Config, assetLedger ledger.Asset, sink ledger.EventSink, logger *zap.Logger) (*ledger.Ledger, error) {
	if cp != nil {
		snap, ok, err := cp.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if ok {
			if !strings.EqualFold(snap.Pool, cfg.Pool.Hex()) {
				return nil, fmt.Errorf("snapshot pool %s does not match configured pool %s", snap.Pool, cfg.Pool.Hex())
			}
			l, err := ledger.Restore(snap, assetLedger, sink, ledger.SystemClock{}, logger)
			if err != nil {
				return nil, fmt.Errorf("restore snapshot: %w", err)
			}
			logger.Info("ledger restored",
				zap.Uint64("event_seq", snap.EventSeq),
				zap.Int("accounts", len(snap.Accounts)),
				zap.Uint64("last_update", snap.LastUpdate),
			)
			return l, nil
		}
	}
	return ledger.New(cfg, assetLedger, sink, ledger.SystemClock{}, logger)
}

func mintBalances(mem *asset.Memory, entries []string) error {
	for _, entry := range entries {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid mint entry %q (want address=amount)", entry)
		}
		addr, err := ledger.ParseAddress(parts[0])
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		amount, err := ledger.ParseAmount(parts[1])
		if err != nil {
			return fmt.Errorf("mint %s: %w", parts[0], err)
		}
		mem.Mint(addr, amount)
	}
	return nil
}

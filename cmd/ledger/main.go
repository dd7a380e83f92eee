package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ledger",
		Short:        "Pooled-deposit reward ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario file against an in-memory asset",
		RunE:  runScenario,
	}

	runCmd.Flags().String("scenario", "", "scenario YAML path")
	runCmd.Flags().String("out", "", "optional events JSONL output path")
	runCmd.Flags().String("state-file", "", "optional snapshot file path")
	runCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and snapshot")
	runCmd.Flags().String("state-name", "scenario", "snapshot row name when using Postgres")
	runCmd.Flags().String("start", "", "override scenario start time (unix seconds or RFC3339)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("asset", "memory", "asset backend (memory, erc20)")
	serveCmd.Flags().String("pool", "", "pool address (memory asset only; erc20 uses the key address)")
	serveCmd.Flags().String("owner", "", "operator address")
	serveCmd.Flags().String("rate", "0", "initial reward rate per second")
	serveCmd.Flags().StringSlice("mint", nil, "memory asset balances as address=amount (comma-separated)")
	serveCmd.Flags().String("rpc", "", "RPC URL (erc20 asset)")
	serveCmd.Flags().String("token", "", "ERC20 token address (erc20 asset)")
	serveCmd.Flags().String("private-key", "", "pool signing key in hex (erc20 asset); prefer LEDGER_PRIVATE_KEY")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for events and snapshot")
	serveCmd.Flags().String("state-file", "", "snapshot file path (ignored when pg-dsn is set)")
	serveCmd.Flags().String("state-name", "ledger", "snapshot row name in Postgres")
	serveCmd.Flags().String("events-out", "", "events JSONL path (ignored when pg-dsn is set)")
	serveCmd.Flags().String("gauge-schedule", "@every 15s", "cron schedule for pool gauge refresh")
	serveCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().Duration("receipt-timeout", 2*time.Minute, "how long to wait for a transfer receipt after broadcast (erc20 asset)")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Decode and print stored ledger events",
		RunE:  runEvents,
	}

	eventsCmd.Flags().String("in", "", "input events JSONL")
	eventsCmd.Flags().String("pool", "", "only show events of this pool")
	eventsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(eventsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

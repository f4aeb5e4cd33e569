package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/engine"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/metrics"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/notify"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/reconciler"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/server"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/sol"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/store"
	"github.com/SaitamaCoderVN/d2d-treasury/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "address for the treasury HTTP API")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address for prometheus metrics (empty disables)")
	corsOriginsFlag := flag.StringSlice("cors-allowed-origins", nil, "allowed CORS origins for the HTTP API (default *)")

	// Postgres configuration
	postgresHostFlag := flag.String("postgres-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	postgresPortFlag := flag.String("postgres-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	postgresDatabaseFlag := flag.String("postgres-database", "d2d_treasury", "PostgreSQL database name (or set POSTGRES_DATABASE env var)")
	postgresUsernameFlag := flag.String("postgres-username", "d2d", "PostgreSQL username (or set POSTGRES_USERNAME env var)")
	postgresPasswordFlag := flag.String("postgres-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	postgresSSLModeFlag := flag.String("postgres-sslmode", "disable", "PostgreSQL sslmode (or set POSTGRES_SSLMODE env var)")
	migrateFlag := flag.Bool("migrations-enable", false, "run database migrations on startup")

	// Solana configuration
	rpcURLFlag := flag.String("solana-rpc-url", "", "Solana JSON-RPC endpoint for vault balance reads (or set SOLANA_RPC_URL env var; empty disables chain reads)")
	programIDFlag := flag.String("program-id", "", "treasury program ID the vault addresses are derived from (or set TREASURY_PROGRAM_ID env var)")

	// Slack configuration
	slackTokenFlag := flag.String("slack-token", "", "Slack bot token for operational alerts (or set SLACK_TOKEN env var; empty disables alerts)")
	slackChannelFlag := flag.String("slack-channel", "", "Slack channel for operational alerts (or set SLACK_CHANNEL env var)")

	// Background loops
	sweepIntervalFlag := flag.Duration("sweep-interval", time.Minute, "interval between expired-subscription sweeps")
	reconcileIntervalFlag := flag.Duration("reconcile-interval", time.Minute, "interval between vault reconciliation scans")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for in-flight requests during graceful shutdown")

	flag.Parse()

	// A .env file is optional; real environment variables win over its values.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if env := os.Getenv("POSTGRES_HOST"); env != "" {
		*postgresHostFlag = env
	}
	if env := os.Getenv("POSTGRES_PORT"); env != "" {
		*postgresPortFlag = env
	}
	if env := os.Getenv("POSTGRES_DATABASE"); env != "" {
		*postgresDatabaseFlag = env
	}
	if env := os.Getenv("POSTGRES_USERNAME"); env != "" {
		*postgresUsernameFlag = env
	}
	if env := os.Getenv("POSTGRES_PASSWORD"); env != "" {
		*postgresPasswordFlag = env
	}
	if env := os.Getenv("POSTGRES_SSLMODE"); env != "" {
		*postgresSSLModeFlag = env
	}
	if env := os.Getenv("SOLANA_RPC_URL"); env != "" {
		*rpcURLFlag = env
	}
	if env := os.Getenv("TREASURY_PROGRAM_ID"); env != "" {
		*programIDFlag = env
	}
	if env := os.Getenv("SLACK_TOKEN"); env != "" {
		*slackTokenFlag = env
	}
	if env := os.Getenv("SLACK_CHANNEL"); env != "" {
		*slackChannelFlag = env
	}

	log.Info("treasuryd: starting", "version", version, "commit", commit, "date", date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start metrics server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("treasuryd: failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("treasuryd: prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("treasuryd: failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	pool, err := store.Connect(ctx, log, store.PostgresConfig{
		Host:          *postgresHostFlag,
		Port:          *postgresPortFlag,
		Database:      *postgresDatabaseFlag,
		Username:      *postgresUsernameFlag,
		Password:      *postgresPasswordFlag,
		SSLMode:       *postgresSSLModeFlag,
		RunMigrations: *migrateFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	st, err := store.New(store.Config{
		Logger: log,
		Pool:   pool,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	state, lastSeq, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	// Chain reads are optional: without an RPC endpoint the sync instruction
	// is refused and the reconciler stays off, but the ledger still serves.
	var balances sol.BalanceReader
	var vaults sol.VaultSet
	if *rpcURLFlag != "" {
		if *programIDFlag == "" {
			return fmt.Errorf("--program-id is required when --solana-rpc-url is set")
		}
		programID, err := solana.PublicKeyFromBase58(*programIDFlag)
		if err != nil {
			return fmt.Errorf("failed to parse program id: %w", err)
		}
		vaults, err = sol.DeriveVaults(programID)
		if err != nil {
			return fmt.Errorf("failed to derive vault addresses: %w", err)
		}
		balances = sol.NewReader(*rpcURLFlag)
		log.Info("treasuryd: chain reads enabled",
			"rpc_url", *rpcURLFlag,
			"program_id", programID,
			"treasury_vault", vaults.Treasury,
			"reward_vault", vaults.Reward,
			"platform_vault", vaults.Platform)
	} else {
		log.Warn("treasuryd: no solana rpc url configured, chain reads disabled")
	}

	var notifier notify.Notifier = notify.Noop{}
	if *slackTokenFlag != "" && *slackChannelFlag != "" {
		notifier = notify.NewSlack(*slackTokenFlag, *slackChannelFlag, log)
		log.Info("treasuryd: slack alerts enabled", "channel", *slackChannelFlag)
	} else {
		log.Warn("treasuryd: no slack token configured, alerts disabled")
	}

	eng, err := engine.New(engine.Config{
		Logger:   log,
		Store:    st,
		Notifier: notifier,
		State:    state,
		LastSeq:  lastSeq,
		Balances: balances,
		Vaults:   vaults,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	sweeper, err := engine.NewSweeper(engine.SweeperConfig{
		Logger:   log,
		Engine:   eng,
		Interval: *sweepIntervalFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}

	// The readiness checker stays a nil interface when the reconciler is off
	// so /readyz does not gate on a component that never runs.
	var ready server.ReadyChecker
	var rec *reconciler.Reconciler
	if balances != nil {
		rec, err = reconciler.New(reconciler.Config{
			Logger:   log,
			Balances: balances,
			Vaults:   vaults,
			Pool:     eng,
			Notifier: notifier,
			Interval: *reconcileIntervalFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create reconciler: %w", err)
		}
		ready = rec
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		Engine:         eng,
		Events:         st,
		Pinger:         st,
		Ready:          ready,
		Vaults:         vaults,
		AllowedOrigins: *corsOriginsFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if rec != nil {
		rec.Start(gctx)
	}
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("treasuryd: shutdown complete")
	return nil
}

// Package main is the veridoc operator CLI. It wires the store and the
// lifecycle engine from configuration and exposes export, restore, sweep,
// and state-seeding commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/capability"
	"github.com/veridoc/veridoc/internal/config"
	"github.com/veridoc/veridoc/internal/lifecycle"
	"github.com/veridoc/veridoc/internal/observability"
	"github.com/veridoc/veridoc/internal/scheduler"
	"github.com/veridoc/veridoc/internal/store"
	"github.com/veridoc/veridoc/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "veridoc",
		Short:         "Controlled-document lifecycle operations",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	root.AddCommand(
		newExportCmd(&configPath),
		newRestoreCmd(&configPath),
		newSweepCmd(&configPath),
		newStatesCmd(&configPath),
	)
	return root
}

// app holds the wired dependencies shared by all subcommands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	store   store.DocumentStore
	machine *lifecycle.Machine
	sweeper *scheduler.Sweeper
	audit   audit.Recorder

	closers []func()
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if cfg.Observability.Tracing.Enabled {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "veridoc", version)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("tracing: %w", err)
		}
		a.closers = append(a.closers, func() { _ = shutdown(context.Background()) })
	}

	a.metrics = observability.InitMetrics(prometheus.NewRegistry())

	st, closeStore, err := buildStore(ctx, cfg.Store, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	a.audit = audit.NewZapRecorder(logger)

	caps, err := buildCapabilityResolver(cfg.Capability)
	if err != nil {
		a.Close()
		return nil, err
	}

	guard := lifecycle.NewGuard(st)
	a.machine = lifecycle.NewMachine(st, guard, caps, a.audit, logger, a.metrics)
	a.sweeper = scheduler.NewSweeper(st, a.machine, logger, a.metrics, cfg.Scheduler.MaxAttemptsPerWorkflow)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildStore creates the document store based on config.
func buildStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.DocumentStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory document store")
		return store.NewMemoryStore(), nil, nil
	case "postgres", "":
		dsn := cfg.DSN()
		if dsn == "" {
			return nil, nil, fmt.Errorf("document store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("document store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("document store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("document store: ping: %w", err)
		}

		st := store.NewPgStore(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("document store: schema: %w", err)
		}
		return st, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported document store driver: %q", cfg.Driver)
	}
}

// buildCapabilityResolver creates the resolver based on config. Without a
// policy file the CLI runs as an operator tool and grants the system actor
// every document capability.
func buildCapabilityResolver(cfg config.CapabilityConfig) (*capability.Resolver, error) {
	if cfg.StaticPolicyFile == "" {
		evaluator := capability.NewFixedPolicyEvaluator("documents:*")
		return capability.NewResolver(evaluator, cfg.Cache.TTL), nil
	}
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("static policy: %w", err)
	}
	return capability.NewResolver(evaluator, cfg.Cache.TTL), nil
}

// seedStates inserts any missing lifecycle state rows. Existing rows are
// left untouched.
func seedStates(ctx context.Context, st store.DocumentStore) (created int, err error) {
	for _, state := range model.AllStates() {
		if err := st.CreateState(ctx, state); err != nil {
			if model.IsCode(err, model.ErrConflict) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}

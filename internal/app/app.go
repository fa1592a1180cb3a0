// Package app wires a loaded configuration into the stores, the action
// registry and the runners the command-line tools share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/audit"
	"github.com/Blackthor84/WorkVouch-sub000/internal/config"
	"github.com/Blackthor84/WorkVouch-sub000/internal/eventlog"
	"github.com/Blackthor84/WorkVouch-sub000/internal/fuzz"
	"github.com/Blackthor84/WorkVouch-sub000/internal/logging"
	"github.com/Blackthor84/WorkVouch-sub000/internal/remote"
	"github.com/Blackthor84/WorkVouch-sub000/internal/sandbox"
	"github.com/Blackthor84/WorkVouch-sub000/internal/scenario"
	"github.com/Blackthor84/WorkVouch-sub000/internal/sqldb"
	"github.com/Blackthor84/WorkVouch-sub000/internal/telemetry"
	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// #region env
// Env is one process's wired components. Sandbox and Journal are nil when
// actions run against a remote service.
type Env struct {
	Config    *config.Config
	Log       *slog.Logger
	DB        *sqldb.DB
	Sandbox   *sandbox.Sandbox
	Journal   *eventlog.Store
	Remote    *remote.Client
	Registry  *action.Registry
	Scores    scenario.ScoreLookup
	Sink      *audit.SQLSink
	Runs      *fuzz.SQLStore
	Scenarios *scenario.Runner

	closers []func() error
}

// #endregion env

// #region bootstrap
// Bootstrap loads the config at path, installs the default logger and
// starts telemetry. The returned shutdown is never nil.
func Bootstrap(ctx context.Context, path string) (*config.Config, telemetry.Shutdown, error) {
	noop := func(context.Context) error { return nil }
	cfg, err := config.Load(path)
	if err != nil {
		return nil, noop, err
	}
	if _, err := logging.Install(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, noop, err
	}
	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, noop, err
	}
	return cfg, shutdown, nil
}

// #endregion bootstrap

// #region open
// Open connects storage and builds the registry. With cfg.Remote.Addr set
// the registry proxies every action the remote service lists; otherwise
// the SQLite sandbox serves them in process.
func Open(ctx context.Context, cfg *config.Config) (env *Env, err error) {
	env = &Env{Config: cfg, Log: slog.Default().With("component", "app")}
	defer func() {
		if err != nil {
			env.Close()
			env = nil
		}
	}()

	env.DB, err = sqldb.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return env, err
	}
	env.closers = append(env.closers, env.DB.Close)

	if env.Sink, err = audit.NewSQLSink(env.DB); err != nil {
		return env, err
	}
	if env.Runs, err = fuzz.NewSQLStore(env.DB); err != nil {
		return env, err
	}

	var opts []action.Option
	if cfg.RateLimit.Enabled {
		opts = append(opts, action.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))
	}
	env.Registry = action.NewRegistry(opts...)

	if cfg.Remote.Addr != "" {
		if err := env.openRemote(ctx); err != nil {
			return env, err
		}
	} else if err := env.openSandbox(); err != nil {
		return env, err
	}

	env.Scenarios = scenario.NewRunner(env.Registry, env.Sink,
		scenario.WithScoreLookup(env.Scores),
		scenario.WithLogger(slog.Default()),
	)
	return env, nil
}

func (e *Env) openRemote(ctx context.Context) error {
	client, err := remote.Dial(e.Config.Remote.Addr)
	if err != nil {
		return err
	}
	e.Remote = client
	e.closers = append(e.closers, client.Close)
	names, err := client.RegisterAll(ctx, e.Registry)
	if err != nil {
		return fmt.Errorf("list remote actions: %w", err)
	}
	e.Scores = client
	e.Log.Info("remote actions registered", "addr", e.Config.Remote.Addr, "actions", len(names))
	return nil
}

func (e *Env) openSandbox() error {
	db := e.DB
	if db.Dialect != sqldb.SQLite {
		var err error
		if db, err = sqldb.Open(string(sqldb.SQLite), e.Config.Sandbox.Path); err != nil {
			return fmt.Errorf("sandbox db: %w", err)
		}
		e.closers = append(e.closers, db.Close)
	}

	opts := sandbox.Options{
		CycleDiscount: e.Config.Sandbox.CycleDiscount,
		CycleWeight:   e.Config.Sandbox.CycleWeight,
		CycleDepth:    e.Config.Sandbox.CycleDepth,
		Logger:        slog.Default(),
		Industry:      e.Config.Engine.Industry,
		EmployerMode:  trust.EmployerMode(e.Config.Engine.EmployerMode),
	}
	if e.Config.Sandbox.Journal {
		j, err := eventlog.Open(db.DB)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		e.Journal = j
		opts.Journal = j
	}
	box, err := sandbox.New(db.DB, opts)
	if err != nil {
		return err
	}
	box.Register(e.Registry)
	e.Sandbox = box
	e.Scores = box
	return nil
}

// #endregion open

// Fuzzer returns a fuzz runner persisting to the configured store.
func (e *Env) Fuzzer() *fuzz.Runner {
	return fuzz.NewRunner(e.Scenarios, e.Runs, e.Sink, fuzz.WithLogger(slog.Default()))
}

// Close releases everything Open acquired, newest first.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}

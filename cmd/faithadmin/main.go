package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hariharan888/faith-admin/internal/config"
	"github.com/hariharan888/faith-admin/internal/ics"
	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/materialize"
	"github.com/hariharan888/faith-admin/internal/recurrence"
	"github.com/hariharan888/faith-admin/internal/scheduler"
	"github.com/hariharan888/faith-admin/internal/store"
	"github.com/hariharan888/faith-admin/internal/store/memory"
	"github.com/hariharan888/faith-admin/internal/store/postgres"
	"github.com/hariharan888/faith-admin/internal/web"
)

const shutdownTimeout = 10 * time.Second

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	horizon    string
}

func main() {
	flags := parseFlags()

	if err := config.LoadDotEnv(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
		os.Exit(1)
	}
	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			os.Exit(1)
		}
		appLog.Warn("could not write default config; continuing with defaults", "config_path", flags.configPath, "err", err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	var horizon time.Time
	if flags.horizon != "" {
		d, err := recurrence.ParseDate(flags.horizon)
		if err != nil {
			appLog.Error("invalid -horizon, want YYYY-MM-DD", err, "horizon", flags.horizon)
			os.Exit(2)
		}
		horizon = d.In(conf.Location())
	}

	appLog.Info("faith-admin starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"driver", conf.Database.Driver,
		"horizon_months", conf.HorizonMonths,
		"auto_generate", conf.AutoGenerate.Enabled,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, conf)
	if err != nil {
		appLog.Error("failed to open store", err, "driver", conf.Database.Driver)
		os.Exit(1)
	}
	defer st.Close()

	mat := materialize.New(st, materialize.Options{
		HorizonMonths: conf.HorizonMonths,
		Concurrency:   conf.MaterializeConcurrency,
		Location:      conf.Location(),
		Series:        st,
	})

	if flags.once {
		code := runOnce(ctx, mat, horizon)
		st.Close()
		cancel()
		os.Exit(code)
	}

	var sched *scheduler.Scheduler
	if conf.AutoGenerate.Enabled {
		sched, err = scheduler.New(conf.AutoGenerate.Cron, conf.Location(), mat)
		if err != nil {
			appLog.Error("failed to create scheduler", err)
			os.Exit(1)
		}
		sched.Start(ctx)
	}

	srv := web.NewServer(conf, st, mat, ics.NewFetcher(nil))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server stopped", err)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			appLog.Warn("scheduled run still in progress at shutdown")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("faith-admin exiting")
}

// runOnce materializes every active series and returns the exit code.
func runOnce(ctx context.Context, mat *materialize.Materializer, horizon time.Time) int {
	report, err := mat.MaterializeAll(ctx, horizon)
	if err != nil {
		appLog.Error("materialize all failed", err)
		return 1
	}
	appLog.Info("materialize all done", "series", report.Series, "created", report.Created, "failed", len(report.Failed))
	if err := report.Err(); err != nil {
		appLog.Error("some series failed", err)
		return 1
	}
	return 0
}

func openStore(ctx context.Context, conf *config.Config) (store.Store, error) {
	switch conf.Database.Driver {
	case config.DriverPostgres:
		if conf.Database.DSN == "" {
			return nil, errors.New("database.dsn is required for the postgres driver")
		}
		pg, err := postgres.Open(ctx, postgres.Config{
			DSN:          conf.Database.DSN,
			MaxOpenConns: conf.Database.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		appLog.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/faith-admin/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env-file", ".env", "Optional .env file with FAITH_* variables")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Generate events for every active recurring series and exit")
	flag.StringVar(&cfg.horizon, "horizon", "", "Generation horizon YYYY-MM-DD for -once (default: now + horizon_months)")

	flag.Parse()

	return cfg
}

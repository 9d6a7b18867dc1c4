package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BrettMayson/arma-bench/internal/build"
	"github.com/BrettMayson/arma-bench/internal/config"
	"github.com/BrettMayson/arma-bench/internal/installer"
	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/reaper"
	"github.com/BrettMayson/arma-bench/internal/runtime/arma"
	"github.com/BrettMayson/arma-bench/internal/scratch"
	"github.com/BrettMayson/arma-bench/internal/server"
	"github.com/BrettMayson/arma-bench/internal/store"
	"github.com/BrettMayson/arma-bench/internal/worker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "history" {
		os.Exit(runHistory(os.Args[2:]))
	}

	cfgPath := flag.String("config", "", "path to armabench.yaml")
	envPath := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func loadConfig(cfgPath, envPath string) (*config.Config, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	return config.Load(cfgPath)
}

func run(cfg *config.Config, logger logging.Logger) error {
	maxMsg, err := cfg.MaxMessageBytes()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.DBPath, 0)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sc := scratch.NewManager(cfg.ScratchDir)
	builder := build.NewBuilder(sc, build.Options{
		ExecuteTimeout: cfg.ExecuteTimeout(),
		CompareTimeout: cfg.CompareTimeout(),
	}, logger.With("component", "build"))

	inst := installer.New(installer.Options{
		SteamCmd:   cfg.Steam.CmdPath,
		AppID:      cfg.Steam.AppID,
		InstallDir: cfg.Steam.InstallDir,
		CacheTTL:   cfg.CacheTTL(),
		User:       cfg.Steam.User,
		Password:   cfg.Steam.Password,
	}, logger.With("component", "installer"))

	sup := arma.NewSupervisor(inst, arma.Options{
		ProfilesDir: cfg.Runtime.ProfilesDir,
		ShimMod:     cfg.Runtime.ShimMod,
		World:       cfg.Runtime.World,
		LimitFPS:    cfg.Runtime.LimitFPS,
		Console:     cfg.Runtime.Console,
		KillGrace:   cfg.KillGrace(),
	}, logger.With("component", "runtime"))

	w := worker.New(builder, sup,
		worker.WithQueueSize(cfg.QueueSize),
		worker.WithRecorder(st),
		worker.WithLogger(logger.With("component", "worker")),
	)

	rpr := reaper.New(st, sup, sc, cfg.ReaperInterval(), cfg.ScratchMaxAge(), logger.With("component", "reaper"))
	rpr.SetActiveJob(w)

	srv := server.New(w, logger.With("component", "server"),
		server.WithAddress(cfg.Listen),
		server.WithHandshakeTimeout(cfg.HandshakeTimeout()),
		server.WithMaxMessageSize(maxMsg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rpr.Run(ctx)
		return nil
	})

	g.Go(func() error {
		err := w.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("worker stopped unexpectedly")
		}
		return err
	})

	if err := srv.Start(); err != nil {
		stop()
		g.Wait()
		return err
	}
	fmt.Fprintf(os.Stderr, "\n  arma-bench server ready at %s\n\n", srv.Addr())

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down...")
		w.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	return g.Wait()
}

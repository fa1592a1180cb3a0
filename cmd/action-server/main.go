package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/Blackthor84/WorkVouch-sub000/internal/app"
	"github.com/Blackthor84/WorkVouch-sub000/internal/remote"
	"github.com/Blackthor84/WorkVouch-sub000/internal/telemetry"
)

// #region main

func main() {
	configPath := flag.String("config", envOr("TRUSTSIM_CONFIG", "trustsim.yaml"), "path to YAML config")
	listen := flag.String("listen", "", "bind address (default: remote.listen from config)")
	flag.Parse()
	os.Exit(run(*configPath, *listen))
}

// #endregion main

// #region serve

func run(configPath, listen string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, shutdown, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	defer shutdown(context.WithoutCancel(ctx))

	// The server always hosts the local sandbox.
	cfg.Remote.Addr = ""
	if listen == "" {
		listen = cfg.Remote.Listen
	}

	env, err := app.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 2
	}
	defer env.Close()

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", listen, err)
		return 2
	}

	log := slog.Default().With("component", "action-server")
	g := grpc.NewServer(grpc.ChainUnaryInterceptor(telemetry.UnaryServerInterceptor()))
	remote.NewServer(env.Registry, env.Scores, slog.Default()).Register(g)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		g.GracefulStop()
	}()

	log.Info("serving", "addr", lis.Addr().String(), "actions", env.Registry.Names(), "db", cfg.Storage.DSN)
	if err := g.Serve(lis); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	return 0
}

// #endregion serve

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

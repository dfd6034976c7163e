package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/kairos-trading/riskguard/internal/httpapi"
	"github.com/kairos-trading/riskguard/internal/supervisor"
)

const (
	appName    = "riskguard"
	appVersion = "v1.0.0"
)

func main() {
	var (
		configDir = flag.String("config-dir", "./config", "directory containing risk_config.yaml, timers_config.yaml, accounts.yaml, api_config.yaml")
		dbPath    = flag.String("db", "./riskguard.db", "path to the SQLite persistence store")
		httpAddr  = flag.String("http-addr", ":9090", "listen address for the /healthz, /statusz, /metrics HTTP surface")
		dryRun    = flag.Bool("dry-run", false, "deliver a scripted event sequence against the in-memory broker simulator instead of connecting to a live SDK")
		version   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", appName, appVersion)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, err := supervisor.New(ctx, supervisor.Options{
		ConfigDir: *configDir,
		DBPath:    *dbPath,
	})
	if err != nil {
		log.Printf("%s: configuration error: %v", appName, err)
		os.Exit(2)
	}

	app := fx.New(
		fx.NopLogger,
		fx.Supply(sup),
		fx.Invoke(supervisor.RegisterLifecycle),
	)

	if err := app.Start(ctx); err != nil {
		log.Fatalf("%s: startup failed: %v", appName, err)
	}

	if *dryRun {
		account := sup.Config.Accounts.AccountIDs()[0]
		go func() {
			if err := supervisor.RunDryRun(ctx, sup, supervisor.DefaultScript(account, "CON.F.US.MES.Z25", "MES")); err != nil {
				sup.Logger.Sugar().Errorf("dry-run sequence failed: %v", err)
			}
		}()
	}

	srv := httpapi.New(sup, *httpAddr)
	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErrCh:
		if err != nil {
			sup.Logger.Sugar().Errorf("http server stopped: %v", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Fatalf("%s: shutdown failed: %v", appName, err)
	}
}

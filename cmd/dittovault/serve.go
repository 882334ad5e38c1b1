package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/config"
	"github.com/marmos91/dittovault/pkg/gc"
	"github.com/marmos91/dittovault/pkg/metrics"
	"github.com/marmos91/dittovault/pkg/vault"
)

// serveStats is the JSON document served on /stats.
type serveStats struct {
	Vault vault.Stats `json:"vault"`
}

func cmdServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "keep the vault open, sweep idle resources and export metrics",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return serve(c, cfg)
		},
	}
}

func serve(c *cli.Context, cfg *config.Config) (err error) {
	var rt *runtime
	result := config.InitializeMetrics(cfg, func() any {
		return serveStats{Vault: rt.vault.Stats()}
	})

	rt, err = openRuntime(c, cfg, result)
	if err != nil {
		return err
	}

	if err := metrics.RegisterVaultStats(rt.vault.Stats); err != nil {
		_ = rt.Close()
		return err
	}

	sweeper, err := gc.NewSweeper(rt.vault, gc.Config{
		Interval: cfg.Vault.Sweep.Interval,
		MaxIdle:  cfg.Vault.Sweep.MaxIdle,
	})
	if err != nil {
		_ = rt.Close()
		return err
	}

	logger.Info("DittoVault serving content from %v", cfg.Content.Filesystem["path"])

	g, ctx := errgroup.WithContext(c.Context)

	if result.Server != nil {
		g.Go(func() error {
			return result.Server.Start(ctx)
		})
	}

	sweeper.Start()
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return sweeper.Stop(stopCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if cerr := rt.Close(); cerr != nil && err == nil {
		err = cerr
	}

	if err == nil {
		logger.Info("DittoVault stopped gracefully")
	}
	return err
}

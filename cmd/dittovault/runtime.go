package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/marmos91/dittovault/pkg/config"
	"github.com/marmos91/dittovault/pkg/content"
	"github.com/marmos91/dittovault/pkg/vault"
)

// loadConfig loads the configuration named by the global flags and applies
// its logging section.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = strings.ToUpper(level)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	if err := config.ConfigureLogging(&cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtime is the vault and content store built from a configuration.
type runtime struct {
	cfg   *config.Config
	vault *vault.Vault
	store content.GarbageCollectableStore
}

// openRuntime creates the vault and the content store. metrics may be nil.
func openRuntime(c *cli.Context, cfg *config.Config, metrics *config.MetricsResult) (*runtime, error) {
	if metrics == nil {
		metrics = &config.MetricsResult{}
	}

	v, err := config.CreateVault(&cfg.Vault, metrics.VaultMetrics)
	if err != nil {
		return nil, err
	}

	store, err := config.CreateContentStore(c.Context, &cfg.Content, v, metrics.ContentMetrics)
	if err != nil {
		_ = v.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, vault: v, store: store}, nil
}

// Close closes the store, then the vault that backs it.
func (r *runtime) Close() error {
	var errs error
	if closer, ok := r.store.(io.Closer); ok {
		errs = multierr.Append(errs, closer.Close())
	}
	return multierr.Append(errs, r.vault.Close())
}

// withRuntime loads the configuration and runs fn against a fresh runtime.
func withRuntime(c *cli.Context, fn func(*runtime) error) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	rt, err := openRuntime(c, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	return fn(rt)
}

// contentIDArg returns the first positional argument as a ContentID.
func contentIDArg(c *cli.Context) (content.ContentID, error) {
	if c.Args().Len() < 1 || c.Args().First() == "" {
		return "", fmt.Errorf("%s: missing content id", c.Command.Name)
	}
	return content.ContentID(c.Args().First()), nil
}

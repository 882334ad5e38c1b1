package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittovault/pkg/config"
)

func cmdConfig() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "write a default configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "overwrite an existing file",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if path == "" {
						var err error
						path, err = config.InitConfig(c.Bool("force"))
						if err != nil {
							return err
						}
					} else if err := config.InitConfigToPath(path, c.Bool("force")); err != nil {
						return err
					}

					_, _ = fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "resolve",
						Usage: "replace derived vault limits by their values on this host",
						Value: true,
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if c.Bool("resolve") {
						cfg.Vault.Resolve()
					}
					return writeYAML(c, cfg)
				},
			},
		},
	}
}

func writeYAML(c *cli.Context, v any) error {
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

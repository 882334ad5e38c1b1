// Command dittovault manages a content store whose files are accessed
// through a bounded pool of file handles and memory mappings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func newApp() *cli.App {
	return &cli.App{
		Name:    "dittovault",
		Usage:   "content store with bounded file handles and mappings",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				EnvVars: []string{"DITTOVAULT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logging.level (DEBUG, INFO, WARN, ERROR)",
			},
		},
		Commands: []*cli.Command{
			cmdConfig(),
			cmdStat(),
			cmdList(),
			cmdCat(),
			cmdWrite(),
			cmdRemove(),
			cmdServe(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dittovault: %v\n", err)
		os.Exit(1)
	}
}

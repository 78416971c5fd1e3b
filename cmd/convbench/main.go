package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	_ "github.com/samcharles93/convbench/internal/backend/host"
	"github.com/samcharles93/convbench/internal/logger"
	"github.com/samcharles93/convbench/internal/version"
)

// loadedConfig is read once in the root Before hook.
var loadedConfig Config

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "convbench",
		Usage:   "Host driver for tiled conv3d compute kernels",
		Version: version.String(),
		Flags:   loggingFlags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			loadedConfig = cfg
			applyLogConfig(c, cfg)

			level := logger.ParseLevel(logLevel)
			if debug {
				level = slog.LevelDebug
			}
			log, err := logger.Build(c.Root().ErrWriter, logFormat, level)
			if err != nil {
				return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cli.ShowAppHelp(c)
		},
		Commands: []*cli.Command{
			runCmd(),
			planCmd(),
			generateCmd(),
			versionCmd(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

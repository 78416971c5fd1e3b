package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convbench/internal/logger"
	"github.com/samcharles93/convbench/internal/reference"
	"github.com/samcharles93/convbench/internal/testcase"
)

func generateCmd() *cli.Command {
	var (
		seed    int64
		strides bool
		padding string
		shape   testcase.Shape
		kernel  int64
		stride  int64
	)

	intFlag := func(name, usage string, dst *int) cli.Flag {
		return &cli.IntFlag{Name: name, Usage: usage + " (0 draws at random)", Destination: dst}
	}

	flags := append([]cli.Flag{}, dataFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (0 picks one)",
			Destination: &seed,
		},
		&cli.BoolFlag{
			Name:        "strides",
			Usage:       "allow random strides of 1..4",
			Destination: &strides,
		},
		&cli.StringFlag{
			Name:        "padding",
			Usage:       "padding mode (VALID, SAME; empty draws at random)",
			Destination: &padding,
		},
		intFlag("din", "input depth", &shape.Din),
		intFlag("hin", "input height", &shape.Hin),
		intFlag("win", "input width", &shape.Win),
		intFlag("cin", "input channels", &shape.Cin),
		intFlag("cout", "output channels", &shape.Cout),
		&cli.Int64Flag{
			Name:        "ksize",
			Usage:       "cubic kernel edge (0 draws an odd edge of 3..9)",
			Destination: &kernel,
		},
		&cli.Int64Flag{
			Name:        "stride",
			Usage:       "stride on every axis (0 draws at random)",
			Destination: &stride,
		},
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a random test case with reference ground truth",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyDeviceConfig(c, loadedConfig)
			log := logger.FromContext(ctx)

			if padding != "" {
				mode, err := reference.ParsePaddingMode(padding)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				shape.Padding = mode
			}
			if kernel < 0 || stride < 0 {
				return cli.Exit("error: --ksize and --stride must not be negative", 1)
			}
			shape.Dk, shape.Hk, shape.Wk = int(kernel), int(kernel), int(kernel)
			shape.Sx, shape.Sy, shape.Sz = int(stride), int(stride), int(stride)
			if seed == 0 {
				seed = rand.Int64()
			}

			tc, err := testcase.Generate(testcase.Options{Seed: uint64(seed), Shape: shape, Strides: strides})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			files := resolveFiles()
			if err := tc.Write(files); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("wrote test case", "seed", seed, "dir", resolveDataDir(dataDir))

			w := c.Root().Writer
			_, _ = fmt.Fprintf(w, "seed:        %d\n", seed)
			_, _ = fmt.Fprintf(w, "padding:     %s\n", tc.Padding)
			_, _ = fmt.Fprintf(w, "channels:    Cin %d -> %d, Cout %d -> %d\n", tc.Cin, tc.Params.Cin, tc.Cout, tc.Params.Cout)
			_, _ = fmt.Fprintf(w, "parameters:  %s\n", tc.Params)
			_, _ = fmt.Fprintf(w, "input:       %s\n", testcase.Summarize(tc.Input))
			_, _ = fmt.Fprintf(w, "output:      %s\n", testcase.Summarize(tc.Output))
			return nil
		},
	}
}

package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convbench/internal/testcase"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	dataDir    string
	inputFile  string
	filterFile string
	biasFile   string
	truthFile  string
	paramsFile string

	backendName string
	vendor      string
	deviceType  string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/convbench/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// dataFlags name the five raw files of a test case. Relative names resolve
// against the data directory.
func dataFlags() []cli.Flag {
	def := testcase.DefaultFiles()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "data-dir",
			Aliases:     []string{"d"},
			Usage:       "directory holding the test case files (default $" + envDataDir + " or ./data)",
			Destination: &dataDir,
		},
		&cli.StringFlag{
			Name:        "input",
			Usage:       "packed input tensor",
			Value:       def.Input,
			Destination: &inputFile,
		},
		&cli.StringFlag{
			Name:        "filters",
			Usage:       "packed filter tensor",
			Value:       def.Filter,
			Destination: &filterFile,
		},
		&cli.StringFlag{
			Name:        "biases",
			Usage:       "packed bias tensor",
			Value:       def.Bias,
			Destination: &biasFile,
		},
		&cli.StringFlag{
			Name:        "truth",
			Usage:       "packed ground truth output",
			Value:       def.Truth,
			Destination: &truthFile,
		},
		&cli.StringFlag{
			Name:        "params",
			Usage:       "parameter blob (20 little-endian int32)",
			Value:       def.Params,
			Destination: &paramsFile,
		},
	}
}

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "execution backend (auto, host, opencl)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.StringFlag{
			Name:        "vendor",
			Usage:       "platform vendor substring, e.g. NVIDIA (default first platform)",
			Destination: &vendor,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "device type (gpu, cpu, auto)",
			Value:       "auto",
			Destination: &deviceType,
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convbench/internal/backend"
	"github.com/samcharles93/convbench/internal/dispatch"
	"github.com/samcharles93/convbench/internal/driver"
	"github.com/samcharles93/convbench/internal/logger"
	"github.com/samcharles93/convbench/internal/validate"
)

// runOptions are the kernel, dispatch and validation flags shared by run and
// plan.
type runOptions struct {
	kernel      string
	source      string
	strategy    string
	tileM       int64
	tileN       int64
	local       string
	fastMath    bool
	tolerance   string
	elementType string
}

func (o *runOptions) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "kernel",
			Aliases:     []string{"k"},
			Usage:       "kernel entry point",
			Value:       "conv3DV111",
			Destination: &o.kernel,
		},
		&cli.StringFlag{
			Name:        "source",
			Usage:       "kernel source file (default kernel/<kernel>.cl)",
			Destination: &o.source,
		},
		&cli.StringFlag{
			Name:        "strategy",
			Aliases:     []string{"s"},
			Usage:       "dispatch strategy (channel-major, spatial-major); required",
			Destination: &o.strategy,
		},
		&cli.Int64Flag{
			Name:        "tile-m",
			Usage:       "output tile edge along height and width (MW, MH)",
			Value:       5,
			Destination: &o.tileM,
		},
		&cli.Int64Flag{
			Name:        "tile-n",
			Usage:       "output tile edge along depth (MD, MDC)",
			Value:       3,
			Destination: &o.tileN,
		},
		&cli.StringFlag{
			Name:        "local",
			Usage:       "local work size XxYxZ",
			Value:       "32x4x4",
			Destination: &o.local,
		},
		&cli.BoolFlag{
			Name:        "fast-math",
			Usage:       "build with -cl-fast-relaxed-math",
			Value:       true,
			Destination: &o.fastMath,
		},
		&cli.StringFlag{
			Name:        "tolerance",
			Aliases:     []string{"tol"},
			Usage:       "absolute tolerance: a number or a name (default, strict)",
			Value:       "default",
			Destination: &o.tolerance,
		},
		&cli.StringFlag{
			Name:        "element-type",
			Usage:       "element type of output and ground truth (float, double)",
			Value:       "float",
			Destination: &o.elementType,
		},
	}
}

// parseLocal accepts "32x4x4" or "32,4,4".
func parseLocal(s string) (dispatch.NDRange, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == 'X' || r == ',' })
	if len(parts) != 3 {
		return dispatch.NDRange{}, fmt.Errorf("local size %q must have three extents", s)
	}
	var out dispatch.NDRange
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return dispatch.NDRange{}, fmt.Errorf("local size %q: extent %q is not a positive integer", s, p)
		}
		out[i] = n
	}
	return out, nil
}

// driverConfig turns the resolved flags into a pipeline configuration.
func (o *runOptions) driverConfig() (driver.Config, error) {
	var errs []error
	strategy, err := dispatch.ParseStrategy(o.strategy)
	errs = append(errs, err)
	local, err := parseLocal(o.local)
	errs = append(errs, err)
	tol, err := validate.ParseTolerance(o.tolerance)
	errs = append(errs, err)
	et, err := validate.ParseElementType(o.elementType)
	errs = append(errs, err)
	dev, err := backend.ParseDeviceType(deviceType)
	errs = append(errs, err)
	source, err := resolveKernelSource(o.source, o.kernel)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return driver.Config{}, err
	}

	return driver.Config{
		Backend:      backendName,
		Vendor:       vendor,
		Device:       dev,
		Files:        resolveFiles(),
		KernelSource: source,
		KernelName:   o.kernel,
		TileM:        int(o.tileM),
		TileN:        int(o.tileN),
		Local:        local,
		Strategy:     strategy,
		FastMath:     o.fastMath,
		Tolerance:    tol,
		ElementType:  et,
	}, nil
}

func runCmd() *cli.Command {
	var (
		opts           runOptions
		printDetails   bool
		failOnMismatch bool
		reportPath     string
		cpuProfile     string
		memProfile     string
	)

	flags := append([]cli.Flag{}, dataFlags()...)
	flags = append(flags, deviceFlags()...)
	flags = append(flags, opts.flags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "print-details",
			Usage:       "print every compared element",
			Destination: &printDetails,
		},
		&cli.BoolFlag{
			Name:        "fail-on-mismatch",
			Usage:       "exit with status 1 when values fall outside the tolerance",
			Destination: &failOnMismatch,
		},
		&cli.StringFlag{
			Name:        "report",
			Usage:       "write a JSON run report to this file",
			Destination: &reportPath,
		},
		&cli.StringFlag{
			Name:        "cpuprofile",
			Usage:       "write cpu profile to file",
			Destination: &cpuProfile,
		},
		&cli.StringFlag{
			Name:        "memprofile",
			Usage:       "write memory profile to file",
			Destination: &memProfile,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run a conv3d kernel on one test case and compare it with ground truth",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyRunConfig(c, loadedConfig, &opts)
			log := logger.FromContext(ctx)

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("could not create CPU profile: %v", err), 1)
				}
				defer func() { _ = f.Close() }()
				if err := pprof.StartCPUProfile(f); err != nil {
					return cli.Exit(fmt.Sprintf("could not start CPU profile: %v", err), 1)
				}
				defer pprof.StopCPUProfile()
			}
			if memProfile != "" {
				defer func() {
					f, err := os.Create(memProfile)
					if err != nil {
						log.Warn("could not create memory profile", "error", err)
						return
					}
					defer func() { _ = f.Close() }()
					if err := pprof.WriteHeapProfile(f); err != nil {
						log.Warn("could not write memory profile", "error", err)
					}
				}()
			}

			cfg, err := opts.driverConfig()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			res, err := driver.Run(ctx, cfg)
			if err != nil {
				return cli.Exit(stageMessage(err), 1)
			}

			w := c.Root().Writer
			printRun(w, cfg, res)
			if printDetails {
				for e := range res.Report.Details() {
					_, _ = fmt.Fprintln(w, e)
				}
			}
			_, _ = fmt.Fprintln(w, res.Report)

			if reportPath != "" {
				if err := writeReport(reportPath, newRunReport(cfg, res)); err != nil {
					return cli.Exit(fmt.Sprintf("error: write report: %v", err), 1)
				}
				log.Info("wrote run report", "path", reportPath)
			}
			if failOnMismatch && !res.Report.Pass() {
				return cli.Exit(fmt.Sprintf("error: %d of %d values outside tolerance %g", res.Report.Failed(), res.Report.Count, res.Report.Tolerance), 1)
			}
			return nil
		},
	}
}

// stageMessage names the failed stage in the exit message.
func stageMessage(err error) string {
	var se *driver.StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("error: %s stage failed: %v", se.Stage, se.Err)
	}
	return fmt.Sprintf("error: %v", err)
}

func printRun(w io.Writer, cfg driver.Config, res *driver.Result) {
	p := res.Params
	_, _ = fmt.Fprintf(w, "run:               %s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "device:            %s / %s\n", res.Platform.Name, res.Device.Name)
	_, _ = fmt.Fprintf(w, "kernel:            %s (%s)\n", cfg.KernelName, cfg.KernelSource)
	_, _ = fmt.Fprintf(w, "parameters:        %s\n", p)
	for _, l := range res.Layouts {
		_, _ = fmt.Fprintf(w, "%-18s %s\n", l.Role.String()+":", l.Provenance)
	}
	printPlan(w, res.Plan)
	_, _ = fmt.Fprintf(w, "kernel time:       %d us\n", res.Timings.KernelMicros)
	_, _ = fmt.Fprintf(w, "wall time:         %s\n", res.Timings.Total)
}

func printPlan(w io.Writer, plan dispatch.Plan) {
	_, _ = fmt.Fprintf(w, "strategy:          %s\n", plan.Strategy)
	_, _ = fmt.Fprintf(w, "global work size:  %s\n", plan.Global)
	_, _ = fmt.Fprintf(w, "local work size:   %s\n", plan.Local)
	_, _ = fmt.Fprintf(w, "build options:     %s\n", plan.BuildOptions)
}

type planReport struct {
	Strategy     string `json:"strategy"`
	TileM        int    `json:"tile_m"`
	TileN        int    `json:"tile_n"`
	Local        [3]int `json:"local"`
	Global       [3]int `json:"global"`
	AlignedDout  int    `json:"aligned_dout"`
	WorkItems    int    `json:"work_items"`
	BuildOptions string `json:"build_options"`
}

func newPlanReport(p dispatch.Plan) planReport {
	return planReport{
		Strategy:     p.Strategy.String(),
		TileM:        p.TileM,
		TileN:        p.TileN,
		Local:        p.Local,
		Global:       p.Global,
		AlignedDout:  p.AlignedDout,
		WorkItems:    p.WorkItems(),
		BuildOptions: p.BuildOptions,
	}
}

type runReport struct {
	RunID     string             `json:"run_id"`
	Kernel    string             `json:"kernel"`
	Platform  string             `json:"platform"`
	Device    string             `json:"device"`
	Params    map[string]int     `json:"params"`
	Layouts   []layoutReport     `json:"layouts"`
	Plan      planReport         `json:"plan"`
	KernelUS  uint64             `json:"kernel_us"`
	StagesMS  map[string]float64 `json:"stages_ms"`
	TotalMS   float64            `json:"total_ms"`
	Pass      bool               `json:"pass"`
	Values    int                `json:"values"`
	Failed    int                `json:"failed"`
	MaxDiff   float64            `json:"max_diff"`
	NonFinite int                `json:"non_finite"`
	Tol       float64            `json:"tolerance"`
}

func newRunReport(cfg driver.Config, res *driver.Result) runReport {
	r := runReport{
		RunID:     res.RunID,
		Kernel:    cfg.KernelName,
		Platform:  res.Platform.Name,
		Device:    res.Device.Name,
		Params:    paramsMap(res.Params),
		Layouts:   layoutReports(res.Layouts),
		Plan:      newPlanReport(res.Plan),
		KernelUS:  res.Timings.KernelMicros,
		StagesMS:  make(map[string]float64, len(res.Timings.Stages)),
		TotalMS:   float64(res.Timings.Total.Microseconds()) / 1000,
		Pass:      res.Report.Pass(),
		Values:    res.Report.Count,
		Failed:    res.Report.Failed(),
		MaxDiff:   res.Report.MaxDiff,
		NonFinite: res.Report.NonFinite,
		Tol:       res.Report.Tolerance,
	}
	for stage, d := range res.Timings.Stages {
		r.StagesMS[string(stage)] = float64(d.Microseconds()) / 1000
	}
	return r
}

func writeReport(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

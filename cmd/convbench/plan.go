package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convbench/internal/dispatch"
	"github.com/samcharles93/convbench/internal/hostbuf"
	"github.com/samcharles93/convbench/internal/kernelargs"
	"github.com/samcharles93/convbench/internal/layout"
	"github.com/samcharles93/convbench/pkg/convparams"
)

type layoutReport struct {
	Role       string `json:"role"`
	Dims       int    `json:"dims"`
	Shape      []int  `json:"shape"`
	Bytes      int    `json:"bytes"`
	Access     string `json:"access"`
	Logical    []int  `json:"logical"`
	Provenance string `json:"provenance"`
}

func layoutReports(ls [4]layout.ImageLayout) []layoutReport {
	out := make([]layoutReport, 0, len(ls))
	for _, l := range ls {
		out = append(out, layoutReport{
			Role:       l.Role.String(),
			Dims:       l.Dims,
			Shape:      l.PhysicalShape(),
			Bytes:      l.ByteSize(),
			Access:     l.Access.String(),
			Logical:    l.Logical,
			Provenance: l.Provenance,
		})
	}
	return out
}

func paramsMap(p convparams.ConvParams) map[string]int {
	return map[string]int{
		"Din": p.Din, "Hin": p.Hin, "Win": p.Win, "Cin": p.Cin,
		"Dout": p.Dout, "Hout": p.Hout, "Wout": p.Wout, "Cout": p.Cout,
		"Dk": p.Dk, "Hk": p.Hk, "Wk": p.Wk,
		"Sx": p.Sx, "Sy": p.Sy, "Sz": p.Sz,
		"Px": p.Px, "Py": p.Py, "Pz": p.Pz,
		"Lx": p.Lx, "Ly": p.Ly, "Lz": p.Lz,
	}
}

type argReport struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type planOutput struct {
	Params  map[string]int `json:"params"`
	Layouts []layoutReport `json:"layouts"`
	Plan    planReport     `json:"plan"`
	Args    []argReport    `json:"args"`
}

// buildPlan decodes the parameter blob and derives layouts, dispatch plan and
// argument list without touching a device.
func buildPlan(o *runOptions) (planOutput, error) {
	blob, err := hostbuf.ReadFile(resolveFiles().Params)
	if err != nil {
		return planOutput{}, err
	}
	p, err := convparams.Decode(blob)
	if err != nil {
		return planOutput{}, err
	}
	layouts, err := layout.PackAll(p)
	if err != nil {
		return planOutput{}, err
	}
	strategy, err := dispatch.ParseStrategy(o.strategy)
	if err != nil {
		return planOutput{}, err
	}
	local, err := parseLocal(o.local)
	if err != nil {
		return planOutput{}, err
	}
	plan, err := dispatch.New(dispatch.Request{
		Wout: p.Wout, Hout: p.Hout, Dout: p.Dout, Cgout: p.Cgout(),
		TileM: int(o.tileM), TileN: int(o.tileN),
		Local:    local,
		Strategy: strategy,
		FastMath: o.fastMath,
	})
	if err != nil {
		return planOutput{}, err
	}
	scalars, err := kernelargs.FromParams(p)
	if err != nil {
		return planOutput{}, err
	}

	var args []argReport
	for _, a := range kernelargs.Args(kernelargs.Handles{}, scalars) {
		r := argReport{Index: a.Index, Name: a.Name}
		if v, ok := a.Value.(int32); ok {
			r.Value = v
		}
		args = append(args, r)
	}
	return planOutput{
		Params:  paramsMap(p),
		Layouts: layoutReports(layouts),
		Plan:    newPlanReport(plan),
		Args:    args,
	}, nil
}

func printPlanOutput(w io.Writer, out planOutput) {
	for _, l := range out.Layouts {
		_, _ = fmt.Fprintf(w, "%-18s %s (%s, %d bytes)\n", l.Role+":", l.Provenance, l.Access, l.Bytes)
	}
	_, _ = fmt.Fprintf(w, "strategy:          %s\n", out.Plan.Strategy)
	_, _ = fmt.Fprintf(w, "global work size:  %s\n", dispatch.NDRange(out.Plan.Global))
	_, _ = fmt.Fprintf(w, "local work size:   %s\n", dispatch.NDRange(out.Plan.Local))
	_, _ = fmt.Fprintf(w, "work items:        %d\n", out.Plan.WorkItems)
	_, _ = fmt.Fprintf(w, "build options:     %s\n", out.Plan.BuildOptions)
	_, _ = fmt.Fprintln(w, "arguments:")
	for _, a := range out.Args {
		if a.Value == nil {
			_, _ = fmt.Fprintf(w, "  %2d %-6s image\n", a.Index, a.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %2d %-6s %v\n", a.Index, a.Name, a.Value)
	}
}

func planCmd() *cli.Command {
	var (
		opts   runOptions
		asJSON bool
	)

	flags := append([]cli.Flag{}, dataFlags()...)
	flags = append(flags, opts.flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "json",
		Usage:       "print the plan as JSON",
		Destination: &asJSON,
	})

	return &cli.Command{
		Name:  "plan",
		Usage: "Show packed layouts, dispatch geometry and kernel arguments for a parameter blob",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyRunConfig(c, loadedConfig, &opts)
			out, err := buildPlan(&opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			w := c.Root().Writer
			if asJSON {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode plan: %v", err), 1)
				}
				_, _ = fmt.Fprintln(w, string(data))
				return nil
			}
			printPlanOutput(w, out)
			return nil
		},
	}
}

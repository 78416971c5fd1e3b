// Package driver runs one conv3d test case end to end: decode the parameter
// blob, pack and upload the tensors, plan the dispatch, compile and bind the
// kernel, execute it and compare the result against ground truth.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/convbench/internal/backend"
	"github.com/samcharles93/convbench/internal/dispatch"
	"github.com/samcharles93/convbench/internal/hostbuf"
	"github.com/samcharles93/convbench/internal/kernelargs"
	"github.com/samcharles93/convbench/internal/layout"
	"github.com/samcharles93/convbench/internal/logger"
	"github.com/samcharles93/convbench/internal/testcase"
	"github.com/samcharles93/convbench/internal/validate"
	"github.com/samcharles93/convbench/pkg/convparams"
)

type Config struct {
	Backend string
	// Vendor is matched as a substring of the platform name or vendor.
	Vendor string
	Device backend.DeviceType

	// Files holds resolved paths. An empty Output leaves the output image
	// uninitialised.
	Files  testcase.Files
	Output string

	KernelSource string
	KernelName   string

	TileM, TileN int
	Local        dispatch.NDRange
	Strategy     dispatch.Strategy
	FastMath     bool

	Tolerance   float64
	ElementType validate.ElementType
}

func (c Config) Validate() error {
	var errs []error
	if c.KernelSource == "" {
		errs = append(errs, errors.New("kernel source path is required"))
	}
	if c.KernelName == "" {
		errs = append(errs, errors.New("kernel name is required"))
	}
	for _, f := range []struct{ name, path string }{
		{"input", c.Files.Input},
		{"filter", c.Files.Filter},
		{"bias", c.Files.Bias},
		{"ground truth", c.Files.Truth},
		{"parameters", c.Files.Params},
	} {
		if f.path == "" {
			errs = append(errs, fmt.Errorf("%s file is required", f.name))
		}
	}
	return errors.Join(errs...)
}

// Timings holds host wall clock per stage and the device execution time.
type Timings struct {
	Stages       map[Stage]time.Duration
	Total        time.Duration
	KernelMicros uint64
}

type Result struct {
	RunID    string
	Params   convparams.ConvParams
	Layouts  [4]layout.ImageLayout
	Plan     dispatch.Plan
	Scalars  kernelargs.Scalars
	Platform backend.Platform
	Device   backend.Device
	Event    backend.Event
	Timings  Timings
	Report   *validate.Report
}

// Run executes the pipeline once. Stage failures are returned as a
// *StageError. A completed comparison is not an error even when values
// differ; see Result.Report.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ElementType == "" {
		cfg.ElementType = validate.Float32
	}
	r := &run{
		cfg: cfg,
		res: &Result{RunID: uuid.NewString(), Timings: Timings{Stages: map[Stage]time.Duration{}}},
	}
	r.log = logger.FromContext(ctx).With("run", r.res.RunID)
	defer r.release()

	start := time.Now()
	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageDecode, r.decode},
		{StageLayout, r.pack},
		{StageDevice, r.open},
		{StageMaterialize, r.materialize},
		{StagePlan, r.plan},
		{StageCompile, r.compile},
		{StageBind, r.bind},
		{StageDispatch, r.dispatch},
		{StageReadback, r.readback},
		{StageValidate, r.validate},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fail(step.stage, err)
		}
		log := r.log.With(logger.StageKey, string(step.stage))
		t0 := time.Now()
		err := step.fn(logger.WithContext(ctx, log))
		r.res.Timings.Stages[step.stage] = time.Since(t0)
		if err != nil {
			log.Error("stage failed", "error", err)
			return nil, fail(step.stage, err)
		}
	}
	r.res.Timings.Total = time.Since(start)
	r.res.Timings.KernelMicros = r.res.Event.ElapsedMicros()
	return r.res, nil
}

type run struct {
	cfg Config
	res *Result
	log logger.Logger

	session backend.Session
	images  kernelargs.Handles
	program backend.Program
	kernel  backend.Kernel
	output  []byte
}

// release frees device objects in reverse order of creation.
func (r *run) release() {
	if r.kernel != nil {
		_ = r.kernel.Release()
	}
	if r.program != nil {
		_ = r.program.Release()
	}
	for _, img := range []backend.Image{r.images.Output, r.images.Bias, r.images.Filter, r.images.Input} {
		if img != nil {
			_ = img.Release()
		}
	}
	if r.session != nil {
		if err := r.session.Close(); err != nil {
			r.log.Warn("failed to close session", "error", err)
		}
	}
}

func (r *run) decode(ctx context.Context) error {
	blob, err := hostbuf.ReadFile(r.cfg.Files.Params)
	if err != nil {
		return err
	}
	p, err := convparams.Decode(blob)
	if err != nil {
		return err
	}
	r.res.Params = p
	logger.FromContext(ctx).Debug("decoded parameters", "params", p.String())
	return nil
}

func (r *run) pack(ctx context.Context) error {
	layouts, err := layout.PackAll(r.res.Params)
	if err != nil {
		return err
	}
	r.res.Layouts = layouts
	log := logger.FromContext(ctx)
	for _, l := range layouts {
		log.Debug("packed layout", "role", l.Role.String(), "shape", l.PhysicalShape(), "bytes", l.ByteSize())
	}
	return nil
}

func (r *run) open(ctx context.Context) error {
	b, err := backend.New(r.cfg.Backend)
	if err != nil {
		return err
	}
	p, err := backend.SelectPlatform(b, r.cfg.Vendor)
	if err != nil {
		return err
	}
	d, err := backend.SelectDevice(b, p, r.cfg.Device)
	if err != nil {
		return err
	}
	s, err := b.Open(p, d)
	if err != nil {
		return backend.Failure("open session", err)
	}
	r.session = s
	r.res.Platform, r.res.Device = p, d
	logger.FromContext(ctx).Info("opened device", "backend", b.Name(), "platform", p.Name, "device", d.Name)
	return nil
}

func (r *run) materialize(ctx context.Context) error {
	sources := [4]string{r.cfg.Files.Input, r.cfg.Files.Filter, r.cfg.Files.Bias, r.cfg.Output}
	targets := [4]*backend.Image{&r.images.Input, &r.images.Filter, &r.images.Bias, &r.images.Output}
	for i, l := range r.res.Layouts {
		img, err := layout.Materialize(ctx, r.session, l, sources[i])
		if err != nil {
			return err
		}
		*targets[i] = img
	}
	return nil
}

func (r *run) plan(ctx context.Context) error {
	p := r.res.Params
	plan, err := dispatch.New(dispatch.Request{
		Wout: p.Wout, Hout: p.Hout, Dout: p.Dout, Cgout: p.Cgout(),
		TileM: r.cfg.TileM, TileN: r.cfg.TileN,
		Local:    r.cfg.Local,
		Strategy: r.cfg.Strategy,
		FastMath: r.cfg.FastMath,
	})
	if err != nil {
		return err
	}
	r.res.Plan = plan
	logger.FromContext(ctx).Info("planned dispatch",
		"strategy", plan.Strategy.String(),
		"global", plan.Global.String(),
		"local", plan.Local.String(),
		"options", plan.BuildOptions)
	return nil
}

func (r *run) compile(ctx context.Context) error {
	src, err := hostbuf.ReadFile(r.cfg.KernelSource)
	if err != nil {
		return err
	}
	prog, err := r.session.BuildProgram(ctx, string(src), r.res.Plan.BuildOptions)
	if err != nil {
		return err
	}
	r.program = prog
	k, err := prog.Kernel(r.cfg.KernelName)
	if err != nil {
		return backend.Failure("create kernel "+r.cfg.KernelName, err)
	}
	r.kernel = k
	logger.FromContext(ctx).Debug("built kernel", "kernel", k.Name(), "source", r.cfg.KernelSource)
	return nil
}

func (r *run) bind(ctx context.Context) error {
	s, err := kernelargs.FromParams(r.res.Params)
	if err != nil {
		return err
	}
	if err := kernelargs.Bind(r.kernel, r.images, s); err != nil {
		return err
	}
	r.res.Scalars = s
	logger.FromContext(ctx).Debug("bound arguments", "scalars", s.String())
	return nil
}

func (r *run) dispatch(ctx context.Context) error {
	ev, err := r.session.Enqueue(ctx, r.kernel, r.res.Plan.Global, r.res.Plan.Local)
	if err != nil {
		return backend.Failure("enqueue "+r.kernel.Name(), err)
	}
	r.res.Event = ev
	logger.FromContext(ctx).Info("kernel finished", "elapsed_us", ev.ElapsedMicros())
	return nil
}

func (r *run) readback(ctx context.Context) error {
	m, err := r.session.Map(ctx, r.images.Output)
	if err != nil {
		return backend.Failure("map output", err)
	}
	r.output = append([]byte(nil), m.Bytes()...)
	if err := m.Unmap(); err != nil {
		return backend.Failure("unmap output", err)
	}
	return nil
}

func (r *run) validate(ctx context.Context) error {
	truth, err := hostbuf.ReadFile(r.cfg.Files.Truth)
	if err != nil {
		return err
	}
	rep, err := validate.Validate(r.output, truth, r.cfg.ElementType, r.cfg.Tolerance)
	if err != nil {
		return err
	}
	r.res.Report = rep
	log := logger.FromContext(ctx)
	if rep.Pass() {
		log.Info("result matches ground truth", "values", rep.Count, "max_diff", rep.MaxDiff)
	} else {
		log.Warn("result differs from ground truth", "failed", rep.Failed(), "values", rep.Count, "max_diff", rep.MaxDiff)
	}
	return nil
}

package driver

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/convbench/internal/backend"
	_ "github.com/samcharles93/convbench/internal/backend/host"
	"github.com/samcharles93/convbench/internal/dispatch"
	"github.com/samcharles93/convbench/internal/hostbuf"
	"github.com/samcharles93/convbench/internal/logger"
	"github.com/samcharles93/convbench/internal/reference"
	"github.com/samcharles93/convbench/internal/testcase"
	"github.com/samcharles93/convbench/internal/validate"
	"github.com/samcharles93/convbench/pkg/convparams"
)

const kernelSource = `
__kernel void conv3DV111(__read_only image2d_array_t input,
                         __read_only image2d_t filter,
                         __read_only image1d_t bias,
                         __write_only image2d_array_t output,
                         int Din, int Cgin, int Wout, int Hout, int Dout, int Cgout,
                         int Wk, int Hk, int Dk, int Sx, int Sy, int Sz,
                         int Px, int Py, int Pz, int Lx, int Ly, int Lz) {}
`

// setup writes a generated case and a kernel source into a temp dir and
// returns a config that runs it on the host backend.
func setup(t *testing.T) (Config, *testcase.Case) {
	t.Helper()
	c, err := testcase.Generate(testcase.Options{Seed: 11, Shape: testcase.Shape{
		Din: 4, Hin: 6, Win: 5, Cin: 5,
		Cout: 8,
		Dk:   3, Hk: 3, Wk: 3,
		Sx: 1, Sy: 2, Sz: 1,
		Padding: reference.Same,
	}})
	require.NoError(t, err)

	dir := t.TempDir()
	files := testcase.DefaultFiles().In(dir)
	require.NoError(t, c.Write(files))

	src := filepath.Join(dir, "conv3DV111.cl")
	require.NoError(t, os.WriteFile(src, []byte(kernelSource), 0o644))

	return Config{
		Backend:      backend.Host,
		Device:       backend.DeviceAny,
		Files:        files,
		KernelSource: src,
		KernelName:   "conv3DV111",
		TileM:        5,
		TileN:        3,
		Local:        dispatch.DefaultLocal,
		Strategy:     dispatch.ChannelMajor,
		Tolerance:    validate.Tolerances["default"],
	}, c
}

func ctx() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func TestRunPasses(t *testing.T) {
	for _, strategy := range []dispatch.Strategy{dispatch.ChannelMajor, dispatch.SpatialMajor} {
		t.Run(strategy.String(), func(t *testing.T) {
			cfg, c := setup(t)
			cfg.Strategy = strategy

			res, err := Run(ctx(), cfg)
			require.NoError(t, err)

			assert.NotEmpty(t, res.RunID)
			assert.Equal(t, c.Params, res.Params)
			assert.Equal(t, strategy, res.Plan.Strategy)
			require.NoError(t, res.Plan.Check())
			assert.Equal(t, int32(c.Params.Din), res.Scalars.Din)
			assert.Equal(t, backend.DeviceCPU, res.Device.Type)
			assert.Len(t, res.Timings.Stages, 10)
			assert.Equal(t, res.Event.ElapsedMicros(), res.Timings.KernelMicros)

			require.NotNil(t, res.Report)
			assert.True(t, res.Report.Pass(), res.Report.String())
			assert.Equal(t, len(c.Output), res.Report.Count)
		})
	}
}

func TestRunReportsMismatchWithoutError(t *testing.T) {
	cfg, _ := setup(t)
	truth, err := os.ReadFile(cfg.Files.Truth)
	require.NoError(t, err)
	v := math.Float32frombits(binary.LittleEndian.Uint32(truth))
	binary.LittleEndian.PutUint32(truth, math.Float32bits(v+1))
	require.NoError(t, os.WriteFile(cfg.Files.Truth, truth, 0o644))

	res, err := Run(ctx(), cfg)
	require.NoError(t, err)
	assert.False(t, res.Report.Pass())
	assert.Equal(t, 1, res.Report.Failed())

	var failures []validate.Element
	for e := range res.Report.Failures() {
		failures = append(failures, e)
	}
	require.Len(t, failures, 1)
	assert.Equal(t, 0, failures[0].Index)
}

func TestRunStageErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *Config)
		stage  Stage
		is     error
	}{
		{
			name:   "missing parameters",
			mutate: func(_ *testing.T, cfg *Config) { cfg.Files.Params += ".missing" },
			stage:  StageDecode,
			is:     hostbuf.ErrSourceUnavailable,
		},
		{
			name: "short parameters",
			mutate: func(t *testing.T, cfg *Config) {
				require.NoError(t, os.WriteFile(cfg.Files.Params, make([]byte, 40), 0o644))
			},
			stage: StageDecode,
			is:    convparams.ErrMalformedInput,
		},
		{
			name: "ungrouped channels",
			mutate: func(t *testing.T, cfg *Config) {
				blob, err := os.ReadFile(cfg.Files.Params)
				require.NoError(t, err)
				p, err := convparams.Decode(blob)
				require.NoError(t, err)
				p.Cin = 6
				require.NoError(t, os.WriteFile(cfg.Files.Params, p.Encode(), 0o644))
			},
			stage: StageLayout,
			is:    convparams.ErrInvalidChannelGrouping,
		},
		{
			name: "negative extent",
			mutate: func(t *testing.T, cfg *Config) {
				blob, err := os.ReadFile(cfg.Files.Params)
				require.NoError(t, err)
				p, err := convparams.Decode(blob)
				require.NoError(t, err)
				p.Win = -p.Win
				require.NoError(t, os.WriteFile(cfg.Files.Params, p.Encode(), 0o644))
			},
			stage: StageLayout,
			is:    convparams.ErrMalformedInput,
		},
		{
			name:   "no matching platform",
			mutate: func(_ *testing.T, cfg *Config) { cfg.Vendor = "NVIDIA" },
			stage:  StageDevice,
			is:     backend.ErrBackendFailure,
		},
		{
			name: "truncated input",
			mutate: func(t *testing.T, cfg *Config) {
				require.NoError(t, os.WriteFile(cfg.Files.Input, make([]byte, 16), 0o644))
			},
			stage: StageMaterialize,
			is:    hostbuf.ErrSourceUnavailable,
		},
		{
			name:   "no strategy",
			mutate: func(_ *testing.T, cfg *Config) { cfg.Strategy = 0 },
			stage:  StagePlan,
		},
		{
			name: "no kernel in source",
			mutate: func(t *testing.T, cfg *Config) {
				require.NoError(t, os.WriteFile(cfg.KernelSource, []byte("// empty"), 0o644))
			},
			stage: StageCompile,
			is:    backend.ErrBackendFailure,
		},
		{
			name:   "unknown kernel name",
			mutate: func(_ *testing.T, cfg *Config) { cfg.KernelName = "conv3DV222" },
			stage:  StageCompile,
			is:     backend.ErrBackendFailure,
		},
		{
			name: "ground truth size",
			mutate: func(t *testing.T, cfg *Config) {
				require.NoError(t, os.WriteFile(cfg.Files.Truth, make([]byte, 8), 0o644))
			},
			stage: StageValidate,
			is:    validate.ErrSizeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := setup(t)
			tt.mutate(t, &cfg)

			_, err := Run(ctx(), cfg)
			require.Error(t, err)
			var se *StageError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.stage, se.Stage)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestRunConfigErrors(t *testing.T) {
	_, err := Run(ctx(), Config{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "kernel source path is required")
	assert.ErrorContains(t, err, "parameters file is required")
	var se *StageError
	assert.False(t, errors.As(err, &se))
}

func TestRunCancelled(t *testing.T) {
	cfg, _ := setup(t)
	c, cancel := context.WithCancel(ctx())
	cancel()
	_, err := Run(c, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageDecode, se.Stage)
}

func TestStageErrorMessage(t *testing.T) {
	err := fail(StageBind, errors.New("bad arg"))
	assert.EqualError(t, err, "bind: bad arg")
	assert.NoError(t, fail(StageBind, nil))
}

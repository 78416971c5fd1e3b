package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignProperties(t *testing.T) {
	for v := 1; v <= 200; v++ {
		for b := 1; b <= 40; b++ {
			a := Align(v, b)
			require.GreaterOrEqual(t, a, v, "align(%d,%d)", v, b)
			require.Zero(t, a%b, "align(%d,%d)", v, b)
			require.Less(t, a-v, b, "align(%d,%d)", v, b)
		}
	}
	assert.Equal(t, 0, Align(0, 4))
}

func TestChannelMajorScenario(t *testing.T) {
	p, err := New(Request{
		Wout: 4, Hout: 4, Dout: 4, Cgout: 2,
		TileM: 5, TileN: 3,
		Local:    NDRange{32, 4, 4},
		Strategy: ChannelMajor,
	})
	require.NoError(t, err)
	require.NoError(t, p.Check())
	for i := range p.Global {
		assert.Zero(t, p.Global[i]%p.Local[i], "axis %d", i)
	}
	assert.Equal(t, NDRange{32, 4, 4}, p.Global)
	assert.Equal(t, 6, p.AlignedDout)
}

func TestGlobalIsMultipleOfLocal(t *testing.T) {
	locals := []NDRange{{32, 4, 4}, {16, 8, 2}, {7, 3, 5}, {1, 1, 1}}
	for _, strategy := range []Strategy{ChannelMajor, SpatialMajor} {
		for _, local := range locals {
			for m := 1; m <= 6; m++ {
				for n := 1; n <= 6; n++ {
					for _, ext := range [][4]int{{0, 0, 0, 0}, {1, 1, 1, 1}, {4, 4, 4, 2}, {13, 7, 3, 5}, {64, 33, 17, 16}} {
						p, err := New(Request{
							Wout: ext[0], Hout: ext[1], Dout: ext[2], Cgout: ext[3],
							TileM: m, TileN: n, Local: local, Strategy: strategy,
						})
						require.NoError(t, err)
						for i := range p.Global {
							require.GreaterOrEqual(t, p.Global[i], 0)
							require.Zero(t, p.Global[i]%local[i], "%v %v M=%d N=%d ext=%v", strategy, local, m, n, ext)
						}
					}
				}
			}
		}
	}
}

func TestChannelMajorCoversOutput(t *testing.T) {
	// Every tile of the flattened Dout x Cgout extent and every spatial tile
	// gets a work-item.
	for dout := 1; dout <= 20; dout++ {
		for cg := 1; cg <= 20; cg++ {
			p, err := New(Request{Wout: 9, Hout: 11, Dout: dout, Cgout: cg, TileM: 5, TileN: 3, Local: DefaultLocal, Strategy: ChannelMajor})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, p.Global[0], Align(dout*cg, 3)/3)
			assert.GreaterOrEqual(t, p.Global[1]*5, 11)
			assert.GreaterOrEqual(t, p.Global[2]*5, 9)
		}
	}
}

func TestSpatialMajor(t *testing.T) {
	p, err := New(Request{Wout: 33, Hout: 5, Dout: 3, Cgout: 2, TileM: 5, TileN: 3, Local: DefaultLocal, Strategy: SpatialMajor})
	require.NoError(t, err)
	assert.Equal(t, NDRange{64, 8, 4}, p.Global)
	assert.Equal(t, 64*8*4, p.WorkItems())
}

func TestBuildOptions(t *testing.T) {
	p, err := New(Request{Wout: 4, Hout: 4, Dout: 4, Cgout: 2, TileM: 5, TileN: 3, Local: DefaultLocal, Strategy: ChannelMajor, FastMath: true})
	require.NoError(t, err)
	assert.Equal(t, "-cl-fast-relaxed-math -DMW=5 -DMH=5 -DMD=3 -DMDC=3 -DDOUT=6 -DWGX=4 -DWGY=4 -DWGZ=32 -DSTRATEGY=1", p.BuildOptions)

	p, err = New(Request{Wout: 4, Hout: 4, Dout: 4, Cgout: 2, TileM: 2, TileN: 2, Local: NDRange{8, 2, 1}, Strategy: SpatialMajor})
	require.NoError(t, err)
	assert.Equal(t, "-DMW=2 -DMH=2 -DMD=2 -DMDC=2 -DDOUT=4 -DWGX=1 -DWGY=2 -DWGZ=8 -DSTRATEGY=2", p.BuildOptions)
}

func TestNewRejectsBadRequests(t *testing.T) {
	base := Request{Wout: 4, Hout: 4, Dout: 4, Cgout: 2, TileM: 5, TileN: 3, Local: DefaultLocal, Strategy: ChannelMajor}

	r := base
	r.Strategy = 0
	_, err := New(r)
	require.Error(t, err)

	r = base
	r.TileN = 0
	_, err = New(r)
	require.Error(t, err)

	r = base
	r.Local = NDRange{32, 0, 4}
	_, err = New(r)
	require.Error(t, err)

	r = base
	r.Dout = -1
	_, err = New(r)
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	require.NoError(t, Plan{Global: NDRange{64, 8, 4}, Local: DefaultLocal}.Check())
	require.Error(t, Plan{Global: NDRange{30, 8, 4}, Local: DefaultLocal}.Check())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Channel-Major")
	require.NoError(t, err)
	assert.Equal(t, ChannelMajor, s)

	s, err = ParseStrategy("spatial")
	require.NoError(t, err)
	assert.Equal(t, SpatialMajor, s)

	_, err = ParseStrategy("")
	require.Error(t, err)
	_, err = ParseStrategy("diagonal")
	require.Error(t, err)
	assert.Equal(t, "Strategy(0)", Strategy(0).String())
}

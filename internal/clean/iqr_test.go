package clean_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisview/reanalysis-etl/internal/clean"
	"github.com/aerisview/reanalysis-etl/internal/grid"
)

func TestIQRFilter_NullsSingleSpike(t *testing.T) {
	// 24 hourly readings of 40 with one 1000 spike at the same cell. The
	// quartiles collapse to 40, so the fence admits only 40 and the spike is
	// nulled; the surviving mean is exactly 40.
	col := make([]float64, 25)
	for i := range col {
		col[i] = 40
	}
	col[12] = 1000
	f := frameWith(map[string][]float64{"pm25": col})

	flt := clean.IQRFilter{K: 1.5, GroupCeiling: 150000}
	nulled := flt.Apply(f, []string{"pm25"})

	require.Equal(t, 1, nulled)
	sum, n := 0.0, 0
	for _, v := range f.Vars["pm25"] {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	require.Equal(t, 24, n)
	assert.Equal(t, 40.0, sum/float64(n))
}

func TestCleanedHourlyReadingsCollapseToDailyMean(t *testing.T) {
	// 24 hourly items for one cell: 23 readings of 40 and one 1000 spike.
	// Cleaning runs on the stacked hourly rows, so the spike is nulled before
	// the daily collapse and the per-cell mean is exactly 40. Collapsing
	// first would average the spike in (mean 80) beyond any filter's reach.
	ts := time.Date(2013, 1, 5, 0, 0, 0, 0, time.UTC)
	items := make([]grid.Item, 24)
	for h := range items {
		v := 40.0
		if h == 12 {
			v = 1000
		}
		items[h] = grid.Item{
			Lat:  grid.Array{Data: []float64{30}, Shape: []int{1}},
			Lon:  grid.Array{Data: []float64{110}, Shape: []int{1}},
			Vars: map[string]grid.Array{"pm25": {Data: []float64{v}, Shape: []int{1}}},
			Time: ts.Add(time.Duration(h) * time.Hour),
		}
	}

	f, err := grid.Build(items, grid.ModeExpand)
	require.NoError(t, err)
	require.Equal(t, 24, f.Len())

	nulled := clean.ApplyBounds(f, clean.DefaultBounds())
	flt := clean.IQRFilter{K: 1.5, GroupCeiling: 150000}
	nulled += flt.Apply(f, []string{"pm25"})
	require.Equal(t, 1, nulled)

	daily := grid.Collapse(f)
	require.Equal(t, 1, daily.Len())
	assert.Equal(t, 40.0, daily.Vars["pm25"][0])
}

func TestIQRFilter_SecondPassIsNoOp(t *testing.T) {
	col := []float64{40, 40, 40, 40, 40, 40, 40, 40, 1000}
	f := frameWith(map[string][]float64{"pm25": col})

	flt := clean.IQRFilter{K: 1.5, GroupCeiling: 150000}
	first := flt.Apply(f, []string{"pm25"})
	second := flt.Apply(f, []string{"pm25"})

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestIQRFilter_GroupsByCoordinate(t *testing.T) {
	// Two cells: the spike in cell B must not widen cell A's fence.
	f := grid.NewFrame(8)
	for i := 0; i < 4; i++ {
		f.Lat[i], f.Lon[i] = 30.0, 110.0
	}
	for i := 4; i < 8; i++ {
		f.Lat[i], f.Lon[i] = 31.0, 111.0
	}
	f.Vars["pm25"] = []float64{10, 10, 10, 10, 500, 500, 500, 9000}

	flt := clean.IQRFilter{K: 1.5, GroupCeiling: 150000}
	nulled := flt.Apply(f, []string{"pm25"})

	assert.Equal(t, 1, nulled)
	for i := 0; i < 4; i++ {
		assert.Equal(t, 10.0, f.Vars["pm25"][i])
	}
	assert.True(t, math.IsNaN(f.Vars["pm25"][7]))
}

func TestIQRFilter_GroupCeilingFallsBackToGlobal(t *testing.T) {
	f := grid.NewFrame(4)
	for i := range f.Lat {
		f.Lat[i] = 30.0 + float64(i) // four distinct cells
		f.Lon[i] = 110.0
	}
	f.Vars["pm25"] = []float64{40, 40, 40, 9000}

	// Per-cell each group has one value and nothing would be nulled; the
	// ceiling forces global quantiles, which catch the spike.
	flt := clean.IQRFilter{K: 1.5, GroupCeiling: 2}
	nulled := flt.Apply(f, []string{"pm25"})

	assert.Equal(t, 1, nulled)
	assert.True(t, math.IsNaN(f.Vars["pm25"][3]))
}

func TestIQRFilter_AllMissingColumn(t *testing.T) {
	f := frameWith(map[string][]float64{
		"pm25": {math.NaN(), math.NaN(), math.NaN()},
	})

	flt := clean.IQRFilter{K: 1.5, GroupCeiling: 150000}
	assert.Equal(t, 0, flt.Apply(f, []string{"pm25", "absent"}))
}

func TestPercentileClip_ClipsNotNulls(t *testing.T) {
	col := make([]float64, 1001)
	for i := range col {
		col[i] = float64(i)
	}
	f := frameWith(map[string][]float64{"pm25": col})

	clean.PercentileClip(f, []string{"pm25"}, 0.005, 0.995)

	// Linear-interpolation quantiles over 0..1000: pos = q*(n-1).
	lo := 0.005 * 1000
	hi := 0.995 * 1000
	for _, v := range f.Vars["pm25"] {
		require.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
	}
	assert.Equal(t, lo, f.Vars["pm25"][0])
	assert.Equal(t, hi, f.Vars["pm25"][1000])
}

package clean_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisview/reanalysis-etl/internal/clean"
	"github.com/aerisview/reanalysis-etl/internal/grid"
)

func frameWith(vals map[string][]float64) *grid.Frame {
	n := 0
	for _, col := range vals {
		n = len(col)
		break
	}
	f := grid.NewFrame(n)
	for i := 0; i < n; i++ {
		f.Lat[i] = 30.0
		f.Lon[i] = 110.0
	}
	for name, col := range vals {
		f.Vars[name] = append([]float64(nil), col...)
	}
	return f
}

func TestApplyBounds_NullsOutOfRange(t *testing.T) {
	f := frameWith(map[string][]float64{
		"pm25": {-1, 0, 400, 800, 801},
		"temp": {193.15, 150, 300, 333.15, 400},
	})

	nulled := clean.ApplyBounds(f, clean.DefaultBounds())

	assert.Equal(t, 4, nulled)
	assert.True(t, math.IsNaN(f.Vars["pm25"][0]))
	assert.Equal(t, 0.0, f.Vars["pm25"][1])
	assert.Equal(t, 800.0, f.Vars["pm25"][3])
	assert.True(t, math.IsNaN(f.Vars["pm25"][4]))
	assert.True(t, math.IsNaN(f.Vars["temp"][1]))
	assert.True(t, math.IsNaN(f.Vars["temp"][4]))
}

func TestApplyBounds_PostCondition(t *testing.T) {
	f := frameWith(map[string][]float64{
		"rh":   {-50, 0, 50, 100, 150, math.NaN()},
		"psfc": {0, 50000, 101325, 110000, 200000, math.NaN()},
	})

	bounds := clean.DefaultBounds()
	clean.ApplyBounds(f, bounds)

	// Every surviving value sits inside its closed interval.
	for name, r := range bounds {
		col, ok := f.Vars[name]
		if !ok {
			continue
		}
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			assert.GreaterOrEqual(t, v, r.Min, "%s[%d]", name, i)
			assert.LessOrEqual(t, v, r.Max, "%s[%d]", name, i)
		}
	}
}

func TestApplyBounds_WindUnbounded(t *testing.T) {
	f := frameWith(map[string][]float64{
		"u": {-120, 0, 120},
		"v": {-120, 0, 120},
	})

	nulled := clean.ApplyBounds(f, clean.DefaultBounds())

	require.Equal(t, 0, nulled)
	for _, v := range f.Vars["u"] {
		assert.False(t, math.IsNaN(v))
	}
}

func TestApplyBounds_MissingStaysMissing(t *testing.T) {
	f := frameWith(map[string][]float64{
		"pm25": {math.NaN(), 10},
	})

	nulled := clean.ApplyBounds(f, clean.DefaultBounds())

	assert.Equal(t, 0, nulled)
	assert.True(t, math.IsNaN(f.Vars["pm25"][0]))
}

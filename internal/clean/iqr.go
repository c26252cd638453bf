package clean

import (
	"math"
	"sort"

	"github.com/aerisview/reanalysis-etl/internal/grid"
)

// IQRFilter nulls statistical outliers per coordinate group. Values outside
// [Q1 - K·IQR, Q3 + K·IQR] become missing. When the number of distinct
// groups exceeds GroupCeiling the filter silently falls back to global
// (ungrouped) quantiles for every column to bound computation cost.
type IQRFilter struct {
	K            float64
	GroupCeiling int
}

// Apply filters the named columns in place and returns the number of values
// nulled.
func (flt IQRFilter) Apply(f *grid.Frame, cols []string) int {
	valid := presentColumns(f, cols)
	if len(valid) == 0 || f.Len() == 0 {
		return 0
	}

	groups := make(map[grid.CoordKey][]int)
	for i := 0; i < f.Len(); i++ {
		key := grid.Round4(f.Lat[i], f.Lon[i])
		groups[key] = append(groups[key], i)
	}

	if flt.GroupCeiling > 0 && len(groups) > flt.GroupCeiling {
		return flt.applyGlobal(f, valid)
	}

	nulled := 0
	for _, name := range valid {
		col := f.Vars[name]
		for _, rows := range groups {
			nulled += nullOutsideFence(col, rows, flt.K)
		}
	}
	return nulled
}

// applyGlobal nulls outliers against per-column global quantiles.
func (flt IQRFilter) applyGlobal(f *grid.Frame, cols []string) int {
	nulled := 0
	all := make([]int, f.Len())
	for i := range all {
		all[i] = i
	}
	for _, name := range cols {
		nulled += nullOutsideFence(f.Vars[name], all, flt.K)
	}
	return nulled
}

// nullOutsideFence computes the IQR fence over the given rows of col and
// nulls values outside it. Missing values never trip the fence.
func nullOutsideFence(col []float64, rows []int, k float64) int {
	values := make([]float64, 0, len(rows))
	for _, i := range rows {
		if !math.IsNaN(col[i]) {
			values = append(values, col[i])
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1
	lower := q1 - k*iqr
	upper := q3 + k*iqr

	nulled := 0
	for _, i := range rows {
		v := col[i]
		if math.IsNaN(v) {
			continue
		}
		if v < lower || v > upper {
			col[i] = math.NaN()
			nulled++
		}
	}
	return nulled
}

// PercentileClip clips each named column to its [low, high] quantile range.
// This is a lossy clip, not a null-out: a deliberately different policy from
// IQR mode, used as the fast path when statistical refinement is downgraded.
func PercentileClip(f *grid.Frame, cols []string, low, high float64) {
	for _, name := range presentColumns(f, cols) {
		col := f.Vars[name]
		values := make([]float64, 0, len(col))
		for _, v := range col {
			if !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		lo := quantile(values, low)
		hi := quantile(values, high)
		for i, v := range col {
			switch {
			case math.IsNaN(v):
			case v < lo:
				col[i] = lo
			case v > hi:
				col[i] = hi
			}
		}
	}
}

// quantile returns the q-th quantile of sorted values using the
// linear-interpolation method.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func presentColumns(f *grid.Frame, cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, name := range cols {
		if _, ok := f.Vars[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

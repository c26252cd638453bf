// Package clean implements the two-stage outlier filter: physical-bound
// substitution followed by statistical refinement (grouped IQR or a global
// percentile clip).
package clean

import (
	"math"

	"github.com/aerisview/reanalysis-etl/internal/grid"
)

// Range is a closed physical plausibility interval for one variable.
type Range struct {
	Min float64
	Max float64
}

// Bounds maps variable names to their physical plausibility range.
type Bounds map[string]Range

// DefaultBounds returns the physical plausibility ranges for the reanalysis
// variables. Wind components u and v are deliberately unbounded.
func DefaultBounds() Bounds {
	return Bounds{
		"pm25": {0, 800},             // fine particulates, µg/m³
		"pm10": {0, 1500},            // coarse particulates can exceed pm25 during dust events
		"so2":  {0, 600},             // µg/m³
		"no2":  {0, 500},             // µg/m³
		"co":   {0, 30},              // mg/m³
		"o3":   {0, 500},             // µg/m³
		"temp": {193.15, 333.15},     // kelvin
		"rh":   {0, 100},             // percent
		"psfc": {50000, 110000},      // surface pressure, Pa
	}
}

// ApplyBounds nulls every value outside its variable's closed interval.
// Rows are never removed. Returns the number of values nulled.
func ApplyBounds(f *grid.Frame, bounds Bounds) int {
	nulled := 0
	for name, r := range bounds {
		col, ok := f.Vars[name]
		if !ok {
			continue
		}
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			if v < r.Min || v > r.Max {
				col[i] = math.NaN()
				nulled++
			}
		}
	}
	return nulled
}

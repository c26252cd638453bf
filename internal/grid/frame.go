package grid

import (
	"math"
	"time"
)

// TrackedVars are the pollutant and meteorological variables carried through
// the pipeline. Coordinate variables are handled separately.
var TrackedVars = []string{"pm25", "pm10", "so2", "no2", "co", "o3", "temp", "rh", "psfc", "u", "v"}

// Array is a raw variable array decoded from a dataset, flattened row-major
// with its original shape retained.
type Array struct {
	Data  []float64
	Shape []int
}

// Size returns the number of elements.
func (a Array) Size() int { return len(a.Data) }

// Scalar reports whether the array holds a single value.
func (a Array) Scalar() bool { return len(a.Data) == 1 }

// Item is one hourly grid: coordinate arrays plus zero or more named
// variable arrays of matching cell count.
type Item struct {
	Lat  Array
	Lon  Array
	Vars map[string]Array
	Time time.Time
}

// Frame is a flat tabular view of grid samples. Lat, Lon and every variable
// column have identical length; NaN marks a missing value. Time is nil when
// rows carry no timestamp (mean-aggregated frames).
type Frame struct {
	Lat  []float64
	Lon  []float64
	Time []time.Time
	Vars map[string][]float64
}

// NewFrame allocates a frame of n rows with no variable columns.
func NewFrame(n int) *Frame {
	return &Frame{
		Lat:  make([]float64, n),
		Lon:  make([]float64, n),
		Vars: make(map[string][]float64),
	}
}

// Len returns the row count.
func (f *Frame) Len() int { return len(f.Lat) }

// Var returns the named column, creating it filled with NaN if absent.
func (f *Frame) Var(name string) []float64 {
	if col, ok := f.Vars[name]; ok {
		return col
	}
	col := nanColumn(f.Len())
	f.Vars[name] = col
	return col
}

// EnsureVars guarantees every named column exists, filling absent ones with NaN.
func (f *Frame) EnsureVars(names []string) {
	for _, name := range names {
		f.Var(name)
	}
}

// Filter keeps only rows where keep[i] is true and returns the filtered frame.
func (f *Frame) Filter(keep []bool) *Frame {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	out := NewFrame(n)
	if f.Time != nil {
		out.Time = make([]time.Time, n)
	}
	for name := range f.Vars {
		out.Vars[name] = make([]float64, n)
	}
	j := 0
	for i, k := range keep {
		if !k {
			continue
		}
		out.Lat[j] = f.Lat[i]
		out.Lon[j] = f.Lon[i]
		if f.Time != nil {
			out.Time[j] = f.Time[i]
		}
		for name, col := range f.Vars {
			out.Vars[name][j] = col[i]
		}
		j++
	}
	return out
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

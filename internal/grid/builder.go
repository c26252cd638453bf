package grid

import (
	"errors"
	"math"
	"sort"
)

// Mode selects how hourly items collapse into a frame.
type Mode int

const (
	// ModeMean produces one row per grid cell holding the per-cell mean of
	// each variable across all items, ignoring missing values. No timestamp
	// column is emitted.
	ModeMean Mode = iota
	// ModeExpand emits one row per (cell, item) pair carrying the item's
	// timestamp. Used only when row-level time granularity is required.
	ModeExpand
)

// ErrNoCoordinates is returned in mean mode when the first item carries no
// usable latitude/longitude arrays.
var ErrNoCoordinates = errors.New("grid: items must include lat and lon")

// Build flattens hourly items into one tabular frame.
func Build(items []Item, mode Mode) (*Frame, error) {
	if len(items) == 0 {
		return NewFrame(0), nil
	}
	if mode == ModeMean {
		return buildMean(items)
	}
	return buildExpand(items), nil
}

// buildMean stacks every item's rows and collapses them to per-cell means.
func buildMean(items []Item) (*Frame, error) {
	if _, _, ok := mesh(items[0].Lat, items[0].Lon); !ok {
		return nil, ErrNoCoordinates
	}
	return Collapse(buildExpand(items)), nil
}

// Collapse reduces a frame to one row per rounded coordinate, holding the
// NaN-ignoring mean of each variable across that coordinate's rows. The
// timestamp column is dropped; rows keep first-appearance order.
func Collapse(f *Frame) *Frame {
	index := make(map[CoordKey]int)
	firstRow := make([]int, 0, f.Len())
	rowCell := make([]int, f.Len())
	for i := 0; i < f.Len(); i++ {
		key := Round4(f.Lat[i], f.Lon[i])
		j, ok := index[key]
		if !ok {
			j = len(firstRow)
			index[key] = j
			firstRow = append(firstRow, i)
		}
		rowCell[i] = j
	}

	out := NewFrame(len(firstRow))
	for j, i := range firstRow {
		out.Lat[j] = f.Lat[i]
		out.Lon[j] = f.Lon[i]
	}
	for name, col := range f.Vars {
		sums := make([]float64, len(firstRow))
		counts := make([]int, len(firstRow))
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			sums[rowCell[i]] += v
			counts[rowCell[i]]++
		}
		dst := nanColumn(len(firstRow))
		for j := range dst {
			if counts[j] > 0 {
				dst[j] = sums[j] / float64(counts[j])
			}
		}
		out.Vars[name] = dst
	}
	return out
}

// buildExpand emits one row per grid cell per item. Items without usable
// coordinates are skipped entirely.
func buildExpand(items []Item) *Frame {
	names := unionVarNames(items)

	frame := NewFrame(0)
	for _, name := range names {
		frame.Vars[name] = nil
	}
	for _, it := range items {
		lat, lon, ok := mesh(it.Lat, it.Lon)
		if !ok {
			continue
		}
		n := len(lat)
		frame.Lat = append(frame.Lat, lat...)
		frame.Lon = append(frame.Lon, lon...)
		for i := 0; i < n; i++ {
			frame.Time = append(frame.Time, it.Time)
		}
		for _, name := range names {
			frame.Vars[name] = append(frame.Vars[name], cellValues(it.Vars[name], n)...)
		}
	}
	return frame
}

// mesh expands coordinate arrays into flat per-cell lat/lon slices. Two 1D
// arrays are crossed into a full mesh (longitude varying fastest); 2D arrays
// are used as-is. Returns ok=false when either coordinate is unusable.
func mesh(lat, lon Array) (latFlat, lonFlat []float64, ok bool) {
	if lat.Size() == 0 || lon.Size() == 0 {
		return nil, nil, false
	}
	if len(lat.Shape) <= 1 && len(lon.Shape) <= 1 {
		m, n := lat.Size(), lon.Size()
		latFlat = make([]float64, 0, m*n)
		lonFlat = make([]float64, 0, m*n)
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				latFlat = append(latFlat, lat.Data[i])
				lonFlat = append(lonFlat, lon.Data[j])
			}
		}
		return latFlat, lonFlat, true
	}
	if lat.Size() != lon.Size() {
		return nil, nil, false
	}
	return lat.Data, lon.Data, true
}

// cellValues adapts a variable array to n cells: matching sizes pass through,
// scalars broadcast, anything else is treated as entirely missing.
func cellValues(a Array, n int) []float64 {
	switch {
	case a.Size() == n:
		return a.Data
	case a.Scalar():
		col := make([]float64, n)
		for i := range col {
			col[i] = a.Data[0]
		}
		return col
	default:
		return nanColumn(n)
	}
}

func unionVarNames(items []Item) []string {
	seen := make(map[string]bool)
	for _, it := range items {
		for name := range it.Vars {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package archive

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/hdf5"

	"github.com/aerisview/reanalysis-etl/internal/grid"
)

// engine is one named strategy for opening a NetCDF byte buffer. Engines are
// tried in order; each records only its own failure so the final error can
// name every attempt.
type engine struct {
	name string
	open func(rsc api.ReadSeekerCloser) (api.Group, error)
}

// byteEngines are the in-memory-capable engines, in preference order:
// NetCDF-4 (HDF5 container) first, then the classic CDF format.
var byteEngines = []engine{
	{name: "hdf5", open: hdf5.New},
	{name: "cdf", open: cdf.New},
}

// nopCloser adapts an in-memory byte buffer to api.ReadSeekerCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// openBytes opens a NetCDF dataset from raw bytes using the first engine
// that accepts it.
func openBytes(raw []byte) (api.Group, []attempt) {
	attempts := make([]attempt, 0, len(byteEngines))
	for _, eng := range byteEngines {
		g, err := eng.open(nopCloser{bytes.NewReader(raw)})
		if err == nil {
			return g, attempts
		}
		attempts = append(attempts, attempt{engine: eng.name, err: err})
	}
	return nil, attempts
}

// openFile opens a NetCDF dataset from disk, auto-detecting the format.
func openFile(path string) (api.Group, error) {
	return netcdf.Open(path)
}

// attempt records one failed engine try for diagnostics.
type attempt struct {
	engine string
	err    error
}

// decodeItem eagerly materializes one hourly grid from an open dataset.
// Missing variables are simply absent; a variable whose values cannot be
// decoded is treated as entirely missing, never an error.
func decodeItem(g api.Group, ts time.Time) (grid.Item, error) {
	item := grid.Item{Vars: make(map[string]grid.Array), Time: ts}

	// 2D coordinate variables take precedence over 1D axes.
	if arr, ok := readArray(g, "lat2d"); ok {
		item.Lat = arr
	} else if arr, ok := readArray(g, "lat"); ok {
		item.Lat = arr
	}
	if arr, ok := readArray(g, "lon2d"); ok {
		item.Lon = arr
	} else if arr, ok := readArray(g, "lon"); ok {
		item.Lon = arr
	}
	if item.Lat.Size() == 0 || item.Lon.Size() == 0 {
		return item, fmt.Errorf("dataset has no usable lat/lon variables")
	}

	for _, name := range grid.TrackedVars {
		if arr, ok := readArray(g, name); ok {
			item.Vars[name] = arr
		}
	}
	return item, nil
}

func readArray(g api.Group, name string) (grid.Array, bool) {
	v, err := g.GetVariable(name)
	if err != nil || v == nil {
		return grid.Array{}, false
	}
	arr, err := flatten(v.Values)
	if err != nil {
		return grid.Array{}, false
	}
	return arr, true
}

// flatten converts an arbitrarily nested numeric slice into a flat row-major
// float64 array with its shape.
func flatten(values interface{}) (grid.Array, error) {
	var arr grid.Array
	if err := walkValues(reflect.ValueOf(values), 0, &arr); err != nil {
		return grid.Array{}, err
	}
	return arr, nil
}

func walkValues(rv reflect.Value, depth int, arr *grid.Array) error {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		if depth == len(arr.Shape) {
			arr.Shape = append(arr.Shape, n)
		}
		for i := 0; i < n; i++ {
			if err := walkValues(rv.Index(i), depth+1, arr); err != nil {
				return err
			}
		}
		return nil
	case reflect.Float32, reflect.Float64:
		arr.Data = append(arr.Data, rv.Float())
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		arr.Data = append(arr.Data, float64(rv.Int()))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		arr.Data = append(arr.Data, float64(rv.Uint()))
		return nil
	case reflect.Interface:
		return walkValues(rv.Elem(), depth, arr)
	default:
		return fmt.Errorf("unsupported variable element kind %s", rv.Kind())
	}
}

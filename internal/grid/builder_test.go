package grid_test

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisview/reanalysis-etl/internal/grid"
)

func item(ts time.Time, lat, lon []float64, vars map[string][]float64) grid.Item {
	it := grid.Item{
		Lat:  grid.Array{Data: lat, Shape: []int{len(lat)}},
		Lon:  grid.Array{Data: lon, Shape: []int{len(lon)}},
		Vars: make(map[string]grid.Array),
		Time: ts,
	}
	for name, data := range vars {
		it.Vars[name] = grid.Array{Data: data, Shape: []int{len(data)}}
	}
	return it
}

func TestBuild_MeanCrossesAxes(t *testing.T) {
	ts := time.Date(2013, 1, 5, 0, 0, 0, 0, time.UTC)
	it := item(ts, []float64{30, 31}, []float64{110, 111, 112}, map[string][]float64{
		"pm25": {1, 2, 3, 4, 5, 6},
	})

	f, err := grid.Build([]grid.Item{it}, grid.ModeMean)
	require.NoError(t, err)
	require.Equal(t, 6, f.Len())

	// Longitude varies fastest when crossing two 1D axes.
	wantLat := []float64{30, 30, 30, 31, 31, 31}
	wantLon := []float64{110, 111, 112, 110, 111, 112}
	assert.Empty(t, cmp.Diff(wantLat, f.Lat))
	assert.Empty(t, cmp.Diff(wantLon, f.Lon))
	assert.Empty(t, cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, f.Vars["pm25"]))
	assert.Nil(t, f.Time)
}

func TestBuild_MeanIgnoresMissing(t *testing.T) {
	ts := time.Date(2013, 1, 5, 0, 0, 0, 0, time.UTC)
	a := item(ts, []float64{30}, []float64{110}, map[string][]float64{"pm25": {10}})
	b := item(ts.Add(time.Hour), []float64{30}, []float64{110}, map[string][]float64{"pm25": {math.NaN()}})
	c := item(ts.Add(2*time.Hour), []float64{30}, []float64{110}, map[string][]float64{"pm25": {30}})

	f, err := grid.Build([]grid.Item{a, b, c}, grid.ModeMean)
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	assert.Equal(t, 20.0, f.Vars["pm25"][0])
}

func TestBuild_MeanWithoutCoordinates(t *testing.T) {
	it := grid.Item{Vars: map[string]grid.Array{}}
	_, err := grid.Build([]grid.Item{it}, grid.ModeMean)
	assert.ErrorIs(t, err, grid.ErrNoCoordinates)
}

func TestBuild_ExpandKeepsTimestamps(t *testing.T) {
	ts := time.Date(2013, 1, 5, 0, 0, 0, 0, time.UTC)
	a := item(ts, []float64{30}, []float64{110}, map[string][]float64{"pm25": {10}})
	b := item(ts.Add(time.Hour), []float64{30}, []float64{110}, map[string][]float64{"pm25": {20}})

	f, err := grid.Build([]grid.Item{a, b}, grid.ModeExpand)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, ts, f.Time[0])
	assert.Equal(t, ts.Add(time.Hour), f.Time[1])
	assert.Empty(t, cmp.Diff([]float64{10, 20}, f.Vars["pm25"]))
}

func TestBuild_ExpandSkipsItemsWithoutCoords(t *testing.T) {
	ts := time.Date(2013, 1, 5, 0, 0, 0, 0, time.UTC)
	good := item(ts, []float64{30}, []float64{110}, map[string][]float64{"pm25": {10}})
	bad := grid.Item{Vars: map[string]grid.Array{"pm25": {Data: []float64{99}, Shape: []int{1}}}, Time: ts}

	f, err := grid.Build([]grid.Item{bad, good}, grid.ModeExpand)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 10.0, f.Vars["pm25"][0])
}

func TestBuild_MismatchedVariableBecomesMissing(t *testing.T) {
	ts := time.Date(2013, 1, 5, 0, 0, 0, 0, time.UTC)
	it := item(ts, []float64{30, 31}, []float64{110, 111}, map[string][]float64{
		"pm25": {1, 2, 3}, // size matches neither the 4 cells nor a scalar
	})

	f, err := grid.Build([]grid.Item{it}, grid.ModeMean)
	require.NoError(t, err)
	require.Equal(t, 4, f.Len())
	for _, v := range f.Vars["pm25"] {
		assert.True(t, math.IsNaN(v))
	}
}

func TestBuild_ScalarBroadcasts(t *testing.T) {
	ts := time.Date(2013, 1, 5, 0, 0, 0, 0, time.UTC)
	it := item(ts, []float64{30, 31}, []float64{110, 111}, nil)
	it.Vars["psfc"] = grid.Array{Data: []float64{101325}, Shape: nil}

	f, err := grid.Build([]grid.Item{it}, grid.ModeMean)
	require.NoError(t, err)
	for _, v := range f.Vars["psfc"] {
		assert.Equal(t, 101325.0, v)
	}
}

func TestCollapse_MeansPerCellAndDropsTime(t *testing.T) {
	f := grid.NewFrame(5)
	f.Lat = []float64{30, 30, 30, 31, 30.00001}
	f.Lon = []float64{110, 110, 110, 111, 110.00002}
	f.Time = make([]time.Time, 5)
	f.Vars["pm25"] = []float64{10, 30, math.NaN(), 7, 20}

	out := grid.Collapse(f)
	require.Equal(t, 2, out.Len())
	assert.Nil(t, out.Time)
	assert.Empty(t, cmp.Diff([]float64{30, 31}, out.Lat))
	// 10, 30 and 20 share the rounded cell; the NaN contributes nothing.
	assert.Equal(t, 20.0, out.Vars["pm25"][0])
	assert.Equal(t, 7.0, out.Vars["pm25"][1])
}

func TestRound4_DeduplicatesNearbyCoordinates(t *testing.T) {
	a := grid.Round4(30.12341, 110.00001)
	b := grid.Round4(30.123449, 110.0000149)
	assert.Equal(t, a, b)

	lat, lon := a.LatLon()
	assert.InDelta(t, 30.1234, lat, 1e-9)
	assert.InDelta(t, 110.0, lon, 1e-9)
}

package export_test

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisview/reanalysis-etl/internal/config"
	"github.com/aerisview/reanalysis-etl/internal/export"
	"github.com/aerisview/reanalysis-etl/internal/store"
)

func cityMonthly(month, city string, mean float64) store.MonthlyRow {
	return store.MonthlyRow{
		Month: month, Lat: math.NaN(), Lon: math.NaN(),
		Province: "广东省", City: city, AdminName: city, NameSource: "native",
		Variable: "pm25", Mean: mean, Max: mean, Min: mean,
		Count: 100, TotalDays: 30, TotalRecords: 100,
	}
}

func TestExport_WritesBothDocuments(t *testing.T) {
	root := t.TempDir()
	s := &store.Store{
		ProcessedDir:  filepath.Join(root, "processed"),
		AggregatedDir: filepath.Join(root, "aggregated"),
		Format:        store.FormatCSV,
	}
	g := config.GranularityCity

	_, err := s.WriteMonthly(g, 2013, 1, []store.MonthlyRow{
		cityMonthly("2013-01", "广州市", 42.456),
		cityMonthly("2013-01", "深圳市", 30),
		{Month: "2013-01", Variable: "temp", Mean: 288, City: "广州市",
			Lat: math.NaN(), Lon: math.NaN()}, // other variable, excluded
	})
	require.NoError(t, err)
	_, err = s.WriteMonthly(g, 2013, 2, []store.MonthlyRow{
		cityMonthly("2013-02", "广州市", 50),
	})
	require.NoError(t, err)

	e := &export.Exporter{Store: s, OutputDir: filepath.Join(root, "output")}
	paths, err := e.Export(g, []int{2013})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	// Region names carry the province to keep same-named cities apart.
	var mapSeries map[string][]export.MapEntry
	readJSON(t, paths[0], &mapSeries)
	require.Len(t, mapSeries, 2)
	jan := mapSeries["2013-01"]
	require.Len(t, jan, 2)
	assert.Equal(t, export.MapEntry{Name: "广东省|广州市", Value: 42.46}, jan[0])
	assert.Equal(t, export.MapEntry{Name: "广东省|深圳市", Value: 30}, jan[1])

	var series []export.LineSeries
	readJSON(t, paths[1], &series)
	require.Len(t, series, 2)
	assert.Equal(t, "广东省|广州市", series[0].Name)
	assert.Equal(t, "line", series[0].Type)
	require.Len(t, series[0].Data, 2)

	jan1 := float64(time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	feb1 := float64(time.Date(2013, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	assert.Equal(t, [2]float64{jan1, 42.456}, series[0].Data[0])
	assert.Equal(t, [2]float64{feb1, 50}, series[0].Data[1])
	assert.Len(t, series[1].Data, 1)
}

func TestExport_SelectsVariable(t *testing.T) {
	root := t.TempDir()
	s := &store.Store{
		ProcessedDir:  filepath.Join(root, "processed"),
		AggregatedDir: filepath.Join(root, "aggregated"),
		Format:        store.FormatCSV,
	}
	g := config.GranularityProvince

	temp := cityMonthly("2013-01", "", 288.15)
	temp.Variable = "temp"
	temp.City, temp.AdminName = "", "广东省"
	_, err := s.WriteMonthly(g, 2013, 1, []store.MonthlyRow{temp})
	require.NoError(t, err)

	e := &export.Exporter{Store: s, OutputDir: filepath.Join(root, "output"), Variable: "temp"}
	paths, err := e.Export(g, []int{2013})
	require.NoError(t, err)

	var mapSeries map[string][]export.MapEntry
	readJSON(t, paths[0], &mapSeries)
	require.Len(t, mapSeries["2013-01"], 1)
	assert.Equal(t, "广东省", mapSeries["2013-01"][0].Name)
}

func TestExport_NoData(t *testing.T) {
	root := t.TempDir()
	s := &store.Store{
		ProcessedDir:  filepath.Join(root, "processed"),
		AggregatedDir: filepath.Join(root, "aggregated"),
		Format:        store.FormatCSV,
	}

	e := &export.Exporter{Store: s, OutputDir: filepath.Join(root, "output")}
	paths, err := e.Export(config.GranularityCity, []int{2013})
	require.NoError(t, err)

	var mapSeries map[string][]export.MapEntry
	readJSON(t, paths[0], &mapSeries)
	assert.Empty(t, mapSeries)
}

func readJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

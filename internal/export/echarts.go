// Package export renders monthly aggregates as ECharts-ready JSON documents:
// a per-period map series and a per-region time series.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/aerisview/reanalysis-etl/internal/config"
	"github.com/aerisview/reanalysis-etl/internal/store"
)

const (
	// DefaultVariable is exported when no variable is configured.
	DefaultVariable = "pm25"

	MapSeriesFile  = "map_series_data.json"
	TimeSeriesFile = "timeseries_data.json"
)

// MapEntry is one region value in a map series period.
type MapEntry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// LineSeries is one region's monthly trajectory: data points are
// [epoch-milliseconds, value] pairs on a time axis.
type LineSeries struct {
	Name string       `json:"name"`
	Type string       `json:"type"`
	Data [][2]float64 `json:"data"`
}

// Exporter reads monthly aggregates and writes the chart documents.
type Exporter struct {
	Store     *store.Store
	OutputDir string
	Variable  string
	Logger    *slog.Logger
}

// Export writes both chart documents for the given years, covering every
// month the store's index records. Returns the written file paths.
func (e *Exporter) Export(g config.Granularity, years []int) ([]string, error) {
	variable := e.Variable
	if variable == "" {
		variable = DefaultVariable
	}

	mapSeries := make(map[string][]MapEntry)
	lineData := make(map[string][][2]float64)

	for _, year := range years {
		months, err := e.Store.Months(g, year)
		if err != nil {
			return nil, fmt.Errorf("read month index for %d: %w", year, err)
		}
		for _, tag := range months {
			year, month, ok := parseMonthTag(tag)
			if !ok {
				continue
			}
			rows, err := e.Store.ReadMonthly(g, year, month)
			if err != nil {
				if e.Logger != nil {
					e.Logger.Warn("skipping unreadable monthly file",
						"year", year, "month", month, "error", err)
				}
				continue
			}
			period := fmt.Sprintf("%04d-%02d", year, month)
			epochMS := float64(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).UnixMilli())
			for i := range rows {
				r := &rows[i]
				if r.Variable != variable || math.IsNaN(r.Mean) {
					continue
				}
				name := regionName(r)
				if name == "" {
					continue
				}
				mapSeries[period] = append(mapSeries[period], MapEntry{
					Name:  name,
					Value: math.Round(r.Mean*100) / 100,
				})
				lineData[name] = append(lineData[name], [2]float64{epochMS, r.Mean})
			}
		}
	}

	for _, entries := range mapSeries {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	}

	names := make([]string, 0, len(lineData))
	for name := range lineData {
		names = append(names, name)
	}
	sort.Strings(names)
	series := make([]LineSeries, 0, len(names))
	for _, name := range names {
		points := lineData[name]
		sort.Slice(points, func(i, j int) bool { return points[i][0] < points[j][0] })
		series = append(series, LineSeries{Name: name, Type: "line", Data: points})
	}

	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	mapPath := filepath.Join(e.OutputDir, MapSeriesFile)
	if err := writeJSON(mapPath, mapSeries); err != nil {
		return nil, err
	}
	tsPath := filepath.Join(e.OutputDir, TimeSeriesFile)
	if err := writeJSON(tsPath, series); err != nil {
		return nil, err
	}
	return []string{mapPath, tsPath}, nil
}

// regionName picks the display name for a region: the province|city
// composite when both are known (bare city names collide across provinces),
// then whichever name survives alone, then the coordinate pair at grid
// granularity.
func regionName(r *store.MonthlyRow) string {
	switch {
	case r.Province != "" && r.City != "":
		return r.Province + "|" + r.City
	case r.City != "":
		return r.City
	case r.Province != "":
		return r.Province
	case r.AdminName != "":
		return r.AdminName
	case !math.IsNaN(r.Lat) && !math.IsNaN(r.Lon):
		return strconv.FormatFloat(r.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(r.Lon, 'f', 4, 64)
	}
	return ""
}

func parseMonthTag(tag string) (year, month int, ok bool) {
	if len(tag) != 6 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(tag[:4])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(tag[4:])
	if err != nil || m < 1 || m > 12 {
		return 0, 0, false
	}
	return y, m, true
}

func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

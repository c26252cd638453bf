// Package aggregate computes monthly and yearly summaries from daily result
// tables. Statistics are per region and variable; NaN values count as missing
// and never contribute to a statistic.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aerisview/reanalysis-etl/internal/config"
	"github.com/aerisview/reanalysis-etl/internal/grid"
	"github.com/aerisview/reanalysis-etl/internal/store"
)

// regionKey identifies one aggregation unit: a rounded coordinate at grid
// granularity, an administrative name tuple otherwise.
type regionKey struct {
	coord    grid.CoordKey
	province string
	city     string
	admin    string
}

type regionIdentity struct {
	lat, lon   float64
	province   string
	city       string
	admin      string
	nameSource string
}

func keyFor(g config.Granularity, r *store.DailyRow) (regionKey, regionIdentity) {
	if g == config.GranularityGrid {
		k := grid.Round4(r.Lat, r.Lon)
		lat, lon := k.LatLon()
		return regionKey{coord: k}, regionIdentity{lat: lat, lon: lon, nameSource: r.NameSource}
	}
	return regionKey{province: r.Province, city: r.City, admin: r.AdminName},
		regionIdentity{
			lat: math.NaN(), lon: math.NaN(),
			province: r.Province, city: r.City, admin: r.AdminName,
			nameSource: r.NameSource,
		}
}

type varAcc struct {
	values  []float64
	missing int64
}

type monthAcc struct {
	identity regionIdentity
	vars     map[string]*varAcc
	days     map[string]struct{}
	records  int64
}

// Monthly summarizes one month of daily tables. Each region/variable pair
// yields one row with mean, max, min, population std, valid count and missing
// count, plus the region's day and record totals. Statistics are rounded to
// six decimal places.
func Monthly(g config.Granularity, year, month int, dailies []store.MonthDaily) []store.MonthlyRow {
	groups := make(map[regionKey]*monthAcc)
	order := make([]regionKey, 0)

	for _, day := range dailies {
		fileTag := day.Date.Format("20060102")
		for i := range day.Rows {
			r := &day.Rows[i]
			// The row's own date wins over the filename-inferred one.
			dayTag := fileTag
			if r.Date != "" {
				if d, err := time.Parse("2006-01-02", r.Date); err == nil {
					dayTag = d.Format("20060102")
				}
			}
			key, identity := keyFor(g, r)
			acc, ok := groups[key]
			if !ok {
				acc = &monthAcc{
					identity: identity,
					vars:     make(map[string]*varAcc),
					days:     make(map[string]struct{}),
				}
				groups[key] = acc
				order = append(order, key)
			}
			acc.days[dayTag] = struct{}{}
			acc.records++
			for _, name := range grid.TrackedVars {
				va, ok := acc.vars[name]
				if !ok {
					va = &varAcc{}
					acc.vars[name] = va
				}
				v := r.Var(name)
				if math.IsNaN(v) {
					va.missing++
				} else {
					va.values = append(va.values, v)
				}
			}
		}
	}

	sort.Slice(order, func(i, j int) bool { return lessRegion(order[i], order[j]) })

	monthTag := fmt.Sprintf("%04d-%02d", year, month)
	var rows []store.MonthlyRow
	for _, key := range order {
		acc := groups[key]
		for _, name := range grid.TrackedVars {
			va := acc.vars[name]
			if va == nil || (len(va.values) == 0 && va.missing == 0) {
				continue
			}
			row := store.MonthlyRow{
				Month:        monthTag,
				Lat:          acc.identity.lat,
				Lon:          acc.identity.lon,
				Province:     acc.identity.province,
				City:         acc.identity.city,
				AdminName:    acc.identity.admin,
				NameSource:   acc.identity.nameSource,
				Variable:     name,
				Count:        int64(len(va.values)),
				Missing:      va.missing,
				TotalDays:    int64(len(acc.days)),
				TotalRecords: acc.records,
			}
			row.Mean, row.Max, row.Min, row.Std = describe(va.values)
			rows = append(rows, row)
		}
	}
	return rows
}

// describe returns rounded mean, max, min and population std of values. An
// empty slice yields all-NaN statistics; a single value yields std 0.
func describe(values []float64) (mean, max, min, std float64) {
	if len(values) == 0 {
		nan := math.NaN()
		return nan, nan, nan, nan
	}
	sum := 0.0
	max, min = values[0], values[0]
	for _, v := range values {
		sum += v
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(values)))
	return round6(mean), round6(max), round6(min), round6(std)
}

func round6(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*1e6) / 1e6
}

func round2(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*1e2) / 1e2
}

func lessRegion(a, b regionKey) bool {
	if a.province != b.province {
		return a.province < b.province
	}
	if a.city != b.city {
		return a.city < b.city
	}
	if a.admin != b.admin {
		return a.admin < b.admin
	}
	if a.coord.Lat != b.coord.Lat {
		return a.coord.Lat < b.coord.Lat
	}
	return a.coord.Lon < b.coord.Lon
}

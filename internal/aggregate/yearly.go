package aggregate

import (
	"math"
	"sort"

	"github.com/aerisview/reanalysis-etl/internal/store"
)

type yearAcc struct {
	identity regionIdentity
	variable string

	means []float64
	max   float64
	min   float64

	totalCount   int64
	totalMissing int64
	months       map[string]struct{}
}

type yearKey struct {
	region   regionKey
	variable string
}

// Yearly rolls the year's monthly summaries up to one row per region and
// variable: the yearly mean and std are taken over the monthly means, the max
// and min over the monthly extremes. Completeness is the share of the twelve
// months present; quality is the share of valid records over all records.
func Yearly(year int, monthly []store.MonthlyRow) []store.YearlyRow {
	groups := make(map[yearKey]*yearAcc)
	order := make([]yearKey, 0)

	for i := range monthly {
		m := &monthly[i]
		region := regionKey{province: m.Province, city: m.City, admin: m.AdminName}
		if m.Province == "" && m.City == "" && m.AdminName == "" {
			if !math.IsNaN(m.Lat) && !math.IsNaN(m.Lon) {
				region.coord.Lat = int64(math.Round(m.Lat * 1e4))
				region.coord.Lon = int64(math.Round(m.Lon * 1e4))
			}
		}
		key := yearKey{region: region, variable: m.Variable}
		acc, ok := groups[key]
		if !ok {
			acc = &yearAcc{
				identity: regionIdentity{
					lat: m.Lat, lon: m.Lon,
					province: m.Province, city: m.City, admin: m.AdminName,
					nameSource: m.NameSource,
				},
				variable: m.Variable,
				max:      math.NaN(),
				min:      math.NaN(),
				months:   make(map[string]struct{}),
			}
			groups[key] = acc
			order = append(order, key)
		}
		acc.months[m.Month] = struct{}{}
		acc.totalCount += m.Count
		acc.totalMissing += m.Missing
		if !math.IsNaN(m.Mean) {
			acc.means = append(acc.means, m.Mean)
		}
		if !math.IsNaN(m.Max) && (math.IsNaN(acc.max) || m.Max > acc.max) {
			acc.max = m.Max
		}
		if !math.IsNaN(m.Min) && (math.IsNaN(acc.min) || m.Min < acc.min) {
			acc.min = m.Min
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].variable != order[j].variable {
			return order[i].variable < order[j].variable
		}
		return lessRegion(order[i].region, order[j].region)
	})

	rows := make([]store.YearlyRow, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		mean, _, _, std := describe(acc.means)
		total := acc.totalCount + acc.totalMissing
		quality := math.NaN()
		if total > 0 {
			quality = round2(float64(acc.totalCount) / float64(total) * 100)
		}
		rows = append(rows, store.YearlyRow{
			Year:             year,
			Lat:              acc.identity.lat,
			Lon:              acc.identity.lon,
			Province:         acc.identity.province,
			City:             acc.identity.city,
			AdminName:        acc.identity.admin,
			NameSource:       acc.identity.nameSource,
			Variable:         acc.variable,
			YearlyMean:       mean,
			YearlyMax:        round6(acc.max),
			YearlyMin:        round6(acc.min),
			YearlyStd:        std,
			TotalCount:       acc.totalCount,
			TotalMissing:     acc.totalMissing,
			MonthsPresent:    len(acc.months),
			DataCompleteness: round2(float64(len(acc.months)) / 12 * 100),
			DataQuality:      quality,
		})
	}
	return rows
}

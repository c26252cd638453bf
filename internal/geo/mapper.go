package geo

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/paulmach/orb"

	"github.com/aerisview/reanalysis-etl/internal/grid"
)

// Level is the administrative level mapping targets.
type Level string

const (
	LevelCity     Level = "city"
	LevelProvince Level = "province"
)

// touchTolerance is the boundary distance, in degrees, within which the
// second join pass treats a point as touching a polygon (~1 m at the
// equator).
const touchTolerance = 1e-5

// sampleLimit caps the fallback audit sample carried in Stats.
const sampleLimit = 50

// Mapping is the administrative identity resolved for one rounded coordinate.
type Mapping struct {
	Province  string
	City      string
	AdminName string
	Level     Level
	Source    NameSource
}

// empty reports whether the mapping carries no administrative name at all.
func (m Mapping) empty() bool {
	return m.Province == "" && m.City == "" && m.AdminName == ""
}

// FallbackSample records one coordinate whose name came from a Latin-script
// fallback field, for post-hoc auditing.
type FallbackSample struct {
	Field    string
	Province string
	City     string
}

// Stats describes one mapping run.
type Stats struct {
	UniqueCoords    int
	Matched         int
	TouchMatched    int
	Unmatched       int
	LatinFilled     int
	RowsDropped     int
	FallbackSamples []FallbackSample
}

// AdminRow is one administrative unit's aggregated variable means.
type AdminRow struct {
	Province  string
	City      string
	AdminName string
	Level     Level
	Source    NameSource
	Values    map[string]float64
}

// Mapper assigns administrative identifiers to grid rows and aggregates
// variables per administrative unit.
type Mapper struct {
	Polygons   *PolygonSet
	Level      Level
	AllowLatin bool
	Logger     *slog.Logger
}

// ErrNoPolygons is returned when the mapper has no boundary dataset.
var ErrNoPolygons = errors.New("geo: no polygon set loaded")

// FilterGeographic drops rows whose coordinates are missing or outside
// latitude [-90, 90] / longitude [-180, 180]. Invalid rows are dropped, never
// clamped.
func FilterGeographic(f *grid.Frame) (*grid.Frame, int) {
	keep := make([]bool, f.Len())
	dropped := 0
	for i := 0; i < f.Len(); i++ {
		lat, lon := f.Lat[i], f.Lon[i]
		ok := lat == lat && lon == lon && // NaN check
			lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
		keep[i] = ok
		if !ok {
			dropped++
		}
	}
	if dropped == 0 {
		return f, 0
	}
	return f.Filter(keep), dropped
}

// MapUnique joins each unique rounded coordinate against the polygon set and
// canonicalizes the resulting names. Exactly one join is performed per key.
func (m *Mapper) MapUnique(keys []grid.CoordKey) (map[grid.CoordKey]Mapping, *Stats) {
	stats := &Stats{UniqueCoords: len(keys)}
	mappings := make(map[grid.CoordKey]Mapping, len(keys))

	unmatched := make([]grid.CoordKey, 0)
	for _, key := range keys {
		lat, lon := key.LatLon()
		props, ok := m.Polygons.locate(orb.Point{lon, lat})
		if !ok {
			unmatched = append(unmatched, key)
			continue
		}
		stats.Matched++
		mappings[key] = m.canonicalize(props, stats)
	}

	// Second pass with a touching predicate fills only the coordinates the
	// strict pass missed (points sitting on polygon boundaries).
	for _, key := range unmatched {
		lat, lon := key.LatLon()
		props, ok := m.Polygons.locateTouching(orb.Point{lon, lat}, touchTolerance)
		if !ok {
			stats.Unmatched++
			continue
		}
		stats.TouchMatched++
		mappings[key] = m.canonicalize(props, stats)
	}
	return mappings, stats
}

// canonicalize resolves province and city names from polygon attributes,
// preferring native-script fields, falling back to Latin fields when allowed.
func (m *Mapper) canonicalize(props map[string]interface{}, stats *Stats) Mapping {
	province, provField, provSrc := pickName(props, provinceFields, m.AllowLatin)
	city, cityField, citySrc := pickName(props, cityFields, m.AllowLatin)
	adminName, _, adminSrc := pickName(props, adminNameFields, m.AllowLatin)
	if adminName == "" {
		if city != "" {
			adminName, adminSrc = city, citySrc
		} else if province != "" {
			adminName, adminSrc = province, provSrc
		}
	}

	src := NameNone
	switch {
	case provSrc == NameNative || citySrc == NameNative || adminSrc == NameNative:
		src = NameNative
	case provSrc == NameLatin || citySrc == NameLatin || adminSrc == NameLatin:
		src = NameLatin
	}
	if src == NameLatin {
		stats.LatinFilled++
		if len(stats.FallbackSamples) < sampleLimit {
			field := cityField
			if field == "" {
				field = provField
			}
			stats.FallbackSamples = append(stats.FallbackSamples, FallbackSample{
				Field:    field,
				Province: province,
				City:     city,
			})
		}
	}

	return Mapping{
		Province:  province,
		City:      city,
		AdminName: adminName,
		Level:     m.Level,
		Source:    src,
	}
}

// Aggregate maps the frame's rows to administrative units and returns the
// per-unit arithmetic mean of the named columns. Rows whose coordinate maps
// to no unit, or whose mapping resolves to no name at all, are dropped and
// counted in stats.
func (m *Mapper) Aggregate(f *grid.Frame, cols []string) ([]AdminRow, *Stats, error) {
	if m.Polygons == nil || m.Polygons.Len() == 0 {
		return nil, nil, ErrNoPolygons
	}

	keySet := make(map[grid.CoordKey]struct{})
	rowKeys := make([]grid.CoordKey, f.Len())
	for i := 0; i < f.Len(); i++ {
		key := grid.Round4(f.Lat[i], f.Lon[i])
		rowKeys[i] = key
		keySet[key] = struct{}{}
	}
	keys := make([]grid.CoordKey, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}

	mappings, stats := m.MapUnique(keys)

	type groupKey struct {
		province string
		city     string
		admin    string
	}
	type acc struct {
		mapping Mapping
		sums    map[string]float64
		counts  map[string]int
	}
	groups := make(map[groupKey]*acc)
	order := make([]groupKey, 0)

	for i := 0; i < f.Len(); i++ {
		mapping, ok := mappings[rowKeys[i]]
		if !ok || mapping.empty() {
			stats.RowsDropped++
			continue
		}
		// Group by province+city when either is present, otherwise by the
		// bare admin name.
		gk := groupKey{province: mapping.Province, city: mapping.City}
		if mapping.Province == "" && mapping.City == "" {
			gk.admin = mapping.AdminName
		}
		g, ok := groups[gk]
		if !ok {
			g = &acc{
				mapping: mapping,
				sums:    make(map[string]float64),
				counts:  make(map[string]int),
			}
			groups[gk] = g
			order = append(order, gk)
		}
		for _, name := range cols {
			col, ok := f.Vars[name]
			if !ok {
				continue
			}
			v := col[i]
			if v == v { // skip NaN
				g.sums[name] += v
				g.counts[name]++
			}
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].province != order[j].province {
			return order[i].province < order[j].province
		}
		if order[i].city != order[j].city {
			return order[i].city < order[j].city
		}
		return order[i].admin < order[j].admin
	})

	rows := make([]AdminRow, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		values := make(map[string]float64, len(cols))
		for _, name := range cols {
			if n := g.counts[name]; n > 0 {
				values[name] = g.sums[name] / float64(n)
			}
		}
		rows = append(rows, AdminRow{
			Province:  g.mapping.Province,
			City:      g.mapping.City,
			AdminName: g.mapping.AdminName,
			Level:     g.mapping.Level,
			Source:    g.mapping.Source,
			Values:    values,
		})
	}

	m.logStats(stats)
	return rows, stats, nil
}

func (m *Mapper) logStats(stats *Stats) {
	if m.Logger == nil {
		return
	}
	if stats.RowsDropped > 0 || stats.Unmatched > 0 {
		m.Logger.Info("rows without administrative match dropped",
			"unique_coords", stats.UniqueCoords,
			"unmatched_coords", stats.Unmatched,
			"rows_dropped", stats.RowsDropped,
		)
	}
	if stats.LatinFilled > 0 {
		samples := make([]string, 0, len(stats.FallbackSamples))
		for _, s := range stats.FallbackSamples {
			samples = append(samples, s.Field+":"+s.Province+"/"+s.City)
		}
		m.Logger.Info("latin-script name fallback used",
			"count", stats.LatinFilled,
			"samples", samples,
		)
	}
}

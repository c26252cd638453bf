package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/aerisview/reanalysis-etl/internal/clean"
	"github.com/aerisview/reanalysis-etl/internal/config"
	"github.com/aerisview/reanalysis-etl/internal/geo"
	"github.com/aerisview/reanalysis-etl/internal/grid"
	"github.com/aerisview/reanalysis-etl/internal/store"
)

// Percentile clip bounds used when IQR filtering is skipped.
const (
	clipLow  = 0.005
	clipHigh = 0.995
)

// processArchive runs one daily archive through the full read-clean-map-save
// flow and returns the persisted file path.
func (p *Pipeline) processArchive(ctx context.Context, t task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	items, err := p.reader.ReadDay(t.path, "", t.day)
	if err != nil {
		return "", err
	}

	// Cleaning runs on the stacked hourly rows so that bounds and IQR see the
	// individual readings; collapsing to daily means happens afterwards,
	// otherwise a single spike would survive inside an averaged cell.
	frame, err := grid.Build(items, grid.ModeExpand)
	if err != nil {
		return "", fmt.Errorf("build frame: %w", err)
	}
	if frame.Len() == 0 {
		return "", fmt.Errorf("archive %s produced no rows", t.path)
	}
	frame.EnsureVars(grid.TrackedVars)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	nulled := clean.ApplyBounds(frame, clean.DefaultBounds())
	p.metrics.BoundsNulled.Add(float64(nulled))
	if p.cfg.SkipIQR {
		clean.PercentileClip(frame, grid.TrackedVars, clipLow, clipHigh)
	} else {
		flt := clean.IQRFilter{K: p.cfg.IQRK, GroupCeiling: p.cfg.GroupCeiling}
		p.metrics.IQRNulled.Add(float64(flt.Apply(frame, grid.TrackedVars)))
	}
	p.metrics.RowsCleaned.Add(float64(frame.Len()))

	if p.cfg.AggregateMean {
		frame = grid.Collapse(frame)
	}

	frame, dropped := geo.FilterGeographic(frame)
	if dropped > 0 {
		p.logger.Debug("rows with invalid coordinates dropped",
			"archive", t.path, "dropped", dropped)
	}
	if frame.Len() == 0 {
		return "", fmt.Errorf("archive %s has no rows with valid coordinates", t.path)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	granularity := p.cfg.Granularity
	var rows []store.DailyRow
	if granularity == config.GranularityGrid {
		rows = gridRows(frame, t)
	} else {
		rows, err = p.adminRows(frame, t)
		if err != nil {
			// Mapping problems degrade the archive to grid output rather than
			// losing the day entirely.
			p.logger.Warn("administrative mapping failed, falling back to grid output",
				"archive", t.path, "error", err)
			p.metrics.MappingFallbacks.Inc()
			granularity = config.GranularityGrid
			rows = gridRows(frame, t)
		}
	}

	path, err := p.store.WriteDaily(granularity, t.day, rows)
	if err != nil {
		return "", fmt.Errorf("persist daily rows: %w", err)
	}
	return path, nil
}

// gridRows converts a cleaned frame into daily rows, one per grid sample.
func gridRows(f *grid.Frame, t task) []store.DailyRow {
	date := t.day.Format("2006-01-02")
	rows := make([]store.DailyRow, f.Len())
	for i := 0; i < f.Len(); i++ {
		r := &rows[i]
		r.Date = date
		r.Lat = f.Lat[i]
		r.Lon = f.Lon[i]
		for _, name := range grid.TrackedVars {
			r.SetVar(name, f.Vars[name][i])
		}
	}
	return rows
}

// adminRows maps the frame to administrative units and converts the per-unit
// means into daily rows.
func (p *Pipeline) adminRows(f *grid.Frame, t task) ([]store.DailyRow, error) {
	set, hit, err := p.polygons.Load(p.cfg.AdminBoundary)
	if err != nil {
		return nil, fmt.Errorf("load boundary polygons: %w", err)
	}
	if hit {
		p.metrics.PolygonCache.WithLabelValues("hit").Inc()
	} else {
		p.metrics.PolygonCache.WithLabelValues("miss").Inc()
	}

	mapper := &geo.Mapper{
		Polygons:   set,
		Level:      geo.Level(p.cfg.Granularity),
		AllowLatin: p.cfg.AllowLatin,
		Logger:     p.logger,
	}
	units, stats, err := mapper.Aggregate(f, grid.TrackedVars)
	if err != nil {
		return nil, err
	}
	p.metrics.CoordsJoined.Add(float64(stats.Matched + stats.TouchMatched))
	p.metrics.UnmappedDropped.Add(float64(stats.RowsDropped))
	if len(units) == 0 {
		return nil, fmt.Errorf("no grid row mapped to an administrative unit")
	}

	date := t.day.Format("2006-01-02")
	rows := make([]store.DailyRow, len(units))
	for i := range units {
		u := &units[i]
		r := &rows[i]
		r.Date = date
		r.Lat = math.NaN()
		r.Lon = math.NaN()
		r.Province = u.Province
		r.City = u.City
		r.AdminName = u.AdminName
		r.NameSource = string(u.Source)
		for _, name := range grid.TrackedVars {
			if v, ok := u.Values[name]; ok {
				r.SetVar(name, v)
			} else {
				r.SetVar(name, math.NaN())
			}
		}
	}
	return rows, nil
}

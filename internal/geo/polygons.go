// Package geo maps grid coordinates to administrative regions using a
// polygon boundary dataset, and aggregates variables per administrative unit.
package geo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// adminFeature is one boundary polygon with its attribute table.
type adminFeature struct {
	geom  orb.Geometry
	bound orb.Bound
	props geojson.Properties
}

// PolygonSet holds the administrative boundary polygons of one dataset.
// It is immutable after load and safe for concurrent reads.
type PolygonSet struct {
	features []adminFeature
}

// LoadPolygons reads a GeoJSON FeatureCollection of administrative
// boundaries. Features without polygonal geometry are skipped.
func LoadPolygons(path string) (*PolygonSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundary file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse boundary file %s: %w", path, err)
	}

	set := &PolygonSet{}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			set.features = append(set.features, adminFeature{
				geom:  f.Geometry,
				bound: f.Geometry.Bound(),
				props: f.Properties,
			})
		}
	}
	if len(set.features) == 0 {
		return nil, fmt.Errorf("boundary file %s contains no polygon features", path)
	}
	return set, nil
}

// Len returns the number of polygon features.
func (s *PolygonSet) Len() int { return len(s.features) }

// locate finds the first polygon strictly containing pt.
func (s *PolygonSet) locate(pt orb.Point) (geojson.Properties, bool) {
	for i := range s.features {
		f := &s.features[i]
		if !f.bound.Contains(pt) {
			continue
		}
		if polygonContains(f.geom, pt) {
			return f.props, true
		}
	}
	return nil, false
}

// locateTouching finds the first polygon containing pt or whose boundary
// passes within tol of it. Used as the second join pass for edge cases the
// strict pass misses.
func (s *PolygonSet) locateTouching(pt orb.Point, tol float64) (geojson.Properties, bool) {
	for i := range s.features {
		f := &s.features[i]
		padded := f.bound.Pad(tol)
		if !padded.Contains(pt) {
			continue
		}
		if polygonContains(f.geom, pt) || boundaryDistance(f.geom, pt) <= tol {
			return f.props, true
		}
	}
	return nil, false
}

func polygonContains(geom orb.Geometry, pt orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	default:
		return false
	}
}

// boundaryDistance returns the minimum planar distance from pt to the
// polygon's rings.
func boundaryDistance(geom orb.Geometry, pt orb.Point) float64 {
	switch g := geom.(type) {
	case orb.Polygon:
		return polygonRingDistance(g, pt)
	case orb.MultiPolygon:
		min := -1.0
		for _, poly := range g {
			d := polygonRingDistance(poly, pt)
			if min < 0 || d < min {
				min = d
			}
		}
		return min
	default:
		return -1
	}
}

func polygonRingDistance(poly orb.Polygon, pt orb.Point) float64 {
	min := -1.0
	for _, ring := range poly {
		for i := 1; i < len(ring); i++ {
			d := segmentDistance(ring[i-1], ring[i], pt)
			if min < 0 || d < min {
				min = d
			}
		}
	}
	return min
}

// segmentDistance is the distance from p to the segment a-b, projected in
// plain coordinate space.
func segmentDistance(a, b, p orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	cx, cy := a[0]+t*dx, a[1]+t*dy
	return planar.Distance(p, orb.Point{cx, cy})
}

// Cache is a read-mostly cache of polygon sets keyed by canonical file path,
// populated lazily. Owned by the orchestrator; safe for concurrent use.
type Cache struct {
	mu   sync.RWMutex
	sets map[string]*PolygonSet
}

// NewCache creates an empty polygon cache.
func NewCache() *Cache {
	return &Cache{sets: make(map[string]*PolygonSet)}
}

// Load returns the polygon set for path, reading and parsing the file on
// first use. hit reports whether the set was already cached.
func (c *Cache) Load(path string) (set *PolygonSet, hit bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	c.mu.RLock()
	set, ok := c.sets[abs]
	c.mu.RUnlock()
	if ok {
		return set, true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-checked: another goroutine may have loaded it while we waited.
	if set, ok := c.sets[abs]; ok {
		return set, true, nil
	}
	set, err = LoadPolygons(abs)
	if err != nil {
		return nil, false, err
	}
	c.sets[abs] = set
	return set, false, nil
}

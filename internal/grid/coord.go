package grid

import "math"

// CoordKey identifies a grid cell by its coordinates rounded to 4 decimal
// places. Rounded keys are the dedup unit for spatial mapping and grouping:
// mapping cost scales with distinct keys, not row count.
type CoordKey struct {
	Lat int64
	Lon int64
}

// Round4 builds the rounded key for a coordinate pair.
func Round4(lat, lon float64) CoordKey {
	return CoordKey{
		Lat: int64(math.Round(lat * 1e4)),
		Lon: int64(math.Round(lon * 1e4)),
	}
}

// LatLon returns the rounded coordinate values.
func (k CoordKey) LatLon() (lat, lon float64) {
	return float64(k.Lat) / 1e4, float64(k.Lon) / 1e4
}

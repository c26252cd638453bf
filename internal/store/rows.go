// Package store persists daily, monthly and yearly result tables under the
// processed/aggregated directory layout, in Parquet with a CSV fallback.
package store

import (
	"math"
	"strconv"
)

// DailyRow is one cleaned observation row. Grid-granularity rows carry
// coordinates and empty administrative fields; administrative rows carry
// names and NaN coordinates.
type DailyRow struct {
	Date       string  `parquet:"date"`
	Lat        float64 `parquet:"lat"`
	Lon        float64 `parquet:"lon"`
	Province   string  `parquet:"province"`
	City       string  `parquet:"city"`
	AdminName  string  `parquet:"admin_name"`
	NameSource string  `parquet:"name_source"`

	PM25 float64 `parquet:"pm25"`
	PM10 float64 `parquet:"pm10"`
	SO2  float64 `parquet:"so2"`
	NO2  float64 `parquet:"no2"`
	CO   float64 `parquet:"co"`
	O3   float64 `parquet:"o3"`
	Temp float64 `parquet:"temp"`
	RH   float64 `parquet:"rh"`
	PSFC float64 `parquet:"psfc"`
	U    float64 `parquet:"u"`
	V    float64 `parquet:"v"`
}

// Var returns the named variable value, NaN when the name is unknown.
func (r *DailyRow) Var(name string) float64 {
	switch name {
	case "pm25":
		return r.PM25
	case "pm10":
		return r.PM10
	case "so2":
		return r.SO2
	case "no2":
		return r.NO2
	case "co":
		return r.CO
	case "o3":
		return r.O3
	case "temp":
		return r.Temp
	case "rh":
		return r.RH
	case "psfc":
		return r.PSFC
	case "u":
		return r.U
	case "v":
		return r.V
	}
	return math.NaN()
}

// SetVar stores the named variable value. Unknown names are ignored.
func (r *DailyRow) SetVar(name string, v float64) {
	switch name {
	case "pm25":
		r.PM25 = v
	case "pm10":
		r.PM10 = v
	case "so2":
		r.SO2 = v
	case "no2":
		r.NO2 = v
	case "co":
		r.CO = v
	case "o3":
		r.O3 = v
	case "temp":
		r.Temp = v
	case "rh":
		r.RH = v
	case "psfc":
		r.PSFC = v
	case "u":
		r.U = v
	case "v":
		r.V = v
	}
}

// MonthlyRow is one region/variable monthly summary in long format.
type MonthlyRow struct {
	Month      string  `parquet:"month"`
	Lat        float64 `parquet:"lat"`
	Lon        float64 `parquet:"lon"`
	Province   string  `parquet:"province"`
	City       string  `parquet:"city"`
	AdminName  string  `parquet:"admin_name"`
	NameSource string  `parquet:"name_source"`
	Variable   string  `parquet:"variable"`

	Mean    float64 `parquet:"mean"`
	Max     float64 `parquet:"max"`
	Min     float64 `parquet:"min"`
	Std     float64 `parquet:"std"`
	Count   int64   `parquet:"count"`
	Missing int64   `parquet:"missing"`

	TotalDays    int64 `parquet:"total_days"`
	TotalRecords int64 `parquet:"total_records"`
}

// YearlyRow is one region/variable yearly summary derived from the monthly
// summaries of the same year.
type YearlyRow struct {
	Year       int     `parquet:"year"`
	Lat        float64 `parquet:"lat"`
	Lon        float64 `parquet:"lon"`
	Province   string  `parquet:"province"`
	City       string  `parquet:"city"`
	AdminName  string  `parquet:"admin_name"`
	NameSource string  `parquet:"name_source"`
	Variable   string  `parquet:"variable"`

	YearlyMean float64 `parquet:"yearly_mean"`
	YearlyMax  float64 `parquet:"yearly_max"`
	YearlyMin  float64 `parquet:"yearly_min"`
	YearlyStd  float64 `parquet:"yearly_std"`

	TotalCount   int64 `parquet:"total_count"`
	TotalMissing int64 `parquet:"total_missing"`

	MonthsPresent    int     `parquet:"months_present"`
	DataCompleteness float64 `parquet:"data_completeness"`
	DataQuality      float64 `parquet:"data_quality"`
}

// fmtFloat renders a float for CSV, empty for NaN.
func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// parseFloat reads a CSV float, NaN for empty or malformed cells.
func parseFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

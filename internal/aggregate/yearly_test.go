package aggregate_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerisview/reanalysis-etl/internal/aggregate"
	"github.com/aerisview/reanalysis-etl/internal/store"
)

func monthlyRow(month string, mean, max, min float64, count, missing int64) store.MonthlyRow {
	return store.MonthlyRow{
		Month: month, Lat: math.NaN(), Lon: math.NaN(),
		Province: "广东省", City: "广州市", AdminName: "广州市", NameSource: "native",
		Variable: "pm25", Mean: mean, Max: max, Min: min, Std: 1,
		Count: count, Missing: missing, TotalDays: 30, TotalRecords: count + missing,
	}
}

func TestYearly_RollsUpMonthlyMeans(t *testing.T) {
	monthly := []store.MonthlyRow{
		monthlyRow("2013-01", 10, 25, 2, 300, 10),
		monthlyRow("2013-02", 20, 60, 5, 280, 20),
		monthlyRow("2013-03", 30, 55, 1, 310, 6),
	}

	rows := aggregate.Yearly(2013, monthly)
	require.Len(t, rows, 1)
	r := rows[0]

	assert.Equal(t, 2013, r.Year)
	assert.Equal(t, "pm25", r.Variable)
	assert.Equal(t, "广州市", r.City)
	// Mean of monthly means; extremes over the monthly extremes.
	assert.Equal(t, 20.0, r.YearlyMean)
	assert.Equal(t, 60.0, r.YearlyMax)
	assert.Equal(t, 1.0, r.YearlyMin)
	// Population std of the monthly means 10, 20, 30.
	assert.Equal(t, 8.164966, r.YearlyStd)
	assert.Equal(t, int64(890), r.TotalCount)
	assert.Equal(t, int64(36), r.TotalMissing)
	assert.Equal(t, 3, r.MonthsPresent)
	assert.Equal(t, 25.0, r.DataCompleteness)
	assert.InDelta(t, float64(890)/float64(926)*100, r.DataQuality, 0.005)
}

func TestYearly_SingleMonthStdIsZero(t *testing.T) {
	rows := aggregate.Yearly(2013, []store.MonthlyRow{
		monthlyRow("2013-06", 42, 80, 10, 100, 0),
	})
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].YearlyStd)
	assert.Equal(t, 8.33, rows[0].DataCompleteness)
	assert.Equal(t, 100.0, rows[0].DataQuality)
}

func TestYearly_FullYearCompleteness(t *testing.T) {
	var monthly []store.MonthlyRow
	for m := 1; m <= 12; m++ {
		monthly = append(monthly, monthlyRow(monthTag(m), 10, 20, 5, 100, 0))
	}

	rows := aggregate.Yearly(2013, monthly)
	require.Len(t, rows, 1)
	assert.Equal(t, 100.0, rows[0].DataCompleteness)
	assert.Equal(t, 12, rows[0].MonthsPresent)
}

func monthTag(m int) string {
	return fmt.Sprintf("2013-%02d", m)
}

func TestYearly_SeparatesVariablesAndRegions(t *testing.T) {
	a := monthlyRow("2013-01", 10, 20, 5, 100, 0)
	b := monthlyRow("2013-01", 99, 120, 80, 100, 0)
	b.City, b.AdminName = "深圳市", "深圳市"
	c := monthlyRow("2013-01", 288, 300, 270, 100, 0)
	c.Variable = "temp"

	rows := aggregate.Yearly(2013, []store.MonthlyRow{a, b, c})
	assert.Len(t, rows, 3)
}

func TestYearly_GridRegionsKeyedByCoordinate(t *testing.T) {
	a := monthlyRow("2013-01", 10, 20, 5, 100, 0)
	a.Province, a.City, a.AdminName, a.NameSource = "", "", "", ""
	a.Lat, a.Lon = 31.1234, 111.5678
	b := a
	b.Month = "2013-02"
	b.Mean = 30
	c := a
	c.Lat = 32.0 // a second cell

	rows := aggregate.Yearly(2013, []store.MonthlyRow{a, b, c})
	require.Len(t, rows, 2)

	var merged *store.YearlyRow
	for i := range rows {
		if rows[i].MonthsPresent == 2 {
			merged = &rows[i]
		}
	}
	require.NotNil(t, merged)
	assert.Equal(t, 20.0, merged.YearlyMean)
	assert.InDelta(t, 31.1234, merged.Lat, 1e-9)
}

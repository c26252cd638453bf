package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/aerisview/reanalysis-etl/internal/grid"
)

var dailyHeader = append([]string{
	"date", "lat", "lon", "province", "city", "admin_name", "name_source",
}, grid.TrackedVars...)

var monthlyHeader = []string{
	"month", "lat", "lon", "province", "city", "admin_name", "name_source",
	"variable", "mean", "max", "min", "std", "count", "missing",
	"total_days", "total_records",
}

var yearlyHeader = []string{
	"year", "lat", "lon", "province", "city", "admin_name", "name_source",
	"variable", "yearly_mean", "yearly_max", "yearly_min", "yearly_std",
	"total_count", "total_missing", "months_present",
	"data_completeness", "data_quality",
}

func writeDailyCSV(path string, rows []DailyRow) error {
	return writeCSV(path, dailyHeader, len(rows), func(i int) []string {
		r := &rows[i]
		rec := []string{
			r.Date, fmtFloat(r.Lat), fmtFloat(r.Lon),
			r.Province, r.City, r.AdminName, r.NameSource,
		}
		for _, name := range grid.TrackedVars {
			rec = append(rec, fmtFloat(r.Var(name)))
		}
		return rec
	})
}

func readDailyCSV(path string) ([]DailyRow, error) {
	records, err := readCSV(path, dailyHeader)
	if err != nil {
		return nil, err
	}
	rows := make([]DailyRow, 0, len(records))
	for _, rec := range records {
		r := DailyRow{
			Date: rec[0], Lat: parseFloat(rec[1]), Lon: parseFloat(rec[2]),
			Province: rec[3], City: rec[4], AdminName: rec[5], NameSource: rec[6],
		}
		for i, name := range grid.TrackedVars {
			r.SetVar(name, parseFloat(rec[7+i]))
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func writeMonthlyCSV(path string, rows []MonthlyRow) error {
	return writeCSV(path, monthlyHeader, len(rows), func(i int) []string {
		r := &rows[i]
		return []string{
			r.Month, fmtFloat(r.Lat), fmtFloat(r.Lon),
			r.Province, r.City, r.AdminName, r.NameSource,
			r.Variable, fmtFloat(r.Mean), fmtFloat(r.Max), fmtFloat(r.Min), fmtFloat(r.Std),
			strconv.FormatInt(r.Count, 10), strconv.FormatInt(r.Missing, 10),
			strconv.FormatInt(r.TotalDays, 10), strconv.FormatInt(r.TotalRecords, 10),
		}
	})
}

func readMonthlyCSV(path string) ([]MonthlyRow, error) {
	records, err := readCSV(path, monthlyHeader)
	if err != nil {
		return nil, err
	}
	rows := make([]MonthlyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, MonthlyRow{
			Month: rec[0], Lat: parseFloat(rec[1]), Lon: parseFloat(rec[2]),
			Province: rec[3], City: rec[4], AdminName: rec[5], NameSource: rec[6],
			Variable: rec[7],
			Mean:     parseFloat(rec[8]), Max: parseFloat(rec[9]),
			Min: parseFloat(rec[10]), Std: parseFloat(rec[11]),
			Count: parseInt(rec[12]), Missing: parseInt(rec[13]),
			TotalDays: parseInt(rec[14]), TotalRecords: parseInt(rec[15]),
		})
	}
	return rows, nil
}

func writeYearlyCSV(path string, rows []YearlyRow) error {
	return writeCSV(path, yearlyHeader, len(rows), func(i int) []string {
		r := &rows[i]
		return []string{
			strconv.Itoa(r.Year), fmtFloat(r.Lat), fmtFloat(r.Lon),
			r.Province, r.City, r.AdminName, r.NameSource,
			r.Variable, fmtFloat(r.YearlyMean), fmtFloat(r.YearlyMax),
			fmtFloat(r.YearlyMin), fmtFloat(r.YearlyStd),
			strconv.FormatInt(r.TotalCount, 10), strconv.FormatInt(r.TotalMissing, 10),
			strconv.Itoa(r.MonthsPresent),
			fmtFloat(r.DataCompleteness), fmtFloat(r.DataQuality),
		}
	})
}

func readYearlyCSV(path string) ([]YearlyRow, error) {
	records, err := readCSV(path, yearlyHeader)
	if err != nil {
		return nil, err
	}
	rows := make([]YearlyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, YearlyRow{
			Year: int(parseInt(rec[0])), Lat: parseFloat(rec[1]), Lon: parseFloat(rec[2]),
			Province: rec[3], City: rec[4], AdminName: rec[5], NameSource: rec[6],
			Variable:   rec[7],
			YearlyMean: parseFloat(rec[8]), YearlyMax: parseFloat(rec[9]),
			YearlyMin: parseFloat(rec[10]), YearlyStd: parseFloat(rec[11]),
			TotalCount: parseInt(rec[12]), TotalMissing: parseInt(rec[13]),
			MonthsPresent:    int(parseInt(rec[14])),
			DataCompleteness: parseFloat(rec[15]), DataQuality: parseFloat(rec[16]),
		})
	}
	return rows, nil
}

func writeCSV(path string, header []string, n int, record func(i int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(record(i)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil
}

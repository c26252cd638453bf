package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/aerisview/reanalysis-etl/internal/config"
)

// Format selects the on-disk table encoding.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

func (f Format) ext() string {
	if f == FormatCSV {
		return ".csv"
	}
	return ".parquet"
}

// Store reads and writes result tables under the processed/aggregated layout:
//
//	processed/<granularity>/<year>/<MM>/<DD>/<YYYYMMDD>.parquet
//	aggregated/<granularity>/<year>/monthly/<YYYYMM>_monthly.parquet
//	aggregated/<granularity>/<year>/yearly/<year>_yearly.parquet
//	aggregated/<granularity>/<year>/index.json
type Store struct {
	ProcessedDir  string
	AggregatedDir string
	Format        Format
	Logger        *slog.Logger
}

// dailyName matches the 8-digit date encoded in a daily file name.
var dailyName = regexp.MustCompile(`^(\d{8})\.(parquet|csv)$`)

// DailyPath returns the daily table path for a granularity and date.
func (s *Store) DailyPath(g config.Granularity, day time.Time) string {
	return filepath.Join(s.ProcessedDir, string(g),
		day.Format("2006"), day.Format("01"), day.Format("02"),
		day.Format("20060102")+s.Format.ext())
}

// WriteDaily persists one day's rows, creating the directory tree as needed.
// A failed parquet write degrades to the CSV encoding.
func (s *Store) WriteDaily(g config.Granularity, day time.Time, rows []DailyRow) (string, error) {
	path := s.DailyPath(g, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create daily dir: %w", err)
	}
	if s.Format == FormatCSV {
		return path, writeDailyCSV(path, rows)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return s.fallbackCSV(path, err, func(p string) error { return writeDailyCSV(p, rows) })
	}
	return path, nil
}

// fallbackCSV retries a failed parquet write in the delimited-text encoding
// and returns the path actually written.
func (s *Store) fallbackCSV(path string, perr error, write func(string) error) (string, error) {
	csvPath := altPath(path)
	if s.Logger != nil {
		s.Logger.Warn("parquet write failed, falling back to csv",
			"path", path, "error", perr)
	}
	if err := write(csvPath); err != nil {
		return "", fmt.Errorf("parquet write failed (%v), csv fallback: %w", perr, err)
	}
	return csvPath, nil
}

// altPath returns the companion path in the other encoding.
func altPath(path string) string {
	if strings.HasSuffix(path, ".csv") {
		return strings.TrimSuffix(path, ".csv") + ".parquet"
	}
	return strings.TrimSuffix(path, ".parquet") + ".csv"
}

// ReadDaily loads one daily table, detecting the encoding by extension.
func (s *Store) ReadDaily(path string) ([]DailyRow, error) {
	if filepath.Ext(path) == ".csv" {
		return readDailyCSV(path)
	}
	return parquet.ReadFile[DailyRow](path)
}

// MonthDaily is one reloaded daily table tagged with its date.
type MonthDaily struct {
	Date time.Time
	Rows []DailyRow
}

// ReadMonthDaily reloads every daily table of the given month, inferring each
// date from the file name. Unreadable files are logged and skipped.
func (s *Store) ReadMonthDaily(g config.Granularity, year, month int) ([]MonthDaily, error) {
	monthDir := filepath.Join(s.ProcessedDir, string(g),
		fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month))
	dayDirs, err := os.ReadDir(monthDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read month dir %s: %w", monthDir, err)
	}

	var out []MonthDaily
	for _, d := range dayDirs {
		if !d.IsDir() {
			continue
		}
		dayDir := filepath.Join(monthDir, d.Name())
		files, err := os.ReadDir(dayDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			match := dailyName.FindStringSubmatch(f.Name())
			if match == nil {
				continue
			}
			date, err := time.Parse("20060102", match[1])
			if err != nil {
				continue
			}
			path := filepath.Join(dayDir, f.Name())
			rows, err := s.ReadDaily(path)
			if err != nil {
				if s.Logger != nil {
					s.Logger.Warn("skipping unreadable daily file", "path", path, "error", err)
				}
				continue
			}
			out = append(out, MonthDaily{Date: date, Rows: rows})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// MonthlyPath returns the monthly table path for a granularity, year and month.
func (s *Store) MonthlyPath(g config.Granularity, year, month int) string {
	return filepath.Join(s.AggregatedDir, string(g), fmt.Sprintf("%04d", year),
		"monthly", fmt.Sprintf("%04d%02d_monthly%s", year, month, s.Format.ext()))
}

// WriteMonthly persists one month's summary rows and records the month in the
// year's index. A failed parquet write degrades to the CSV encoding.
func (s *Store) WriteMonthly(g config.Granularity, year, month int, rows []MonthlyRow) (string, error) {
	path := s.MonthlyPath(g, year, month)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create monthly dir: %w", err)
	}
	if s.Format == FormatCSV {
		if err := writeMonthlyCSV(path, rows); err != nil {
			return "", err
		}
	} else if err := parquet.WriteFile(path, rows); err != nil {
		path, err = s.fallbackCSV(path, err, func(p string) error { return writeMonthlyCSV(p, rows) })
		if err != nil {
			return "", err
		}
	}
	if err := s.recordMonth(g, year, month); err != nil {
		return "", err
	}
	return path, nil
}

// ReadMonthly loads one month's summary rows, checking both encodings. A
// missing file yields nil rows.
func (s *Store) ReadMonthly(g config.Granularity, year, month int) ([]MonthlyRow, error) {
	path, ok := resolveTable(s.MonthlyPath(g, year, month))
	if !ok {
		return nil, nil
	}
	if filepath.Ext(path) == ".csv" {
		return readMonthlyCSV(path)
	}
	return parquet.ReadFile[MonthlyRow](path)
}

// resolveTable locates a table file, trying the companion encoding when the
// configured one is absent.
func resolveTable(path string) (string, bool) {
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return path, true
	}
	alt := altPath(path)
	if fi, err := os.Stat(alt); err == nil && !fi.IsDir() {
		return alt, true
	}
	return "", false
}

// YearlyPath returns the yearly table path for a granularity and year.
func (s *Store) YearlyPath(g config.Granularity, year int) string {
	return filepath.Join(s.AggregatedDir, string(g), fmt.Sprintf("%04d", year),
		"yearly", fmt.Sprintf("%04d_yearly%s", year, s.Format.ext()))
}

// WriteYearly persists one year's summary rows. A failed parquet write
// degrades to the CSV encoding.
func (s *Store) WriteYearly(g config.Granularity, year int, rows []YearlyRow) (string, error) {
	path := s.YearlyPath(g, year)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create yearly dir: %w", err)
	}
	if s.Format == FormatCSV {
		return path, writeYearlyCSV(path, rows)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return s.fallbackCSV(path, err, func(p string) error { return writeYearlyCSV(p, rows) })
	}
	return path, nil
}

// ReadYearly loads one year's summary rows, checking both encodings. A
// missing file yields nil rows.
func (s *Store) ReadYearly(g config.Granularity, year int) ([]YearlyRow, error) {
	path, ok := resolveTable(s.YearlyPath(g, year))
	if !ok {
		return nil, nil
	}
	if filepath.Ext(path) == ".csv" {
		return readYearlyCSV(path)
	}
	return parquet.ReadFile[YearlyRow](path)
}

// monthIndex is the per-year catalog of aggregated months.
type monthIndex struct {
	Months []string `json:"months"`
}

func (s *Store) indexPath(g config.Granularity, year int) string {
	return filepath.Join(s.AggregatedDir, string(g), fmt.Sprintf("%04d", year), "index.json")
}

// monthlyFile matches the YYYYMM tag encoded in a monthly summary file name.
var monthlyFile = regexp.MustCompile(`^(\d{6})_monthly\.(parquet|csv)$`)

// Months returns the aggregated months (YYYYMM) recorded for a year, sorted.
// When the index is missing or empty the monthly directory is scanned
// instead, so a lost index never hides existing summaries.
func (s *Store) Months(g config.Granularity, year int) ([]string, error) {
	months, err := s.readIndex(g, year)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return s.scanMonths(g, year)
	}
	sort.Strings(months)
	return months, nil
}

func (s *Store) readIndex(g config.Granularity, year int) ([]string, error) {
	raw, err := os.ReadFile(s.indexPath(g, year))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var idx monthIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("parse month index: %w", err)
	}
	return idx.Months, nil
}

// scanMonths recovers the month list from the monthly summary file names.
func (s *Store) scanMonths(g config.Granularity, year int) ([]string, error) {
	dir := filepath.Join(s.AggregatedDir, string(g), fmt.Sprintf("%04d", year), "monthly")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	seen := make(map[string]bool)
	var months []string
	for _, e := range entries {
		m := monthlyFile.FindStringSubmatch(e.Name())
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		months = append(months, m[1])
	}
	sort.Strings(months)
	return months, nil
}

// recordMonth adds a month to the year's index, keeping entries unique and
// sorted, and rewrites the index atomically.
func (s *Store) recordMonth(g config.Granularity, year, month int) error {
	months, err := s.readIndex(g, year)
	if err != nil {
		return err
	}
	entry := fmt.Sprintf("%04d%02d", year, month)
	for _, m := range months {
		if m == entry {
			return nil
		}
	}
	months = append(months, entry)
	sort.Strings(months)

	raw, err := json.MarshalIndent(monthIndex{Months: months}, "", "  ")
	if err != nil {
		return err
	}
	path := s.indexPath(g, year)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

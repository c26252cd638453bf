// Command reanalysis drives the daily-archive preprocessing pipeline and its
// downstream aggregation and export stages.
//
// Usage:
//
//	reanalysis preprocess      -years 2013,2014
//	reanalysis aggregate-month -year 2013 -month 1
//	reanalysis aggregate-year  -year 2013
//	reanalysis export          -years 2013,2014 [-variable pm25]
//	reanalysis cleanup-tmp     [-batch 100]
//
// All other settings come from environment variables; see internal/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aerisview/reanalysis-etl/internal/config"
	"github.com/aerisview/reanalysis-etl/internal/export"
	"github.com/aerisview/reanalysis-etl/internal/observability"
	"github.com/aerisview/reanalysis-etl/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	p := pipeline.New(cfg, logger, metrics, clockwork.NewRealClock())

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], cfg, logger, p); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, cfg *config.Config, logger *slog.Logger, p *pipeline.Pipeline) error {
	switch command {
	case "preprocess":
		fs := flag.NewFlagSet("preprocess", flag.ExitOnError)
		years := fs.String("years", "", "comma-separated years to process (required)")
		fs.Parse(args)
		ys, err := parseYears(*years)
		if err != nil {
			return err
		}
		result, err := p.Preprocess(ctx, ys)
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d of %d archives failed", len(result.Failed), len(result.Failed)+len(result.Saved))
		}
		return nil

	case "aggregate-month":
		fs := flag.NewFlagSet("aggregate-month", flag.ExitOnError)
		year := fs.Int("year", 0, "year to aggregate (required)")
		month := fs.Int("month", 0, "month to aggregate, 0 for all twelve")
		fs.Parse(args)
		if *year == 0 {
			return fmt.Errorf("-year is required")
		}
		months := []int{*month}
		if *month == 0 {
			months = allMonths()
		}
		for _, m := range months {
			if m < 1 || m > 12 {
				return fmt.Errorf("invalid month %d", m)
			}
			if _, err := p.AggregateMonth(*year, m); err != nil {
				return err
			}
		}
		return nil

	case "aggregate-year":
		fs := flag.NewFlagSet("aggregate-year", flag.ExitOnError)
		year := fs.Int("year", 0, "year to aggregate (required)")
		fs.Parse(args)
		if *year == 0 {
			return fmt.Errorf("-year is required")
		}
		_, err := p.AggregateYear(*year)
		return err

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		years := fs.String("years", "", "comma-separated years to export (required)")
		variable := fs.String("variable", export.DefaultVariable, "variable to chart")
		fs.Parse(args)
		ys, err := parseYears(*years)
		if err != nil {
			return err
		}
		e := &export.Exporter{
			Store:     p.Store(),
			OutputDir: cfg.OutputDir,
			Variable:  *variable,
			Logger:    logger,
		}
		paths, err := e.Export(cfg.Granularity, ys)
		if err != nil {
			return err
		}
		logger.Info("export finished", "files", paths)
		return nil

	case "cleanup-tmp":
		fs := flag.NewFlagSet("cleanup-tmp", flag.ExitOnError)
		batch := fs.Int("batch", 100, "maximum directories to delete")
		fs.Parse(args)
		return p.CleanupTmp(*batch)

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server error", "error", err)
	}
}

func parseYears(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("-years is required")
	}
	parts := strings.Split(s, ",")
	years := make([]int, 0, len(parts))
	for _, part := range parts {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || y < 1900 || y > 2200 {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}

func allMonths() []int {
	months := make([]int, 12)
	for i := range months {
		months[i] = i + 1
	}
	return months
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: reanalysis <command> [flags]

commands:
  preprocess       process daily archives into cleaned daily tables
  aggregate-month  roll daily tables into monthly summaries
  aggregate-year   roll monthly summaries into a yearly summary
  export           write ECharts JSON documents from monthly summaries
  cleanup-tmp      delete temp directories recorded for deferred cleanup`)
}

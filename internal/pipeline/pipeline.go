// Package pipeline orchestrates the preprocessing and aggregation stages:
// archive discovery, a bounded worker pool over daily archives, and the
// monthly/yearly rollups.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aerisview/reanalysis-etl/internal/aggregate"
	"github.com/aerisview/reanalysis-etl/internal/archive"
	"github.com/aerisview/reanalysis-etl/internal/config"
	"github.com/aerisview/reanalysis-etl/internal/geo"
	"github.com/aerisview/reanalysis-etl/internal/observability"
	"github.com/aerisview/reanalysis-etl/internal/store"
)

// heartbeatInterval is how often the pipeline logs worker progress.
const heartbeatInterval = 5 * time.Second

// Pipeline wires the stages together. Construct with New.
type Pipeline struct {
	cfg      *config.Config
	reader   *archive.Reader
	polygons *geo.Cache
	store    *store.Store
	manifest *archive.Manifest
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

// New assembles a pipeline from configuration.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Pipeline {
	manifest := archive.NewManifest(cfg.CleanupManifest)
	manifest.OnRecord = func(string) { metrics.TempDirsRecorded.Inc() }

	return &Pipeline{
		cfg: cfg,
		reader: &archive.Reader{
			MaxInMemoryBytes:  cfg.MaxInMemoryBytes,
			PureMemory:        cfg.PureMemory,
			AllowDiskFallback: cfg.AllowDiskFall,
			Manifest:          manifest,
			Logger:            logger,
		},
		polygons: geo.NewCache(),
		store: &store.Store{
			ProcessedDir:  cfg.ProcessedDir,
			AggregatedDir: cfg.AggregatedDir,
			Format:        store.Format(cfg.OutputFormat),
			Logger:        logger,
		},
		manifest: manifest,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// task is one daily archive to process.
type task struct {
	path string
	day  time.Time
}

// Result summarizes a preprocessing run.
type Result struct {
	Saved  []string
	Failed []string
}

// Preprocess processes every daily archive found for the given years through
// a pool of cfg.Workers goroutines. Individual archive failures are logged
// and collected; they never abort the run.
func (p *Pipeline) Preprocess(ctx context.Context, years []int) (*Result, error) {
	tasks := p.discover(years)
	if len(tasks) == 0 {
		p.logger.Warn("no archives found", "raw_dir", p.cfg.RawDir, "years", years)
		return &Result{}, nil
	}
	p.logger.Info("preprocessing started",
		"archives", len(tasks), "workers", p.cfg.Workers, "granularity", p.cfg.Granularity)

	var completed atomic.Int64
	done := make(chan struct{})
	go p.heartbeat(done, &completed, len(tasks))
	defer close(done)

	taskCh := make(chan task)
	type outcome struct {
		path  string
		saved string
		err   error
	}
	outCh := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				p.metrics.WorkersActive.Inc()
				saved, err := p.runTask(ctx, t)
				p.metrics.WorkersActive.Dec()
				completed.Add(1)
				outCh <- outcome{path: t.path, saved: saved, err: err}
			}
		}()
	}
	go func() {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outCh)
	}()

	result := &Result{}
	for o := range outCh {
		if o.err != nil {
			p.logger.Error("archive failed", "archive", o.path, "error", o.err)
			p.metrics.ArchivesFailed.Inc()
			result.Failed = append(result.Failed, o.path)
			continue
		}
		result.Saved = append(result.Saved, o.saved)
	}

	p.logger.Info("preprocessing finished",
		"saved", len(result.Saved), "failed", len(result.Failed))
	return result, ctx.Err()
}

// runTask applies the optional per-archive timeout around one archive.
func (p *Pipeline) runTask(ctx context.Context, t task) (string, error) {
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}
	start := p.clock.Now()
	saved, err := p.processArchive(ctx, t)
	if err != nil {
		return "", err
	}
	p.metrics.ArchivesProcessed.Inc()
	p.metrics.ArchiveDuration.Observe(p.clock.Since(start).Seconds())
	return saved, nil
}

// discover enumerates existing daily archives named <prefix><YYYYMMDD>.zip
// under the raw directory, in date order.
func (p *Pipeline) discover(years []int) []task {
	var tasks []task
	for _, year := range years {
		for month := 1; month <= 12; month++ {
			for day := 1; day <= 31; day++ {
				date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
				if date.Day() != day || date.Month() != time.Month(month) {
					continue // calendar overflow, e.g. Feb 30
				}
				name := fmt.Sprintf("%s%s.zip", p.cfg.ArchivePrefix, date.Format("20060102"))
				path := filepath.Join(p.cfg.RawDir, name)
				if _, err := os.Stat(path); err != nil {
					continue
				}
				tasks = append(tasks, task{path: path, day: date})
			}
		}
	}
	return tasks
}

// heartbeat logs progress periodically until done is closed.
func (p *Pipeline) heartbeat(done <-chan struct{}, completed *atomic.Int64, total int) {
	ticker := p.clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			p.logger.Info("preprocessing progress",
				"completed", completed.Load(), "total", total)
		}
	}
}

// AggregateMonth rolls one month's daily tables into the monthly summary.
// Returns the written path, empty when the month has no daily data.
func (p *Pipeline) AggregateMonth(year, month int) (string, error) {
	dailies, err := p.store.ReadMonthDaily(p.cfg.Granularity, year, month)
	if err != nil {
		return "", err
	}
	if len(dailies) == 0 {
		p.logger.Info("no daily data for month", "year", year, "month", month)
		return "", nil
	}
	rows := aggregate.Monthly(p.cfg.Granularity, year, month, dailies)
	path, err := p.store.WriteMonthly(p.cfg.Granularity, year, month, rows)
	if err != nil {
		return "", fmt.Errorf("write monthly summary: %w", err)
	}
	p.logger.Info("monthly summary written",
		"year", year, "month", month, "days", len(dailies), "rows", len(rows), "path", path)
	return path, nil
}

// AggregateYear rolls the year's monthly summaries into the yearly summary.
// Returns the written path, empty when no month has been aggregated.
func (p *Pipeline) AggregateYear(year int) (string, error) {
	months, err := p.store.Months(p.cfg.Granularity, year)
	if err != nil {
		return "", err
	}
	var monthly []store.MonthlyRow
	for _, tag := range months {
		y, m, ok := parseMonthTag(tag)
		if !ok || y != year {
			continue
		}
		rows, err := p.store.ReadMonthly(p.cfg.Granularity, y, m)
		if err != nil {
			p.logger.Warn("skipping unreadable monthly file",
				"year", y, "month", m, "error", err)
			continue
		}
		monthly = append(monthly, rows...)
	}
	if len(monthly) == 0 {
		p.logger.Info("no monthly data for year", "year", year)
		return "", nil
	}
	rows := aggregate.Yearly(year, monthly)
	path, err := p.store.WriteYearly(p.cfg.Granularity, year, rows)
	if err != nil {
		return "", fmt.Errorf("write yearly summary: %w", err)
	}
	p.logger.Info("yearly summary written", "year", year, "rows", len(rows), "path", path)
	return path, nil
}

// CleanupTmp deletes up to batch directories from the deferred-cleanup
// manifest.
func (p *Pipeline) CleanupTmp(batch int) error {
	deleted, failed, err := p.manifest.CleanupBatch(batch)
	if err != nil {
		return err
	}
	p.logger.Info("temp cleanup finished",
		"deleted", len(deleted), "failed", len(failed), "remaining", len(p.manifest.Pending()))
	for _, d := range failed {
		p.logger.Warn("temp dir could not be deleted", "dir", d)
	}
	return nil
}

// Store exposes the underlying table store, for the export stage.
func (p *Pipeline) Store() *store.Store { return p.store }

func parseMonthTag(tag string) (year, month int, ok bool) {
	if len(tag) != 6 {
		return 0, 0, false
	}
	var y, m int
	if _, err := fmt.Sscanf(tag, "%4d%2d", &y, &m); err != nil {
		return 0, 0, false
	}
	if m < 1 || m > 12 {
		return 0, 0, false
	}
	return y, m, true
}

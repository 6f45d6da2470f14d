package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appconfig "okxflow/config"
	"okxflow/internal/archive"
	"okxflow/internal/catalog"
	"okxflow/logger"
	"okxflow/writer"
)

// unit is one schedulable piece of work.
type unit struct {
	symbol string
	date   time.Time
}

// Summary counts unit outcomes of one Dump invocation.
type Summary struct {
	Completed int64
	Cached    int64
	Missing   int64
	Failed    int64
}

// Units returns the total number of scheduled units.
func (s Summary) Units() int64 {
	return s.Completed + s.Cached + s.Missing + s.Failed
}

// Dumper drives a full dump: it loads the symbol catalog, enumerates work
// units for the requested kind and date range, and runs them on a bounded
// worker pool. A unit failure is logged and counted; it never stops the run.
type Dumper struct {
	cfg     *appconfig.Config
	runner  *Runner
	catalog *catalog.Client
	workers int
	log     *logger.Log
}

// NewDumper wires the dumper and all its collaborators from the
// configuration. The S3 mirror is only constructed when enabled.
func NewDumper(cfg *appconfig.Config) (*Dumper, error) {
	var mirror *writer.Mirror
	if cfg.Storage.S3.Enabled {
		m, err := writer.NewMirror(cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize s3 mirror: %w", err)
		}
		mirror = m
	}

	runner, err := NewRunner(cfg, mirror)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	workers := cfg.Dump.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	return &Dumper{
		cfg:     cfg,
		runner:  runner,
		catalog: cat,
		workers: workers,
		log:     logger.GetLogger(),
	}, nil
}

// Dump processes every unit of the given kind within [start, end]. Zero
// start and end fall back to each symbol's availability window. The returned
// error covers setup failures only; per-unit failures are reflected in the
// summary.
func (d *Dumper) Dump(ctx context.Context, kind archive.Kind, start, end time.Time) (Summary, error) {
	if !kind.Valid() {
		return Summary{}, fmt.Errorf("%w: %q", archive.ErrInvalidKind, kind.String())
	}

	var units []unit
	if kind == archive.KindSwapRateAll {
		units = monthlyUnits(start, end)
	} else {
		symbols, err := d.resolveSymbols(ctx)
		if err != nil {
			return Summary{}, err
		}
		units = dailyUnits(symbols, start, end)
	}

	log := d.log.WithComponent("dumper").WithFields(logger.Fields{
		"kind":  kind.String(),
		"units": len(units),
	})
	log.Info("dump started")

	var summary Summary
	jobs := make(chan unit)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				d.runOne(ctx, kind, u, &summary)
			}
		}()
	}

schedule:
	for _, u := range units {
		select {
		case <-ctx.Done():
			break schedule
		case jobs <- u:
		}
	}
	close(jobs)
	wg.Wait()

	log.WithFields(logger.Fields{
		"completed": atomic.LoadInt64(&summary.Completed),
		"cached":    atomic.LoadInt64(&summary.Cached),
		"missing":   atomic.LoadInt64(&summary.Missing),
		"failed":    atomic.LoadInt64(&summary.Failed),
	}).Info("dump finished")

	kindFields := logger.Fields{"kind": kind.String()}
	d.log.LogMetric("dumper", "units_completed", summary.Completed, "counter", kindFields)
	d.log.LogMetric("dumper", "units_cached", summary.Cached, "counter", kindFields)
	d.log.LogMetric("dumper", "units_missing", summary.Missing, "counter", kindFields)
	d.log.LogMetric("dumper", "units_failed", summary.Failed, "counter", kindFields)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// runOne executes a single unit and folds its outcome into the summary.
func (d *Dumper) runOne(ctx context.Context, kind archive.Kind, u unit, summary *Summary) {
	result, err := d.runner.RunUnit(ctx, u.symbol, kind, u.date)
	if err != nil {
		atomic.AddInt64(&summary.Failed, 1)
		d.log.WithComponent("dumper").WithError(err).WithFields(logger.Fields{
			"symbol": u.symbol,
			"kind":   kind.String(),
			"date":   u.date.Format("2006-01-02"),
		}).Error("unit failed")
		return
	}

	switch result.Status {
	case StatusCompleted:
		atomic.AddInt64(&summary.Completed, 1)
	case StatusCached:
		atomic.AddInt64(&summary.Cached, 1)
	case StatusMissing:
		atomic.AddInt64(&summary.Missing, 1)
	}
}

// resolveSymbols loads the catalog and narrows it to the configured symbol
// list when one is set. Configured symbols the catalog does not know are
// skipped with a warning so a typo cannot fail the whole run.
func (d *Dumper) resolveSymbols(ctx context.Context) ([]catalog.SymbolInfo, error) {
	info, err := d.catalog.Symbols(ctx, d.cfg.Dump.AssetClass)
	if err != nil {
		return nil, err
	}

	if len(d.cfg.Dump.Symbols) == 0 {
		symbols := make([]catalog.SymbolInfo, 0, len(info))
		for _, si := range info {
			symbols = append(symbols, si)
		}
		return symbols, nil
	}

	symbols := make([]catalog.SymbolInfo, 0, len(d.cfg.Dump.Symbols))
	for _, id := range d.cfg.Dump.Symbols {
		si, ok := info[id]
		if !ok {
			d.log.WithComponent("dumper").WithFields(logger.Fields{"symbol": id}).Warn("symbol not in catalog, skipping")
			continue
		}
		symbols = append(symbols, si)
	}
	return symbols, nil
}

// dailyUnits enumerates one unit per symbol per day, clipping the requested
// range to each symbol's validity window. A disjoint range yields no units
// for that symbol.
func dailyUnits(symbols []catalog.SymbolInfo, start, end time.Time) []unit {
	var units []unit
	for _, si := range symbols {
		from, to := si.Start, si.End
		if !start.IsZero() && start.After(from) {
			from = truncateDay(start)
		}
		if !end.IsZero() && end.Before(to) {
			to = truncateDay(end)
		}
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			units = append(units, unit{symbol: si.ID, date: day})
		}
	}
	return units
}

// monthlyUnits enumerates one unit per month for the all-symbols funding
// kind. The range defaults to [archive epoch, yesterday] and ignores the
// symbol configuration entirely.
func monthlyUnits(start, end time.Time) []unit {
	from := catalog.ArchiveEpoch
	if !start.IsZero() && start.After(from) {
		from = start
	}
	to := yesterdayUTC()
	if !end.IsZero() && end.Before(to) {
		to = end
	}

	from = time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)

	var units []unit
	for month := from; !month.After(to); month = month.AddDate(0, 1, 0) {
		units = append(units, unit{symbol: archive.AllSwapsSymbol, date: month})
	}
	return units
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func yesterdayUTC() time.Time {
	return truncateDay(time.Now().UTC().AddDate(0, 0, -1))
}

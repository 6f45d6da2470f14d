package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	appconfig "okxflow/config"
	"okxflow/internal/archive"
	"okxflow/internal/candle"
	"okxflow/internal/convert"
	"okxflow/internal/fetch"
	"okxflow/logger"
	"okxflow/writer"
)

// Status is the terminal state of one work unit.
type Status int

const (
	// StatusCompleted means the artifact was produced during this run.
	StatusCompleted Status = iota
	// StatusCached means the artifact already existed and nothing was fetched.
	StatusCached
	// StatusMissing means the remote archive does not exist for this unit.
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCached:
		return "cached"
	case StatusMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Result reports what happened to one work unit.
type Result struct {
	Target archive.Target
	Status Status
	Rows   int
}

// archiveFetcher is the subset of the fetcher the runner needs. It exists
// so tests can substitute a local implementation.
type archiveFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	Download(ctx context.Context, rawURL, dest string) (int64, error)
}

// Runner executes individual work units: resolve, cache-check, fetch,
// convert, and for the derived kind, aggregate. Runner methods are safe for
// concurrent use; each unit touches only its own paths.
type Runner struct {
	resolver  *archive.Resolver
	fetcher   archiveFetcher
	converter *convert.Converter
	candles   *candle.Aggregator
	mirror    *writer.Mirror
	saveDir   string
	log       *logger.Log
}

// NewRunner wires the unit runner from the configuration. mirror may be nil
// when remote mirroring is disabled.
func NewRunner(cfg *appconfig.Config, mirror *writer.Mirror) (*Runner, error) {
	fetcher, err := fetch.NewFetcher(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{
		resolver:  archive.NewResolver(cfg.Dump.SaveDir, cfg.Dump.AssetClass),
		fetcher:   fetcher,
		converter: convert.NewConverter(cfg),
		candles:   candle.NewAggregator(cfg),
		mirror:    mirror,
		saveDir:   cfg.Dump.SaveDir,
		log:       logger.GetLogger(),
	}, nil
}

// RunUnit processes one (symbol, kind, date) unit to completion. The
// artifact's existence is the cache marker: if it is already on disk the unit
// finishes without any network traffic. A missing remote archive is a clean
// outcome, not an error.
func (r *Runner) RunUnit(ctx context.Context, symbol string, kind archive.Kind, date time.Time) (Result, error) {
	if kind == archive.KindKlines {
		return r.runCandleUnit(ctx, symbol, date)
	}

	target, err := r.resolver.Resolve(symbol, kind, date)
	if err != nil {
		return Result{}, err
	}

	if artifactExists(target.ArtifactPath) {
		logger.IncrementCacheHit()
		return Result{Target: target, Status: StatusCached}, nil
	}

	if err := r.fetchRaw(ctx, target); err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			r.log.WithComponent("pipeline").WithFields(logger.Fields{
				"symbol": target.Symbol,
				"kind":   kind.String(),
				"date":   target.Date.Format("2006-01-02"),
			}).Debug("remote archive does not exist")
			return Result{Target: target, Status: StatusMissing}, nil
		}
		return Result{}, err
	}

	rows, err := r.converter.Convert(target)
	if err != nil {
		return Result{}, err
	}

	if err := r.mirrorArtifact(ctx, target.ArtifactPath); err != nil {
		return Result{}, err
	}

	return Result{Target: target, Status: StatusCompleted, Rows: rows}, nil
}

// fetchRaw lands the raw zip at target.RawPath. Trade archives are large and
// streamed straight to disk; funding archives are small enough to buffer.
func (r *Runner) fetchRaw(ctx context.Context, target archive.Target) error {
	if target.Kind.Sorted() {
		_, err := r.fetcher.Download(ctx, target.URL, target.RawPath)
		return err
	}

	body, err := r.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target.RawPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	if err := os.WriteFile(target.RawPath, body, 0o644); err != nil {
		return fmt.Errorf("write raw archive: %w", err)
	}
	return nil
}

// runCandleUnit derives the 1-minute candle artifact for one day. The
// aggtrade artifact is the input; if it is not cached yet the runner produces
// it first, so a candle dump pulls its own dependencies.
func (r *Runner) runCandleUnit(ctx context.Context, symbol string, date time.Time) (Result, error) {
	target, err := r.resolver.Resolve(symbol, archive.KindKlines, date)
	if err != nil {
		return Result{}, err
	}

	if artifactExists(target.ArtifactPath) {
		logger.IncrementCacheHit()
		return Result{Target: target, Status: StatusCached}, nil
	}

	tradeResult, err := r.RunUnit(ctx, symbol, archive.KindAggTrades, date)
	if err != nil {
		return Result{}, err
	}
	if tradeResult.Status == StatusMissing {
		// No trades that day means no candles either.
		return Result{Target: target, Status: StatusMissing}, nil
	}

	rows, err := r.candles.Aggregate(tradeResult.Target.ArtifactPath, target.ArtifactPath, date)
	if err != nil {
		return Result{}, err
	}

	if err := r.mirrorArtifact(ctx, target.ArtifactPath); err != nil {
		return Result{}, err
	}

	return Result{Target: target, Status: StatusCompleted, Rows: rows}, nil
}

func (r *Runner) mirrorArtifact(ctx context.Context, artifactPath string) error {
	if r.mirror == nil {
		return nil
	}
	rel, err := filepath.Rel(r.saveDir, artifactPath)
	if err != nil {
		return fmt.Errorf("relativize artifact path: %w", err)
	}
	return r.mirror.Upload(ctx, artifactPath, filepath.ToSlash(rel))
}

func artifactExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

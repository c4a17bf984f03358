// Package batch recognizes values in many image files with a bounded
// worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/scan2sheets/internal/geometry"
	"github.com/MeKo-Tech/scan2sheets/internal/imageio"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
)

// ErrNoImages is returned when discovery finds nothing to process.
var ErrNoImages = errors.New("no image files found")

// Analyzer is the part of the recognizer a batch needs.
type Analyzer interface {
	Run(ctx context.Context, req recognize.Request, progress recognize.Progress) (recognize.Analysis, error)
}

// Config controls discovery and concurrency.
type Config struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	// Workers bounds concurrent analyses; zero or less means GOMAXPROCS.
	Workers int
	// Request is the template for every image. Its Image is ignored.
	Request recognize.Request
}

// Item is the outcome for one file. Exactly one of Result and Error is set.
type Item struct {
	File   string            `json:"file" yaml:"file"`
	Result *recognize.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Region *geometry.Rect    `json:"region,omitempty" yaml:"region,omitempty"`
	Error  string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK reports whether a value was recognized.
func (it Item) OK() bool { return it.Result != nil }

// Result holds every item in discovery order.
type Result struct {
	Items    []Item        `json:"items" yaml:"items"`
	Workers  int           `json:"workers" yaml:"workers"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Stats summarizes a batch.
type Stats struct {
	Total      int `json:"total" yaml:"total"`
	Recognized int `json:"recognized" yaml:"recognized"`
	Failed     int `json:"failed" yaml:"failed"`
}

// Stats counts recognized and failed items.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Items)}
	for _, it := range r.Items {
		if it.OK() {
			s.Recognized++
		} else {
			s.Failed++
		}
	}
	return s
}

// Process discovers images under paths and analyzes them concurrently.
// A file that fails to load or recognize becomes an Item with Error set;
// only cancellation of ctx aborts the batch. onItem, when non-nil, is
// called once per finished item from the worker goroutines.
func Process(ctx context.Context, a Analyzer, paths []string, cfg Config, logger *slog.Logger, onItem func(Item)) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	files, err := Discover(paths, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, len(files))

	start := time.Now()
	items := make([]Item, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = processFile(gctx, a, file, cfg.Request)
			if items[i].OK() {
				logger.Debug("Image recognized", "file", file, "source_type", string(items[i].Result.SourceType))
			} else {
				logger.Info("Image failed", "file", file, "error", items[i].Error)
			}
			if onItem != nil {
				onItem(items[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	res := &Result{Items: items, Workers: workers, Duration: time.Since(start)}
	stats := res.Stats()
	logger.Info("Batch finished",
		"images", stats.Total,
		"recognized", stats.Recognized,
		"failed", stats.Failed,
		"workers", workers,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

func processFile(ctx context.Context, a Analyzer, file string, tmpl recognize.Request) Item {
	item := Item{File: file}
	img, _, err := imageio.LoadFile(file)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	req := tmpl
	req.Image = img
	analysis, err := a.Run(ctx, req, recognize.NoOpProgress{})
	if err != nil {
		item.Error = err.Error()
		return item
	}
	region := analysis.Plan.Final()
	item.Result = &analysis.Result
	item.Region = &region
	return item
}

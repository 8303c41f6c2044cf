// Package summary computes recursive directory, file and byte totals by
// listing a tree with a fixed pool of workers.
package summary

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/objectfs/webhdfs/pkg/errors"
	"github.com/objectfs/webhdfs/pkg/types"
)

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 8

const operationName = "CONTENTSUMMARY"

// Engine walks a directory tree through a Lister.
type Engine struct {
	lister   types.Lister
	workers  int
	logger   *slog.Logger
	recorder types.MetricsRecorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder reports the totals of every completed walk.
func WithRecorder(recorder types.MetricsRecorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

// New returns an engine listing with the given number of workers. Values
// below one select DefaultWorkers.
func New(lister types.Lister, workers int, opts ...Option) *Engine {
	if workers < 1 {
		workers = DefaultWorkers
	}
	e := &Engine{
		lister:  lister,
		workers: workers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "summary")
	return e
}

// Workers returns the size of the worker pool.
func (e *Engine) Workers() int {
	return e.workers
}

type counters struct {
	directories atomic.Int64
	files       atomic.Int64
	length      atomic.Int64
}

// Run returns the totals below root. Directories that disappear during the
// walk are skipped; a missing root is an error. The first other failure
// stops all workers and is returned. Cancellation of ctx is reported as
// ErrCodeOperationCanceled.
func (e *Engine) Run(ctx context.Context, root string) (types.ContentSummary, error) {
	start := time.Now()
	var totals counters

	queue := newWorkQueue()
	queue.push(root)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, queue.close)
	defer stop()

	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			for {
				dir, ok := queue.pop()
				if !ok {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				err := e.visit(gctx, queue, dir, dir == root, &totals)
				queue.done()
				if err != nil {
					return err
				}
			}
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.ContentSummary{}, errors.Canceled(operationName, ctxErr).
			WithComponent("summary").
			WithPath(root)
	}
	if err != nil {
		e.logger.Debug("Content summary failed", "root", root, "error", err)
		return types.ContentSummary{}, err
	}

	summary := types.ContentSummary{
		DirectoryCount: totals.directories.Load(),
		FileCount:      totals.files.Load(),
		Length:         totals.length.Load(),
	}
	summary.SpaceConsumed = summary.Length
	if e.recorder != nil {
		e.recorder.RecordSummary(summary.DirectoryCount, summary.FileCount)
	}
	e.logger.Debug("Content summary complete",
		"root", root,
		"directories", summary.DirectoryCount,
		"files", summary.FileCount,
		"length", summary.Length,
		"workers", e.workers,
		"duration", time.Since(start))
	return summary, nil
}

func (e *Engine) visit(ctx context.Context, queue *workQueue, dir string, isRoot bool, totals *counters) error {
	entries, err := e.lister.ListAll(ctx, dir)
	if err != nil {
		if !isRoot && errors.IsNotFound(err) {
			e.logger.Debug("Directory vanished during walk", "path", dir)
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			totals.directories.Add(1)
			queue.push(entry.FullPath)
			continue
		}
		totals.files.Add(1)
		totals.length.Add(entry.Length)
	}
	return nil
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/h2smuggle/internal/model"
)

// BatchProcessor scans several targets concurrently. Targets share nothing
// but read-only configuration; each gets a fresh pipeline.
type BatchProcessor struct {
	pipelineFactory func(model.Target) *Pipeline
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of targets scanned at once.
// The default of 1 scans targets one after the other.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor. pipelineFactory is called once
// per target.
func NewBatchProcessor(pipelineFactory func(model.Target) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     1,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch scans targets and returns their reports in input order.
// A failed target keeps its report with Error set and does not stop the
// others. The error is non-nil only when ctx ends; reports of targets that
// never started are nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []model.Target) ([]*model.ScanReport, error) {
	bp.logger.Info("starting batch processing",
		"total_targets", len(targets),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	// each goroutine writes only its own index
	results := make([]*model.ScanReport, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			report := model.NewScanReport(target)
			results[i] = report
			if err := bp.pipelineFactory(target).Execute(gctx, report); err != nil {
				bp.logger.Warn("scan failed",
					"target", target.Addr(),
					"error", err,
				)
				return nil
			}
			bp.logger.Info("scan completed",
				"target", target.Addr(),
				"vulnerable", report.VulnerableCount(),
			)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch processing complete",
		"total_targets", len(targets),
		"elapsed", time.Since(startTime),
	)
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

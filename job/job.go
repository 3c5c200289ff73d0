// Package job runs one extract, transform and load pass.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/pipeline"
	"github.com/aluiziolira/go-scrape-laptops/scraper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Stage names used in errors, logs and metrics.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
)

var tracer = otel.Tracer("github.com/aluiziolira/go-scrape-laptops/job")

// StageError attributes a failure to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Extractor produces the scraped products of one run.
type Extractor interface {
	Run(ctx context.Context) (*models.ScraperResult, error)
}

// Report summarises a finished run.
type Report struct {
	Scrape   *models.ScraperResult
	Table    *models.Table
	Duration time.Duration
}

// Rows returns how many data rows were loaded.
func (r *Report) Rows() int {
	if r == nil {
		return 0
	}
	return r.Table.Len()
}

// Job wires the three stages together.
type Job struct {
	Extractor Extractor
	Writer    pipeline.OutputWriter
	Metrics   *scraper.Metrics
}

// New returns a job; metrics may be nil.
func New(extractor Extractor, writer pipeline.OutputWriter, metrics *scraper.Metrics) *Job {
	return &Job{Extractor: extractor, Writer: writer, Metrics: metrics}
}

// Run executes extract, transform and load in order. The returned report
// is non-nil whenever extraction produced a summary, even on failure.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	ctx, span := tracer.Start(ctx, "job.Run")
	defer span.End()

	start := time.Now()
	report := &Report{}

	fail := func(stage string, err error) (*Report, error) {
		report.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)

		outcome := "failed"
		if errors.Is(err, models.ErrNoData) {
			outcome = "no_data"
		}
		j.Metrics.IncRun(outcome)
		slog.Error("run failed", slog.String("stage", stage), slog.Any("error", err))
		return report, &StageError{Stage: stage, Err: err}
	}

	if _, err := j.stage(ctx, StageExtract, func(ctx context.Context) error {
		var err error
		report.Scrape, err = j.Extractor.Run(ctx)
		return err
	}); err != nil {
		return fail(StageExtract, err)
	}

	if _, err := j.stage(ctx, StageTransform, func(context.Context) error {
		if report.Scrape == nil {
			return models.ErrNoData
		}
		var err error
		report.Table, err = pipeline.Normalize(report.Scrape.Products)
		return err
	}); err != nil {
		return fail(StageTransform, err)
	}

	if _, err := j.stage(ctx, StageLoad, func(ctx context.Context) error {
		return j.Writer.Write(ctx, report.Table)
	}); err != nil {
		return fail(StageLoad, err)
	}

	report.Duration = time.Since(start)
	j.Metrics.IncRun("success")
	span.SetAttributes(attribute.Int("rows", report.Rows()))
	slog.Info("run complete",
		slog.Int("rows", report.Rows()),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (j *Job) stage(ctx context.Context, name string, fn func(context.Context) error) (time.Duration, error) {
	ctx, span := tracer.Start(ctx, "job."+name)
	defer span.End()

	slog.Debug("stage started", slog.String("stage", name))
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	j.Metrics.ObserveStage(name, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return elapsed, err
	}
	slog.Info("stage finished", slog.String("stage", name), slog.Duration("duration", elapsed))
	return elapsed, nil
}

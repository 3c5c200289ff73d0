package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/job"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/pipeline"
	"github.com/aluiziolira/go-scrape-laptops/scheduler"
	"github.com/aluiziolira/go-scrape-laptops/scraper"
	"github.com/aluiziolira/go-scrape-laptops/sheets"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *app) runOnce(ctx context.Context) error {
	j, s, err := a.buildJob(ctx, nil, true)
	if err != nil {
		return err
	}
	stopMetrics := startMetricsServer(a.cfg.MetricsAddr, s.Metrics)
	defer stopMetrics()

	report, err := j.Run(ctx)
	printSummary(report, a.cfg, err)
	return err
}

func (a *app) schedule(ctx context.Context) error {
	j, s, err := a.buildJob(ctx, nil, true)
	if err != nil {
		return err
	}
	stopMetrics := startMetricsServer(a.cfg.MetricsAddr, s.Metrics)
	defer stopMetrics()

	sched, err := scheduler.New(j, a.cfg.Interval)
	if err != nil {
		return err
	}
	sched.OnRun = func(report *job.Report, err error) {
		printSummary(report, a.cfg, err)
	}
	return sched.Run(ctx)
}

func (a *app) preview(ctx context.Context, out io.Writer) error {
	j, _, err := a.buildJob(ctx, pipeline.NewPrettyWriter(out), false)
	if err != nil {
		return err
	}
	_, err = j.Run(ctx)
	return err
}

// buildJob assembles the scraper and the load destinations. A local export
// is written before the spreadsheet, so it survives a failed upload.
func (a *app) buildJob(ctx context.Context, extra pipeline.OutputWriter, withSheets bool) (*job.Job, *scraper.Scraper, error) {
	cfg := a.cfg
	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise scraper: %w", err)
	}

	var writers []pipeline.OutputWriter
	writers = append(writers, extra)
	if cfg.ExportFile != "" {
		fw, err := pipeline.NewFileWriter(cfg.ExportFormat, cfg.ExportFile)
		if err != nil {
			return nil, nil, fmt.Errorf("create export writer: %w", err)
		}
		writers = append(writers, fw)
	}
	if withSheets {
		sw, err := sheets.NewWriter(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to spreadsheet: %w", err)
		}
		slog.Info("spreadsheet ready", slog.String("spreadsheet_id", sw.SpreadsheetID()))
		writers = append(writers, sw)
	}

	return job.New(s, pipeline.NewMultiWriter(writers...), s.Metrics), s, nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func printSummary(report *job.Report, cfg *config.Config, runErr error) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	switch {
	case runErr == nil:
		fmt.Println("Run complete")
	case errors.Is(runErr, models.ErrNoData):
		fmt.Println("Run finished with no data to load")
	default:
		fmt.Println("Run failed")
	}

	if report != nil && report.Scrape != nil {
		result := report.Scrape
		fmt.Printf("  Pages:         %d/%d\n", result.PagesOK, result.PagesTotal)
		if len(result.AbsentPages) > 0 {
			fmt.Printf("  Absent pages:  %s\n", joinInts(result.AbsentPages))
			for _, page := range result.AbsentPages {
				if err, ok := result.PageErrors[page]; ok {
					fmt.Printf("    page %d: %v\n", page, err)
				}
			}
		}
		fmt.Printf("  Items:         %d\n", result.TotalCount())
		fmt.Printf("  Skipped items: %d\n", result.SkippedItems)
		fmt.Printf("  Errors:        %d\n", result.ErrorCount)
		if len(result.ErrorsByType) > 0 {
			fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
		}
		if result.Duplicates > 0 {
			fmt.Printf("  Duplicates:    %d\n", result.Duplicates)
		}
	}
	if report != nil {
		fmt.Printf("  Rows loaded:   %d\n", report.Rows())
		fmt.Printf("  Duration:      %v\n", report.Duration.Round(time.Millisecond))
	}
	if cfg.ExportFile != "" {
		fmt.Printf("  Export file:   %s\n", cfg.ExportFile)
	}
	fmt.Println(separator)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

package job

import (
	"context"
	"errors"
	"testing"

	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/scraper"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	result *models.ScraperResult
	err    error
}

func (s *stubExtractor) Run(context.Context) (*models.ScraperResult, error) {
	return s.result, s.err
}

type captureWriter struct {
	tables []*models.Table
	err    error
}

func (c *captureWriter) Write(_ context.Context, table *models.Table) error {
	c.tables = append(c.tables, table)
	return c.err
}

func products(prices ...float64) models.ResultSet {
	out := make(models.ResultSet, 0, len(prices))
	for i, price := range prices {
		out = append(out, &models.Product{
			Name:     string(rune('a' + i)),
			URL:      "https://webscraper.io/" + string(rune('a'+i)),
			Price:    price,
			Page:     1,
			Position: i + 1,
		})
	}
	return out
}

func TestJobRunLoadsSortedTable(t *testing.T) {
	metrics := scraper.NewMetrics()
	writer := &captureWriter{}
	j := New(&stubExtractor{result: &models.ScraperResult{Products: products(999, 499, 199.99, 1500, 50, 50)}}, writer, metrics)

	report, err := j.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, writer.tables, 1)
	assert.Equal(t, 6, report.Rows())

	var prices []float64
	for _, row := range writer.tables[0].Rows {
		prices = append(prices, row.Price)
	}
	if diff := cmp.Diff([]float64{50, 50, 199.99, 499, 999, 1500}, prices); diff != "" {
		t.Fatalf("prices mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1.0, runCount(t, metrics, "success"))
}

func runCount(t *testing.T, metrics *scraper.Metrics, outcome string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "scraper_runs_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestJobRunStageErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		extractor *stubExtractor
		writerErr error
		stage     string
		noData    bool
		loads     int
	}{
		{
			name:      "extract failure",
			extractor: &stubExtractor{err: boom},
			stage:     StageExtract,
		},
		{
			name:      "no data",
			extractor: &stubExtractor{result: &models.ScraperResult{}, err: models.ErrNoData},
			stage:     StageExtract,
			noData:    true,
		},
		{
			name:      "empty result without error",
			extractor: &stubExtractor{result: &models.ScraperResult{}},
			stage:     StageTransform,
			noData:    true,
		},
		{
			name:      "load failure",
			extractor: &stubExtractor{result: &models.ScraperResult{Products: products(1)}},
			writerErr: boom,
			stage:     StageLoad,
			loads:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &captureWriter{err: tt.writerErr}
			report, err := New(tt.extractor, writer, nil).Run(context.Background())

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.Equal(t, tt.noData, errors.Is(err, models.ErrNoData))
			assert.Contains(t, err.Error(), tt.stage+" stage failed")
			assert.Len(t, writer.tables, tt.loads)
			assert.NotNil(t, report)
		})
	}
}

func TestJobRunKeepsScrapeSummaryOnFailure(t *testing.T) {
	summary := &models.ScraperResult{PagesTotal: 3, AbsentPages: []int{1, 2, 3}}
	report, err := New(&stubExtractor{result: summary, err: models.ErrNoData}, &captureWriter{}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Same(t, summary, report.Scrape)
	assert.Equal(t, 0, report.Rows())
}

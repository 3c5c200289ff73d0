package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

// OutputWriter defines the interface for the load stage.
type OutputWriter interface {
	Write(ctx context.Context, table *models.Table) error
}

// CSVWriter writes the table to a CSV file, replacing it on every run.
type CSVWriter struct {
	filename string
	mu       sync.Mutex
}

// NewCSVWriter prepares a CSV writer for filename.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &CSVWriter{filename: filename}, nil
}

// Write stores the header and rows. The name column keeps the HYPERLINK formula
// so spreadsheet imports stay clickable.
func (cw *CSVWriter) Write(ctx context.Context, table *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()

	f, err := os.Create(cw.filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	for i, values := range table.Values() {
		record := make([]string, len(values))
		for j, v := range values {
			record[j] = csvField(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return f.Close()
}

func csvField(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// JSONWriter writes newline-delimited JSON rows.
type JSONWriter struct {
	filename string
	mu       sync.Mutex
}

// NewJSONWriter prepares a JSONL writer for filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{filename: filename}, nil
}

// Write stores one JSON object per row.
func (jw *JSONWriter) Write(ctx context.Context, table *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	jw.mu.Lock()
	defer jw.mu.Unlock()

	f, err := os.Create(jw.filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	for _, row := range table.Rows {
		if err := encoder.Encode(row); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return f.Close()
}

// NewFileWriter picks the local export writer for format.
func NewFileWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// Package sheets loads a price-ordered table into a new worksheet of a
// Google spreadsheet.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// CredentialsEnv holds service-account JSON when no credentials file is configured.
const CredentialsEnv = "GOOGLE_SHEETS_CREDENTIALS"

const maxTitleLength = 100

var tracer = otel.Tracer("github.com/aluiziolira/go-scrape-laptops/sheets")

// Writer adds one formatted worksheet per Write call.
type Writer struct {
	service       *sheets.Service
	spreadsheetID string

	titleLayout      string
	minRows          int64
	minCols          int64
	descriptionWidth int64

	now     func() time.Time
	sheetID func() int64
}

// NewWriter authenticates with a service account and targets the
// spreadsheet named by cfg.SpreadsheetURL.
func NewWriter(ctx context.Context, cfg *config.Config) (*Writer, error) {
	if err := cfg.RequireSpreadsheet(); err != nil {
		return nil, err
	}
	credsJSON, err := loadCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWriterWithService(service, cfg)
}

// NewWriterWithService wraps an existing Sheets client.
func NewWriterWithService(service *sheets.Service, cfg *config.Config) (*Writer, error) {
	id := ExtractSpreadsheetID(cfg.SpreadsheetURL)
	if id == "" {
		return nil, fmt.Errorf("cannot extract spreadsheet id from %q", cfg.SpreadsheetURL)
	}
	return &Writer{
		service:          service,
		spreadsheetID:    id,
		titleLayout:      cfg.SheetTitleLayout,
		minRows:          cfg.SheetRows,
		minCols:          cfg.SheetCols,
		descriptionWidth: cfg.DescriptionWidth,
		now:              time.Now,
		sheetID:          func() int64 { return 1 + rand.Int63n(math.MaxInt32-1) },
	}, nil
}

func loadCredentials(path string) ([]byte, error) {
	var credsJSON []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		credsJSON = data
	} else {
		env := strings.TrimSpace(os.Getenv(CredentialsEnv))
		if env == "" {
			return nil, fmt.Errorf("credentials not found: set a credentials file or %s", CredentialsEnv)
		}
		credsJSON = []byte(env)
	}

	var creds struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON: %w", err)
	}
	if creds.Type != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account key, got type %q", creds.Type)
	}
	return credsJSON, nil
}

// SpreadsheetID returns the target document ID.
func (w *Writer) SpreadsheetID() string {
	return w.spreadsheetID
}

// Write opens the spreadsheet and adds a new worksheet holding table.
// Sheet creation, cell values and formatting travel in one batch, which
// Sheets applies atomically.
func (w *Writer) Write(ctx context.Context, table *models.Table) error {
	if table.Len() == 0 {
		return models.ErrNoData
	}
	ctx, span := tracer.Start(ctx, "sheets.Write")
	defer span.End()

	doc, err := w.service.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("open spreadsheet %s: %w", w.spreadsheetID, err)
	}

	title := SheetTitle(w.now(), w.titleLayout)
	taken := make(map[int64]bool, len(doc.Sheets))
	for _, sheet := range doc.Sheets {
		if sheet.Properties == nil {
			continue
		}
		if sheet.Properties.Title == title {
			return fmt.Errorf("worksheet %q already exists", title)
		}
		taken[sheet.Properties.SheetId] = true
	}

	sheetID := w.sheetID()
	for taken[sheetID] {
		sheetID = w.sheetID()
	}
	span.SetAttributes(attribute.String("sheet.title", title), attribute.Int64("sheet.id", sheetID))

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: w.buildRequests(sheetID, title, table),
	}
	if _, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("load worksheet %q: %w", title, err)
	}

	name := w.spreadsheetID
	if doc.Properties != nil {
		name = doc.Properties.Title
	}
	slog.Info("worksheet written",
		slog.String("spreadsheet", name),
		slog.String("sheet", title),
		slog.Int64("sheet_id", sheetID),
		slog.Int("rows", table.Len()),
	)
	return nil
}

func (w *Writer) buildRequests(sheetID int64, title string, table *models.Table) []*sheets.Request {
	lastRow := int64(table.Len() + 1)
	cols := int64(len(table.Header))

	return []*sheets.Request{
		{AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				SheetId: sheetID,
				Title:   title,
				GridProperties: &sheets.GridProperties{
					RowCount:    max(w.minRows, lastRow),
					ColumnCount: max(w.minCols, cols),
				},
			},
		}},
		{UpdateCells: &sheets.UpdateCellsRequest{
			Start:  &sheets.GridCoordinate{SheetId: sheetID},
			Rows:   rowData(table),
			Fields: "userEnteredValue",
		}},
		{UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
			Range: &sheets.DimensionRange{
				SheetId:    sheetID,
				Dimension:  "COLUMNS",
				StartIndex: 2,
				EndIndex:   3,
			},
			Properties: &sheets.DimensionProperties{PixelSize: w.descriptionWidth},
			Fields:     "pixelSize",
		}},
		{RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    0,
				EndRowIndex:      1,
				StartColumnIndex: 0,
				EndColumnIndex:   cols,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					HorizontalAlignment: "CENTER",
					TextFormat:          &sheets.TextFormat{Bold: true},
				},
			},
			Fields: "userEnteredFormat(horizontalAlignment,textFormat.bold)",
		}},
		{UpdateBorders: &sheets.UpdateBordersRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    0,
				EndRowIndex:      lastRow,
				StartColumnIndex: 0,
				EndColumnIndex:   cols,
			},
			Top:             solid(),
			Bottom:          solid(),
			Left:            solid(),
			Right:           solid(),
			InnerHorizontal: solid(),
			InnerVertical:   solid(),
		}},
	}
}

func solid() *sheets.Border {
	return &sheets.Border{Style: "SOLID"}
}

// rowData converts table values to typed cells. Column A of every data
// row holds the HYPERLINK formula.
func rowData(table *models.Table) []*sheets.RowData {
	values := table.Values()
	rows := make([]*sheets.RowData, 0, len(values))
	for i, row := range values {
		cells := make([]*sheets.CellData, 0, len(row))
		for j, v := range row {
			cells = append(cells, cell(v, i > 0 && j == 0))
		}
		rows = append(rows, &sheets.RowData{Values: cells})
	}
	return rows
}

func cell(v interface{}, formula bool) *sheets.CellData {
	switch v := v.(type) {
	case float64:
		return &sheets.CellData{UserEnteredValue: &sheets.ExtendedValue{NumberValue: &v}}
	case string:
		if formula {
			return &sheets.CellData{UserEnteredValue: &sheets.ExtendedValue{FormulaValue: &v}}
		}
		return stringCell(v)
	default:
		return stringCell(fmt.Sprint(v))
	}
}

func stringCell(s string) *sheets.CellData {
	return &sheets.CellData{UserEnteredValue: &sheets.ExtendedValue{StringValue: &s}}
}

// SheetTitle formats the run time as a worksheet title.
func SheetTitle(t time.Time, layout string) string {
	if layout == "" {
		layout = config.DefaultConfig().SheetTitleLayout
	}
	title := sanitizeSheetName(t.Format(layout))
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title
}

// sanitizeSheetName removes characters Sheets rejects in titles.
func sanitizeSheetName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "?", "_", "*", "_", "[", "_", "]", "_")
	result := strings.TrimSpace(replacer.Replace(name))
	if result == "" {
		result = "Sheet1"
	}
	return result
}

// ExtractSpreadsheetID accepts a bare ID or a docs.google.com URL.
func ExtractSpreadsheetID(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "/") {
		return ref
	}

	parts := strings.Split(ref, "/d/")
	if len(parts) < 2 {
		return ""
	}
	idPart := parts[1]
	if idx := strings.IndexAny(idPart, "/?#"); idx != -1 {
		idPart = idPart[:idx]
	}
	return strings.TrimSpace(idPart)
}

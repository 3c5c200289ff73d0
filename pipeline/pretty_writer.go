package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrettyWriter renders the table for a terminal.
type PrettyWriter struct {
	out              io.Writer
	descriptionWidth int
}

// NewPrettyWriter renders to out, wrapping descriptions at 60 characters.
func NewPrettyWriter(out io.Writer) *PrettyWriter {
	return &PrettyWriter{out: out, descriptionWidth: 60}
}

func (pw *PrettyWriter) Write(ctx context.Context, t *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(pw.out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{t.Header[0], t.Header[1], t.Header[2]})
	for _, row := range t.Rows {
		tw.AppendRow(table.Row{row.Link.Text, fmt.Sprintf("%.2f", row.Price), row.Description})
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d items", len(t.Rows)), "", ""})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, WidthMax: pw.descriptionWidth},
	})
	tw.Render()
	return nil
}

package models

// Column labels of the exported table. The load stage formats columns by position.
const (
	ColumnName        = "Name"
	ColumnPrice       = "Price, $"
	ColumnDescription = "Description"
)

// Header is the fixed first row of every table.
var Header = [3]string{ColumnName, ColumnPrice, ColumnDescription}

// Row is one data row, in header column order.
type Row struct {
	Link        RichLink `json:"link"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
}

// Table is the header plus price-ordered rows handed to the load stage.
type Table struct {
	Header [3]string
	Rows   []Row
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Values renders the table as spreadsheet input, header included.
// The first column carries the HYPERLINK formula.
func (t *Table) Values() [][]interface{} {
	values := make([][]interface{}, 0, len(t.Rows)+1)
	values = append(values, []interface{}{t.Header[0], t.Header[1], t.Header[2]})
	for _, row := range t.Rows {
		values = append(values, []interface{}{row.Link.Formula(), row.Price, row.Description})
	}
	return values
}

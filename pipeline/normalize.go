package pipeline

import (
	"sort"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

// Normalize turns a ResultSet into the table handed to the load stage:
// the fixed header followed by rows in ascending price order. Equal prices
// keep their accumulation order.
func Normalize(rs models.ResultSet) (*models.Table, error) {
	if len(rs) == 0 {
		return nil, models.ErrNoData
	}

	rows := make([]models.Row, 0, len(rs))
	for _, product := range rs {
		if product == nil {
			continue
		}
		rows = append(rows, models.Row{
			Link:        product.Link(),
			Price:       product.Price,
			Description: product.Description,
		})
	}
	if len(rows) == 0 {
		return nil, models.ErrNoData
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Price < rows[j].Price
	})

	return &models.Table{Header: models.Header, Rows: rows}, nil
}

package stock

import (
	"context"
	"fmt"
)

// ImportRow is the validated record produced by the external importers
// (spreadsheet and PDF ingestion). The parsers themselves live outside
// this service; only their data contract lands here.
type ImportRow struct {
	SKU           string `json:"sku" validate:"required,max=50"`
	Name          string `json:"name" validate:"required,max=200"`
	Category      string `json:"category"`
	Barcode       string `json:"barcode"`
	Unit          string `json:"unit"`
	PurchasePrice string `json:"purchase_price"`
	SalePrice     string `json:"sale_price"`
	OpeningQty    string `json:"opening_qty"`
	ReorderLevel  string `json:"reorder_level"`
	TaxRate       string `json:"tax_rate"`
}

// ImportReport summarises a bulk upsert run.
type ImportReport struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Failed   []ImportError `json:"failed,omitempty"`
}

// ImportError records a row that was rejected, with its position.
type ImportError struct {
	Row    int    `json:"row"`
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

// BulkUpsert applies importer rows keyed by SKU: fresh SKUs are inserted
// with their opening quantity, known SKUs get master fields refreshed while
// live quantity is preserved. Row failures are collected, not fatal, so one
// bad line never aborts a whole sheet.
func (s *Service) BulkUpsert(ctx context.Context, rows []ImportRow, actor string) (ImportReport, error) {
	var report ImportReport
	if len(rows) == 0 {
		return report, fmt.Errorf("%w: no rows to import", ErrInvalid)
	}
	for idx, row := range rows {
		item, err := buildItem(ItemInput{
			SKU:           row.SKU,
			Name:          row.Name,
			Category:      row.Category,
			Barcode:       row.Barcode,
			Unit:          row.Unit,
			PurchasePrice: row.PurchasePrice,
			SalesPrice:    row.SalePrice,
			TaxRate:       row.TaxRate,
			OpeningQty:    row.OpeningQty,
			ReorderLevel:  row.ReorderLevel,
			Actor:         actor,
		}, true)
		if err != nil {
			report.Failed = append(report.Failed, ImportError{Row: idx + 1, SKU: row.SKU, Reason: err.Error()})
			continue
		}
		inserted, err := s.repo.Upsert(ctx, item)
		if err != nil {
			report.Failed = append(report.Failed, ImportError{Row: idx + 1, SKU: row.SKU, Reason: err.Error()})
			continue
		}
		if inserted {
			report.Inserted++
		} else {
			report.Updated++
		}
	}
	s.record(ctx, actor, "stock.import", 0, map[string]any{
		"inserted": report.Inserted,
		"updated":  report.Updated,
		"failed":   len(report.Failed),
	})
	return report, nil
}

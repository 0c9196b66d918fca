package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a tradeable stock item. Quantity is mutated only by the
// voucher engine; everything else belongs to the masters screen and
// the bulk importer.
type Item struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	Barcode       string          `json:"barcode,omitempty"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalesPrice    decimal.Decimal `json:"sales_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReorderLevel  decimal.Decimal `json:"reorder_level"`
	UpdatedBy     string          `json:"updated_by"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Status derives the low-stock flag. It is a projection, never stored.
func (i Item) Status() string {
	if i.ReorderLevel.IsPositive() && i.Quantity.LessThanOrEqual(i.ReorderLevel) {
		return "LOW"
	}
	return "OK"
}

// view decorates Item with the derived status for JSON responses.
type view struct {
	Item
	Status string `json:"status"`
}

func toView(i Item) view {
	return view{Item: i, Status: i.Status()}
}

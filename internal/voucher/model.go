package voucher

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates voucher kinds.
type Type string

const (
	TypeSales    Type = "SALES"
	TypePurchase Type = "PURCHASE"
	TypeReceipt  Type = "RECEIPT"
	TypePayment  Type = "PAYMENT"
	TypeJournal  Type = "JOURNAL"
)

// Valid reports whether t is a known voucher type.
func (t Type) Valid() bool {
	switch t {
	case TypeSales, TypePurchase, TypeReceipt, TypePayment, TypeJournal:
		return true
	}
	return false
}

// Prefix returns the three-letter number prefix for the type.
func (t Type) Prefix() string {
	if len(t) < 3 {
		return string(t)
	}
	return string(t[:3])
}

// HasItems reports whether vouchers of this type carry stock lines.
func (t Type) HasItems() bool {
	return t == TypeSales || t == TypePurchase
}

// Voucher is an immutable-once-posted transaction record. It exclusively
// owns its Items and Entries; stock items and ledgers are referenced by id
// only.
type Voucher struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	Type        Type            `json:"type"`
	Date        time.Time       `json:"date"`
	PartyID     int64           `json:"party_ledger_id,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Narration   string          `json:"narration,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedBy   string          `json:"updated_by,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
	Items       []Item          `json:"items,omitempty"`
	Entries     []Entry         `json:"entries,omitempty"`
}

// Item is one stock line of a voucher.
type Item struct {
	ID          int64           `json:"id"`
	VoucherID   int64           `json:"voucher_id"`
	StockItemID int64           `json:"stock_item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	DiscountPct decimal.Decimal `json:"discount_percent"`
	Amount      decimal.Decimal `json:"amount"`
}

// Entry is one debit or credit posting of a voucher. Exactly one of
// Debit/Credit is non-zero.
type Entry struct {
	ID        int64           `json:"id"`
	VoucherID int64           `json:"voucher_id"`
	LedgerID  int64           `json:"ledger_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerType classifies what an account represents.
type LedgerType string

const (
	TypeCash     LedgerType = "CASH"
	TypeBank     LedgerType = "BANK"
	TypeCustomer LedgerType = "CUSTOMER"
	TypeSupplier LedgerType = "SUPPLIER"
	TypeSales    LedgerType = "SALES"
	TypePurchase LedgerType = "PURCHASE"
	TypeExpense  LedgerType = "EXPENSE"
	TypeTax      LedgerType = "TAX"
)

// AccountGroup is a reporting classification only; it never affects
// posting math.
type AccountGroup string

const (
	GroupAsset     AccountGroup = "ASSET"
	GroupLiability AccountGroup = "LIABILITY"
	GroupEquity    AccountGroup = "EQUITY"
	GroupRevenue   AccountGroup = "REVENUE"
	GroupExpense   AccountGroup = "EXPENSE"
)

// Ledger is a named account with a running balance. CurrentBalance is
// mutated only by the voucher engine.
type Ledger struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Type           LedgerType      `json:"type"`
	Group          AccountGroup    `json:"group"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	Email          string          `json:"email,omitempty"`
	TaxID          string          `json:"tax_id,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ValidTypes lists every accepted ledger type.
func ValidTypes() []LedgerType {
	return []LedgerType{TypeCash, TypeBank, TypeCustomer, TypeSupplier, TypeSales, TypePurchase, TypeExpense, TypeTax}
}

// ValidGroups lists every accepted account group.
func ValidGroups() []AccountGroup {
	return []AccountGroup{GroupAsset, GroupLiability, GroupEquity, GroupRevenue, GroupExpense}
}

package voucher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DraftLine is one requested stock line of a draft.
type DraftLine struct {
	StockItemID int64
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
	DiscountPct decimal.Decimal
}

// DraftEntry is one explicit posting line of a journal draft.
type DraftEntry struct {
	LedgerID int64
	Debit    decimal.Decimal
	Credit   decimal.Decimal
}

// Draft is a user-entered transaction before posting.
//
// Sales and Purchase drafts carry Items; Receipt and Payment drafts carry
// Amount; Journal drafts carry explicit Entries.
type Draft struct {
	Type      Type
	Date      time.Time
	PartyID   int64
	Reference string
	Narration string
	Items     []DraftLine
	Amount    decimal.Decimal
	Entries   []DraftEntry
	Actor     string
}

// Validate checks draft shape before any store access. Referential checks
// (party exists, items exist, stock suffices) happen inside the posting
// transaction against committed state.
func (d Draft) Validate() error {
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, d.Type)
	}
	switch d.Type {
	case TypeSales, TypePurchase:
		if d.PartyID <= 0 {
			return UnknownPartyError{LedgerID: d.PartyID}
		}
		if len(d.Items) == 0 {
			return ErrNoItems
		}
		for _, line := range d.Items {
			if line.StockItemID <= 0 {
				return UnknownItemError{StockItemID: line.StockItemID}
			}
			if !line.Quantity.IsPositive() {
				return InvalidQuantityError{StockItemID: line.StockItemID, Quantity: line.Quantity}
			}
			if line.Rate.IsNegative() {
				return fmt.Errorf("%w: negative rate on stock item %d", ErrInvalid, line.StockItemID)
			}
			if line.DiscountPct.IsNegative() || line.DiscountPct.GreaterThan(decimal.NewFromInt(100)) {
				return fmt.Errorf("%w: discount on stock item %d must be between 0 and 100", ErrInvalid, line.StockItemID)
			}
		}
	case TypeReceipt, TypePayment:
		if d.PartyID <= 0 {
			return UnknownPartyError{LedgerID: d.PartyID}
		}
		if !d.Amount.IsPositive() {
			return fmt.Errorf("%w: amount must be positive", ErrInvalid)
		}
	case TypeJournal:
		if len(d.Entries) < 2 {
			return fmt.Errorf("%w: journal requires at least two entries", ErrInvalid)
		}
		var debit, credit decimal.Decimal
		for _, entry := range d.Entries {
			if entry.LedgerID <= 0 {
				return UnknownPartyError{LedgerID: entry.LedgerID}
			}
			if entry.Debit.IsNegative() || entry.Credit.IsNegative() {
				return fmt.Errorf("%w: negative entry amount for ledger %d", ErrInvalid, entry.LedgerID)
			}
			if entry.Debit.IsPositive() == entry.Credit.IsPositive() {
				return fmt.Errorf("%w: entry for ledger %d must have exactly one of debit or credit", ErrInvalid, entry.LedgerID)
			}
			debit = debit.Add(entry.Debit)
			credit = credit.Add(entry.Credit)
		}
		if !debit.Round(2).Equal(credit.Round(2)) {
			return ErrUnbalanced
		}
	}
	return nil
}

// ListFilter narrows voucher listings.
type ListFilter struct {
	Type    Type
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

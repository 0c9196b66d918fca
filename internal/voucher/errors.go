package voucher

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the voucher does not exist.
	ErrNotFound = errors.New("voucher: not found")
	// ErrNoItems indicates an item-bearing draft without lines.
	ErrNoItems = errors.New("voucher: draft requires at least one item line")
	// ErrUnbalanced indicates journal entries whose debits and credits differ.
	ErrUnbalanced = errors.New("voucher: entries must balance")
	// ErrTypeMismatch indicates an edit tried to change the voucher type.
	ErrTypeMismatch = errors.New("voucher: type cannot change on edit")
	// ErrDuplicateNumber indicates a voucher number collision. Posting
	// retries a bounded number of times before giving up.
	ErrDuplicateNumber = errors.New("voucher: duplicate voucher number")
	// ErrInvalid marks drafts rejected before any write.
	ErrInvalid = errors.New("voucher: invalid draft")
)

// UnknownPartyError reports a ledger reference that did not resolve.
type UnknownPartyError struct {
	LedgerID int64
}

func (e UnknownPartyError) Error() string {
	return fmt.Sprintf("voucher: ledger %d does not exist", e.LedgerID)
}

// UnknownItemError reports a stock item reference that did not resolve.
type UnknownItemError struct {
	StockItemID int64
}

func (e UnknownItemError) Error() string {
	return fmt.Sprintf("voucher: stock item %d does not exist", e.StockItemID)
}

// InvalidQuantityError reports a non-positive line quantity.
type InvalidQuantityError struct {
	StockItemID int64
	Quantity    decimal.Decimal
}

func (e InvalidQuantityError) Error() string {
	return fmt.Sprintf("voucher: quantity %s for stock item %d must be positive", e.Quantity, e.StockItemID)
}

// InsufficientStockError reports a sales line exceeding on-hand quantity.
// It carries the item name and the committed availability so callers can
// show a precise message.
type InsufficientStockError struct {
	Item      string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("voucher: insufficient stock for %s: available %s, requested %s", e.Item, e.Available, e.Requested)
}

// MissingControlLedgerError reports that the book has no control account
// for the voucher type.
type MissingControlLedgerError struct {
	Wanted string
}

func (e MissingControlLedgerError) Error() string {
	return fmt.Sprintf("voucher: no %s control ledger configured", e.Wanted)
}

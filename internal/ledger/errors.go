package ledger

import "errors"

var (
	// ErrInvalid marks input rejected before any write.
	ErrInvalid = errors.New("ledger: invalid input")
	// ErrNotFound indicates the ledger does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrNameTaken indicates the ledger name is already used in the book.
	ErrNameTaken = errors.New("ledger: name already in use")
	// ErrInUse indicates the ledger is referenced by posted vouchers.
	ErrInUse = errors.New("ledger: referenced by vouchers")
)

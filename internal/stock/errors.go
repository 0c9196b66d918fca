package stock

import "errors"

var (
	// ErrInvalid marks input rejected before any write.
	ErrInvalid = errors.New("stock: invalid input")
	// ErrNotFound indicates the item does not exist.
	ErrNotFound = errors.New("stock: item not found")
	// ErrSKUTaken indicates the SKU is already registered.
	ErrSKUTaken = errors.New("stock: sku already in use")
	// ErrInUse indicates the item is referenced by posted vouchers.
	ErrInUse = errors.New("stock: referenced by vouchers")
)

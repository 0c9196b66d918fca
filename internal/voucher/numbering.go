package voucher

import "fmt"

// FormatNumber renders a human-readable voucher number: the three-letter
// type prefix plus a zero-padded sequence, e.g. SAL-00007.
func FormatNumber(t Type, seq int64) string {
	return fmt.Sprintf("%s-%05d", t.Prefix(), seq)
}

// numberRetries bounds regenerate-and-retry attempts after a voucher
// number collision before the failure surfaces to the caller.
const numberRetries = 3

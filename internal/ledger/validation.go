package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func buildLedger(in CreateInput) (Ledger, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Ledger{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if !validType(in.Type) {
		return Ledger{}, fmt.Errorf("%w: unknown type %q", ErrInvalid, in.Type)
	}
	if !validGroup(in.Group) {
		return Ledger{}, fmt.Errorf("%w: unknown account group %q", ErrInvalid, in.Group)
	}
	opening := decimal.Zero
	if in.OpeningBalance != "" {
		parsed, err := decimal.NewFromString(in.OpeningBalance)
		if err != nil {
			return Ledger{}, fmt.Errorf("%w: invalid opening balance %q", ErrInvalid, in.OpeningBalance)
		}
		opening = parsed
	}
	return Ledger{
		Name:           name,
		Type:           in.Type,
		Group:          in.Group,
		OpeningBalance: opening,
		CurrentBalance: opening,
		Phone:          in.Phone,
		Address:        in.Address,
		Email:          in.Email,
		TaxID:          in.TaxID,
		CreatedBy:      in.Actor,
	}, nil
}

func formatID(id int64) string {
	return fmt.Sprintf("%d", id)
}

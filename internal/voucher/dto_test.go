package voucher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDraftValidateSales(t *testing.T) {
	draft := salesDraft("2", "50")
	require.NoError(t, draft.Validate())

	missing := draft
	missing.PartyID = 0
	var unknown UnknownPartyError
	require.ErrorAs(t, missing.Validate(), &unknown)

	empty := draft
	empty.Items = nil
	require.ErrorIs(t, empty.Validate(), ErrNoItems)

	zeroQty := salesDraft("0", "50")
	var badQty InvalidQuantityError
	require.ErrorAs(t, zeroQty.Validate(), &badQty)

	negRate := salesDraft("2", "50")
	negRate.Items[0].Rate = dec("-1")
	require.ErrorIs(t, negRate.Validate(), ErrInvalid)

	bigDiscount := salesDraft("2", "50")
	bigDiscount.Items[0].DiscountPct = dec("101")
	require.ErrorIs(t, bigDiscount.Validate(), ErrInvalid)
}

func TestDraftValidateMoney(t *testing.T) {
	draft := Draft{Type: TypeReceipt, PartyID: customerID, Amount: dec("10")}
	require.NoError(t, draft.Validate())

	zero := draft
	zero.Amount = dec("0")
	require.ErrorIs(t, zero.Validate(), ErrInvalid)
}

func TestDraftValidateJournal(t *testing.T) {
	balanced := Draft{
		Type: TypeJournal,
		Entries: []DraftEntry{
			{LedgerID: 1, Debit: dec("100")},
			{LedgerID: 2, Credit: dec("100")},
		},
	}
	require.NoError(t, balanced.Validate())

	unbalanced := Draft{
		Type: TypeJournal,
		Entries: []DraftEntry{
			{LedgerID: 1, Debit: dec("100")},
			{LedgerID: 2, Credit: dec("99")},
		},
	}
	require.ErrorIs(t, unbalanced.Validate(), ErrUnbalanced)

	single := Draft{
		Type:    TypeJournal,
		Entries: []DraftEntry{{LedgerID: 1, Debit: dec("100")}},
	}
	require.ErrorIs(t, single.Validate(), ErrInvalid)

	bothSides := Draft{
		Type: TypeJournal,
		Entries: []DraftEntry{
			{LedgerID: 1, Debit: dec("100"), Credit: dec("100")},
			{LedgerID: 2, Credit: dec("100")},
		},
	}
	require.ErrorIs(t, bothSides.Validate(), ErrInvalid)
}

func TestDraftValidateUnknownType(t *testing.T) {
	draft := Draft{Type: Type("CONTRA")}
	require.ErrorIs(t, draft.Validate(), ErrInvalid)
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "SAL-00001", FormatNumber(TypeSales, 1))
	require.Equal(t, "PUR-00042", FormatNumber(TypePurchase, 42))
	require.Equal(t, "REC-00007", FormatNumber(TypeReceipt, 7))
	require.Equal(t, "PAY-12345", FormatNumber(TypePayment, 12345))
	require.Equal(t, "JOU-100000", FormatNumber(TypeJournal, 100000))
}

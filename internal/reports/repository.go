package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TrialBalanceRow is one ledger line of the trial balance.
type TrialBalanceRow struct {
	LedgerID int64           `json:"ledger_id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Group    string          `json:"group"`
	Debit    decimal.Decimal `json:"debit"`
	Credit   decimal.Decimal `json:"credit"`
}

// TrialBalance is the full statement with column totals.
type TrialBalance struct {
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// DaybookRow is one voucher line of the daybook.
type DaybookRow struct {
	VoucherID int64           `json:"voucher_id"`
	Number    string          `json:"number"`
	Type      string          `json:"type"`
	Date      time.Time       `json:"date"`
	Party     string          `json:"party,omitempty"`
	Narration string          `json:"narration,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// LowStockRow is one item at or below its reorder level.
type LowStockRow struct {
	StockItemID  int64           `json:"stock_item_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	Shortfall    decimal.Decimal `json:"shortfall"`
}

// Repository runs read-only report queries against committed state.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed report Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// TrialBalance lists every ledger with its running balance split into a
// debit or credit column by sign.
func (r *Repository) TrialBalance(ctx context.Context) (TrialBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, type, account_group, current_balance::text
FROM ledgers ORDER BY name ASC`)
	if err != nil {
		return TrialBalance{}, err
	}
	defer rows.Close()

	tb := TrialBalance{Rows: []TrialBalanceRow{}}
	for rows.Next() {
		var row TrialBalanceRow
		var balance string
		if err := rows.Scan(&row.LedgerID, &row.Name, &row.Type, &row.Group, &balance); err != nil {
			return TrialBalance{}, err
		}
		b, err := decimal.NewFromString(balance)
		if err != nil {
			return TrialBalance{}, fmt.Errorf("reports: parse balance: %w", err)
		}
		if b.IsNegative() {
			row.Credit = b.Neg()
		} else {
			row.Debit = b
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return TrialBalance{}, err
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb, nil
}

// Daybook lists vouchers within the date range, newest first.
func (r *Repository) Daybook(ctx context.Context, from, to time.Time) ([]DaybookRow, error) {
	query := `SELECT v.id, v.number, v.type, v.date, COALESCE(l.name, ''), v.narration, v.total_amount::text
FROM vouchers v LEFT JOIN ledgers l ON l.id = v.party_ledger_id`
	args := []any{}
	where := ""
	if !from.IsZero() {
		args = append(args, from)
		where = fmt.Sprintf(" WHERE v.date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		if where == "" {
			where = fmt.Sprintf(" WHERE v.date <= $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND v.date <= $%d", len(args))
		}
	}
	rows, err := r.db.Query(ctx, query+where+` ORDER BY v.date DESC, v.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DaybookRow{}
	for rows.Next() {
		var row DaybookRow
		var amount string
		if err := rows.Scan(&row.VoucherID, &row.Number, &row.Type, &row.Date, &row.Party, &row.Narration, &amount); err != nil {
			return nil, err
		}
		if row.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("reports: parse amount: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// LowStock lists items whose quantity has fallen to or below the reorder
// level. Items with no reorder level set never qualify.
func (r *Repository) LowStock(ctx context.Context) ([]LowStockRow, error) {
	rows, err := r.db.Query(ctx, `SELECT id, sku, name, quantity::text, reorder_level::text
FROM stock_items WHERE reorder_level > 0 AND quantity <= reorder_level ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LowStockRow{}
	for rows.Next() {
		var row LowStockRow
		var qty, reorder string
		if err := rows.Scan(&row.StockItemID, &row.SKU, &row.Name, &qty, &reorder); err != nil {
			return nil, err
		}
		if row.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("reports: parse quantity: %w", err)
		}
		if row.ReorderLevel, err = decimal.NewFromString(reorder); err != nil {
			return nil, fmt.Errorf("reports: parse reorder level: %w", err)
		}
		row.Shortfall = row.ReorderLevel.Sub(row.Quantity)
		out = append(out, row)
	}
	return out, rows.Err()
}

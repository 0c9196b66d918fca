package voucher

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger"
	"github.com/tallybook/tallybook/internal/platform/db"
)

// LedgerRow is the slice of a ledger account the engine needs while
// posting: identity plus the committed running balance, read under lock.
type LedgerRow struct {
	ID      int64
	Name    string
	Type    ledger.LedgerType
	Balance decimal.Decimal
}

// StockRow is the slice of a stock item the engine needs while posting.
type StockRow struct {
	ID       int64
	SKU      string
	Name     string
	Quantity decimal.Decimal
}

// Repository encapsulates DB operations for vouchers.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Voucher, error)
	List(ctx context.Context, filter ListFilter) ([]Voucher, int, error)
}

// TxRepository exposes the operations available inside a posting,
// reversal or edit transaction. Ledger and stock access is deliberately
// duplicated here rather than borrowed from their home packages: the
// engine must read and write those rows under the same transaction lock.
type TxRepository interface {
	NextSequence(ctx context.Context, t Type) (int64, error)
	GetLedgerForUpdate(ctx context.Context, id int64) (LedgerRow, error)
	FindControlLedgerForUpdate(ctx context.Context, lt ledger.LedgerType) (LedgerRow, error)
	ApplyLedgerDelta(ctx context.Context, id int64, delta decimal.Decimal) error
	GetStockForUpdate(ctx context.Context, id int64) (StockRow, error)
	ApplyStockDelta(ctx context.Context, id int64, delta decimal.Decimal, actor string) error
	InsertVoucher(ctx context.Context, v *Voucher) error
	InsertItems(ctx context.Context, voucherID int64, items []Item) error
	InsertEntries(ctx context.Context, voucherID int64, entries []Entry) error
	GetVoucherWithChildren(ctx context.Context, id int64) (Voucher, error)
	UpdateVoucherHeader(ctx context.Context, v Voucher) error
	DeleteChildren(ctx context.Context, voucherID int64) error
	DeleteVoucher(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const voucherColumns = `id, number, type, date, party_ledger_id, reference, narration, total_amount::text, created_by, created_at, updated_by, updated_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	var total string
	var party *int64
	err := row.Scan(&v.ID, &v.Number, &v.Type, &v.Date, &party, &v.Reference, &v.Narration, &total, &v.CreatedBy, &v.CreatedAt, &v.UpdatedBy, &v.UpdatedAt)
	if err != nil {
		return Voucher{}, err
	}
	if party != nil {
		v.PartyID = *party
	}
	if v.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return Voucher{}, fmt.Errorf("voucher: parse total: %w", err)
	}
	return v, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Voucher, error) {
	v, err := scanVoucher(r.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, err
	}
	v.Items, err = loadItems(ctx, r.db, id)
	if err != nil {
		return Voucher{}, err
	}
	v.Entries, err = loadEntries(ctx, r.db, id)
	if err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Voucher, int, error) {
	args := []any{}
	where := ""
	appendClause := func(cond string) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		appendClause(fmt.Sprintf("type=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		appendClause(fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		appendClause(fmt.Sprintf("date <= $%d", len(args)))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM vouchers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + voucherColumns + ` FROM vouchers` + where + ` ORDER BY date DESC, id DESC`
	if filter.PerPage > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PerPage, (page-1)*filter.PerPage)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// querier lets the child loaders run on either the pool or a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, voucherID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, voucher_id, stock_item_id, quantity::text, rate::text, discount_percent::text, amount::text
FROM voucher_items WHERE voucher_id=$1 ORDER BY id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		var qty, rate, disc, amount string
		if err := rows.Scan(&it.ID, &it.VoucherID, &it.StockItemID, &qty, &rate, &disc, &amount); err != nil {
			return nil, err
		}
		if it.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if it.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, err
		}
		if it.DiscountPct, err = decimal.NewFromString(disc); err != nil {
			return nil, err
		}
		if it.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadEntries(ctx context.Context, q querier, voucherID int64) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT id, voucher_id, ledger_id, debit::text, credit::text
FROM ledger_entries WHERE voucher_id=$1 ORDER BY id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var debit, credit string
		if err := rows.Scan(&e.ID, &e.VoucherID, &e.LedgerID, &debit, &credit); err != nil {
			return nil, err
		}
		if e.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if e.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NextSequence reserves the next number for the type atomically. The
// sequence row is upserted with a row-level increment, so two concurrent
// posts can never observe the same value.
func (r *txRepository) NextSequence(ctx context.Context, t Type) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO voucher_sequences (voucher_type, next_number) VALUES ($1, 1)
ON CONFLICT (voucher_type) DO UPDATE SET next_number = voucher_sequences.next_number + 1
RETURNING next_number`, t).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *txRepository) GetLedgerForUpdate(ctx context.Context, id int64) (LedgerRow, error) {
	var row LedgerRow
	var balance string
	err := r.tx.QueryRow(ctx, `SELECT id, name, type, current_balance::text FROM ledgers WHERE id=$1 FOR UPDATE`, id).
		Scan(&row.ID, &row.Name, &row.Type, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerRow{}, UnknownPartyError{LedgerID: id}
		}
		return LedgerRow{}, err
	}
	if row.Balance, err = decimal.NewFromString(balance); err != nil {
		return LedgerRow{}, fmt.Errorf("voucher: parse ledger balance: %w", err)
	}
	return row, nil
}

func (r *txRepository) FindControlLedgerForUpdate(ctx context.Context, lt ledger.LedgerType) (LedgerRow, error) {
	var row LedgerRow
	var balance string
	err := r.tx.QueryRow(ctx, `SELECT id, name, type, current_balance::text FROM ledgers WHERE type=$1 ORDER BY id ASC LIMIT 1 FOR UPDATE`, lt).
		Scan(&row.ID, &row.Name, &row.Type, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerRow{}, MissingControlLedgerError{Wanted: string(lt)}
		}
		return LedgerRow{}, err
	}
	if row.Balance, err = decimal.NewFromString(balance); err != nil {
		return LedgerRow{}, fmt.Errorf("voucher: parse ledger balance: %w", err)
	}
	return row, nil
}

func (r *txRepository) ApplyLedgerDelta(ctx context.Context, id int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ledgers SET current_balance = current_balance + $2 WHERE id=$1`, id, delta.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return UnknownPartyError{LedgerID: id}
	}
	return nil
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, id int64) (StockRow, error) {
	var row StockRow
	var qty string
	err := r.tx.QueryRow(ctx, `SELECT id, sku, name, quantity::text FROM stock_items WHERE id=$1 FOR UPDATE`, id).
		Scan(&row.ID, &row.SKU, &row.Name, &qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRow{}, UnknownItemError{StockItemID: id}
		}
		return StockRow{}, err
	}
	if row.Quantity, err = decimal.NewFromString(qty); err != nil {
		return StockRow{}, fmt.Errorf("voucher: parse stock quantity: %w", err)
	}
	return row, nil
}

func (r *txRepository) ApplyStockDelta(ctx context.Context, id int64, delta decimal.Decimal, actor string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE stock_items SET quantity = quantity + $2, updated_by=$3, updated_at=NOW() WHERE id=$1`, id, delta.String(), actor)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return UnknownItemError{StockItemID: id}
	}
	return nil
}

func (r *txRepository) InsertVoucher(ctx context.Context, v *Voucher) error {
	var party any
	if v.PartyID > 0 {
		party = v.PartyID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO vouchers (number, type, date, party_ledger_id, reference, narration, total_amount, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		v.Number, v.Type, v.Date, party, v.Reference, v.Narration, v.TotalAmount.String(), v.CreatedBy).
		Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertItems(ctx context.Context, voucherID int64, items []Item) error {
	for _, it := range items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO voucher_items (voucher_id, stock_item_id, quantity, rate, discount_percent, amount)
VALUES ($1,$2,$3,$4,$5,$6)`, voucherID, it.StockItemID, it.Quantity.String(), it.Rate.String(), it.DiscountPct.String(), it.Amount.String()); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertEntries(ctx context.Context, voucherID int64, entries []Entry) error {
	for _, e := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries (voucher_id, ledger_id, debit, credit)
VALUES ($1,$2,$3,$4)`, voucherID, e.LedgerID, e.Debit.String(), e.Credit.String()); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetVoucherWithChildren(ctx context.Context, id int64) (Voucher, error) {
	v, err := scanVoucher(r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, err
	}
	if v.Items, err = loadItems(ctx, r.tx, id); err != nil {
		return Voucher{}, err
	}
	if v.Entries, err = loadEntries(ctx, r.tx, id); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) UpdateVoucherHeader(ctx context.Context, v Voucher) error {
	var party any
	if v.PartyID > 0 {
		party = v.PartyID
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET date=$2, party_ledger_id=$3, reference=$4, narration=$5, total_amount=$6, updated_by=$7, updated_at=NOW() WHERE id=$1`,
		v.ID, v.Date, party, v.Reference, v.Narration, v.TotalAmount.String(), v.UpdatedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteChildren(ctx context.Context, voucherID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM voucher_items WHERE voucher_id=$1`, voucherID); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM ledger_entries WHERE voucher_id=$1`, voucherID); err != nil {
		return err
	}
	return nil
}

func (r *txRepository) DeleteVoucher(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM vouchers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for stock items.
type Repository interface {
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, item Item) error
	Get(ctx context.Context, id int64) (Item, error)
	GetBySKU(ctx context.Context, sku string) (Item, error)
	Search(ctx context.Context, filter SearchFilter) ([]Item, error)
	Delete(ctx context.Context, id int64) error
	InUse(ctx context.Context, id int64) (bool, error)
	Upsert(ctx context.Context, item Item) (created bool, err error)
}

// SearchFilter narrows Search results.
type SearchFilter struct {
	Query   string
	LowOnly bool
	Limit   int
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const itemColumns = `id, sku, name, category, barcode, unit, purchase_price::text, sales_price::text, tax_rate::text, quantity::text, reorder_level::text, updated_by, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var purchase, sales, tax, qty, reorder string
	err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.Category, &it.Barcode, &it.Unit, &purchase, &sales, &tax, &qty, &reorder, &it.UpdatedBy, &it.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&it.PurchasePrice, purchase},
		{&it.SalesPrice, sales},
		{&it.TaxRate, tax},
		{&it.Quantity, qty},
		{&it.ReorderLevel, reorder},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return Item{}, fmt.Errorf("stock: parse numeric: %w", err)
		}
	}
	return it, nil
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO stock_items (sku, name, category, barcode, unit, purchase_price, sales_price, tax_rate, quantity, reorder_level, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, updated_at`,
		item.SKU, item.Name, item.Category, item.Barcode, item.Unit,
		item.PurchasePrice.String(), item.SalesPrice.String(), item.TaxRate.String(),
		item.Quantity.String(), item.ReorderLevel.String(), item.UpdatedBy)
	if err := row.Scan(&item.ID, &item.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Item{}, ErrSKUTaken
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) Update(ctx context.Context, item Item) error {
	cmd, err := r.db.Exec(ctx, `UPDATE stock_items SET sku=$2, name=$3, category=$4, barcode=$5, unit=$6, purchase_price=$7, sales_price=$8, tax_rate=$9, reorder_level=$10, updated_by=$11, updated_at=NOW() WHERE id=$1`,
		item.ID, item.SKU, item.Name, item.Category, item.Barcode, item.Unit,
		item.PurchasePrice.String(), item.SalesPrice.String(), item.TaxRate.String(),
		item.ReorderLevel.String(), item.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSKUTaken
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func (r *repository) GetBySKU(ctx context.Context, sku string) (Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE sku=$1`, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM stock_items`
	args := []any{}
	where := ""
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		where = fmt.Sprintf(" WHERE (name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args))
	}
	if filter.LowOnly {
		clause := " WHERE"
		if where != "" {
			clause = " AND"
		}
		where += clause + " (reorder_level > 0 AND quantity <= reorder_level)"
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, fmt.Sprintf("%s%s ORDER BY name ASC LIMIT %d", query, where, limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM stock_items WHERE id=$1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrInUse
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InUse(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM voucher_items WHERE stock_item_id=$1)`, id).Scan(&exists)
	return exists, err
}

// Upsert inserts a new item keyed by SKU or refreshes master fields of an
// existing one. Live quantity is preserved on update; the imported opening
// quantity only applies to fresh rows.
func (r *repository) Upsert(ctx context.Context, item Item) (bool, error) {
	var inserted bool
	err := r.db.QueryRow(ctx, `INSERT INTO stock_items (sku, name, category, barcode, unit, purchase_price, sales_price, tax_rate, quantity, reorder_level, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (sku) DO UPDATE SET
	name=EXCLUDED.name,
	category=EXCLUDED.category,
	barcode=EXCLUDED.barcode,
	unit=EXCLUDED.unit,
	purchase_price=EXCLUDED.purchase_price,
	sales_price=EXCLUDED.sales_price,
	tax_rate=EXCLUDED.tax_rate,
	reorder_level=EXCLUDED.reorder_level,
	updated_by=EXCLUDED.updated_by,
	updated_at=NOW()
RETURNING (xmax = 0)`,
		item.SKU, item.Name, item.Category, item.Barcode, item.Unit,
		item.PurchasePrice.String(), item.SalesPrice.String(), item.TaxRate.String(),
		item.Quantity.String(), item.ReorderLevel.String(), item.UpdatedBy).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

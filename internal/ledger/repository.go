package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for ledgers.
type Repository interface {
	Create(ctx context.Context, l Ledger) (Ledger, error)
	Update(ctx context.Context, l Ledger) error
	Get(ctx context.Context, id int64) (Ledger, error)
	List(ctx context.Context, filter ListFilter) ([]Ledger, error)
	Delete(ctx context.Context, id int64) error
	InUse(ctx context.Context, id int64) (bool, error)
}

// ListFilter narrows List results.
type ListFilter struct {
	Type   LedgerType
	Search string
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const ledgerColumns = `id, name, type, account_group, opening_balance::text, current_balance::text, phone, address, email, tax_id, created_by, created_at`

func scanLedger(row pgx.Row) (Ledger, error) {
	var l Ledger
	var opening, current string
	err := row.Scan(&l.ID, &l.Name, &l.Type, &l.Group, &opening, &current, &l.Phone, &l.Address, &l.Email, &l.TaxID, &l.CreatedBy, &l.CreatedAt)
	if err != nil {
		return Ledger{}, err
	}
	if l.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return Ledger{}, fmt.Errorf("ledger: parse opening balance: %w", err)
	}
	if l.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return Ledger{}, fmt.Errorf("ledger: parse current balance: %w", err)
	}
	return l, nil
}

func (r *repository) Create(ctx context.Context, l Ledger) (Ledger, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO ledgers (name, type, account_group, opening_balance, current_balance, phone, address, email, tax_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		l.Name, l.Type, l.Group, l.OpeningBalance.String(), l.CurrentBalance.String(), l.Phone, l.Address, l.Email, l.TaxID, l.CreatedBy)
	if err := row.Scan(&l.ID, &l.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Ledger{}, ErrNameTaken
		}
		return Ledger{}, err
	}
	return l, nil
}

func (r *repository) Update(ctx context.Context, l Ledger) error {
	cmd, err := r.db.Exec(ctx, `UPDATE ledgers SET name=$2, account_group=$3, phone=$4, address=$5, email=$6, tax_id=$7 WHERE id=$1`,
		l.ID, l.Name, l.Group, l.Phone, l.Address, l.Email, l.TaxID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrNameTaken
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (Ledger, error) {
	l, err := scanLedger(r.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ledger{}, ErrNotFound
		}
		return Ledger{}, err
	}
	return l, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledgers`
	args := []any{}
	where := ""
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = fmt.Sprintf(" WHERE type=$%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		if where == "" {
			where = fmt.Sprintf(" WHERE name ILIKE $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND name ILIKE $%d", len(args))
		}
	}
	rows, err := r.db.Query(ctx, query+where+` ORDER BY name ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM ledgers WHERE id=$1`, id)
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
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE ledger_id=$1)`, id).Scan(&exists)
	return exists, err
}

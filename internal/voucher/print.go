package voucher

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrintView is the read-only invoice projection of a voucher: resolved
// party and item names plus amounts pre-formatted for display.
type PrintView struct {
	ID          int64          `json:"id"`
	Number      string         `json:"number"`
	Type        Type           `json:"type"`
	Date        time.Time      `json:"date"`
	PartyName   string         `json:"party_name,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	Narration   string         `json:"narration,omitempty"`
	Total       string         `json:"total"`
	Lines       []PrintLine    `json:"lines,omitempty"`
	Postings    []PrintPosting `json:"postings"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// PrintLine is one stock line on the printed document.
type PrintLine struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Rate     string `json:"rate"`
	Discount string `json:"discount_percent"`
	Amount   string `json:"amount"`
}

// PrintPosting is one ledger posting on the printed document.
type PrintPosting struct {
	Ledger string `json:"ledger"`
	Debit  string `json:"debit,omitempty"`
	Credit string `json:"credit,omitempty"`
}

// Printer renders vouchers for printing. It reads committed state only
// and never takes row locks.
type Printer struct {
	db  *pgxpool.Pool
	fmt *message.Printer
	now func() time.Time
}

// NewPrinter builds a Printer formatting amounts for the given locale.
func NewPrinter(db *pgxpool.Pool, tag language.Tag) *Printer {
	return &Printer{db: db, fmt: message.NewPrinter(tag), now: time.Now}
}

// Render loads a voucher with resolved party, item and ledger names.
func (p *Printer) Render(ctx context.Context, id int64) (PrintView, error) {
	var view PrintView
	var total string
	var partyName *string
	err := p.db.QueryRow(ctx, `SELECT v.id, v.number, v.type, v.date, l.name, v.reference, v.narration, v.total_amount::text
FROM vouchers v LEFT JOIN ledgers l ON l.id = v.party_ledger_id
WHERE v.id=$1`, id).
		Scan(&view.ID, &view.Number, &view.Type, &view.Date, &partyName, &view.Reference, &view.Narration, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PrintView{}, ErrNotFound
		}
		return PrintView{}, err
	}
	if partyName != nil {
		view.PartyName = *partyName
	}
	view.Total = p.money(total)
	view.GeneratedAt = p.now()

	if view.Lines, err = p.loadLines(ctx, id); err != nil {
		return PrintView{}, err
	}
	if view.Postings, err = p.loadPostings(ctx, id); err != nil {
		return PrintView{}, err
	}
	return view, nil
}

func (p *Printer) loadLines(ctx context.Context, voucherID int64) ([]PrintLine, error) {
	rows, err := p.db.Query(ctx, `SELECT s.sku, s.name, vi.quantity::text, vi.rate::text, vi.discount_percent::text, vi.amount::text
FROM voucher_items vi JOIN stock_items s ON s.id = vi.stock_item_id
WHERE vi.voucher_id=$1 ORDER BY vi.id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []PrintLine
	for rows.Next() {
		var line PrintLine
		var rate, amount string
		if err := rows.Scan(&line.SKU, &line.Name, &line.Quantity, &rate, &line.Discount, &amount); err != nil {
			return nil, err
		}
		line.Rate = p.money(rate)
		line.Amount = p.money(amount)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (p *Printer) loadPostings(ctx context.Context, voucherID int64) ([]PrintPosting, error) {
	rows, err := p.db.Query(ctx, `SELECT l.name, le.debit::text, le.credit::text
FROM ledger_entries le JOIN ledgers l ON l.id = le.ledger_id
WHERE le.voucher_id=$1 ORDER BY le.id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var postings []PrintPosting
	for rows.Next() {
		var posting PrintPosting
		var debit, credit string
		if err := rows.Scan(&posting.Ledger, &debit, &credit); err != nil {
			return nil, err
		}
		if d, err := decimal.NewFromString(debit); err == nil && !d.IsZero() {
			posting.Debit = p.money(debit)
		}
		if c, err := decimal.NewFromString(credit); err == nil && !c.IsZero() {
			posting.Credit = p.money(credit)
		}
		postings = append(postings, posting)
	}
	return postings, rows.Err()
}

// money formats a numeric string with locale-aware grouping. On a parse
// failure the raw database text is returned untouched.
func (p *Printer) money(raw string) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	f, _ := d.Round(2).Float64()
	return p.fmt.Sprintf("%.2f", f)
}

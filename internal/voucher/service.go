package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger"
	"github.com/tallybook/tallybook/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CommitNotifier is told after a mutating transaction commits. The
// implementation must be fire-and-forget: it may neither block the
// calling request nor surface errors into it.
type CommitNotifier interface {
	TransactionCommitted(ctx context.Context, action string, voucherID int64)
}

// Service is the posting and reversal engine. Every mutation of ledger
// balances and stock quantities in the system flows through here, inside
// a single transaction per operation.
type Service struct {
	repo     Repository
	audit    AuditPort
	notifier CommitNotifier
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, notifier CommitNotifier) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates a draft and commits its voucher number, stock deltas,
// ledger deltas and voucher rows as one unit. A number collision retries
// the whole attempt a bounded number of times.
func (s *Service) Post(ctx context.Context, draft Draft) (Voucher, error) {
	if err := draft.Validate(); err != nil {
		return Voucher{}, err
	}
	if draft.Date.IsZero() {
		draft.Date = s.now()
	}

	var posted Voucher
	var err error
	for attempt := 0; attempt < numberRetries; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			seq, seqErr := tx.NextSequence(ctx, draft.Type)
			if seqErr != nil {
				return seqErr
			}
			v := Voucher{
				Number:    FormatNumber(draft.Type, seq),
				Type:      draft.Type,
				Date:      draft.Date,
				PartyID:   draft.PartyID,
				Reference: draft.Reference,
				Narration: draft.Narration,
				CreatedBy: draft.Actor,
			}
			items, entries, total, applyErr := s.applyDraft(ctx, tx, draft)
			if applyErr != nil {
				return applyErr
			}
			v.TotalAmount = total
			if insErr := tx.InsertVoucher(ctx, &v); insErr != nil {
				return insErr
			}
			if insErr := tx.InsertItems(ctx, v.ID, items); insErr != nil {
				return insErr
			}
			if insErr := tx.InsertEntries(ctx, v.ID, entries); insErr != nil {
				return insErr
			}
			v.Items = withVoucherID(items, v.ID)
			v.Entries = withVoucherIDEntries(entries, v.ID)
			posted = v
			return nil
		})
		if !errors.Is(err, ErrDuplicateNumber) {
			break
		}
		if attempt == numberRetries-1 {
			break
		}
		// The rollback also undid the sequence increment, so the same
		// number would be drawn again. Burn it in its own transaction
		// before retrying.
		if bumpErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, e := tx.NextSequence(ctx, draft.Type)
			return e
		}); bumpErr != nil {
			return Voucher{}, bumpErr
		}
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateNumber) {
			return Voucher{}, fmt.Errorf("voucher: numbering retries exhausted: %w", err)
		}
		return Voucher{}, err
	}

	s.record(ctx, draft.Actor, "voucher.post", posted.ID, map[string]any{
		"number": posted.Number,
		"type":   posted.Type,
		"total":  posted.TotalAmount.String(),
	})
	s.notify(ctx, "voucher.post", posted.ID)
	return posted, nil
}

// Revert undoes all stock and ledger effects of a posted voucher and
// removes its item and entry rows. The header stays; deciding between
// delete and re-post is the caller's business. Returns false without any
// mutation when the voucher does not exist.
func (s *Service) Revert(ctx context.Context, id int64, actor string) (bool, error) {
	var found bool
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherWithChildren(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if err := s.unapply(ctx, tx, v, actor); err != nil {
			return err
		}
		if err := tx.DeleteChildren(ctx, id); err != nil {
			return err
		}
		found = true
		number = v.Number
		return nil
	})
	if err != nil {
		return false, err
	}
	if found {
		s.record(ctx, actor, "voucher.revert", id, map[string]any{"number": number})
		s.notify(ctx, "voucher.revert", id)
	}
	return found, nil
}

// Edit replaces a posted voucher's content while preserving its id and
// number. Reversal of the old effects, validation of the new draft and
// application of the new effects run in one transaction: if anything
// fails, the rollback restores the original books, so a reverted-only
// state can never be observed.
func (s *Service) Edit(ctx context.Context, id int64, draft Draft) (Voucher, error) {
	if err := draft.Validate(); err != nil {
		return Voucher{}, err
	}

	var updated Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetVoucherWithChildren(ctx, id)
		if err != nil {
			return err
		}
		if draft.Type != existing.Type {
			return ErrTypeMismatch
		}
		if err := s.unapply(ctx, tx, existing, draft.Actor); err != nil {
			return err
		}
		if err := tx.DeleteChildren(ctx, id); err != nil {
			return err
		}
		items, entries, total, err := s.applyDraft(ctx, tx, draft)
		if err != nil {
			return err
		}
		header := existing
		if !draft.Date.IsZero() {
			header.Date = draft.Date
		}
		header.PartyID = draft.PartyID
		header.Reference = draft.Reference
		header.Narration = draft.Narration
		header.TotalAmount = total
		header.UpdatedBy = draft.Actor
		if err := tx.UpdateVoucherHeader(ctx, header); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}
		if err := tx.InsertEntries(ctx, id, entries); err != nil {
			return err
		}
		header.Items = withVoucherID(items, id)
		header.Entries = withVoucherIDEntries(entries, id)
		updated = header
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}

	s.record(ctx, draft.Actor, "voucher.edit", id, map[string]any{
		"number": updated.Number,
		"total":  updated.TotalAmount.String(),
	})
	s.notify(ctx, "voucher.edit", id)
	return updated, nil
}

// Delete reverts a voucher and removes its header in one transaction.
// Returns false without any mutation when the voucher does not exist.
func (s *Service) Delete(ctx context.Context, id int64, actor string) (bool, error) {
	var found bool
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherWithChildren(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if err := s.unapply(ctx, tx, v, actor); err != nil {
			return err
		}
		if err := tx.DeleteChildren(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteVoucher(ctx, id); err != nil {
			return err
		}
		found = true
		number = v.Number
		return nil
	})
	if err != nil {
		return false, err
	}
	if found {
		s.record(ctx, actor, "voucher.delete", id, map[string]any{"number": number})
		s.notify(ctx, "voucher.delete", id)
	}
	return found, nil
}

// Get loads one voucher with its items and entries.
func (s *Service) Get(ctx context.Context, id int64) (Voucher, error) {
	if id <= 0 {
		return Voucher{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns voucher headers matching the filter along with the
// total match count before paging.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Voucher, int, error) {
	return s.repo.List(ctx, filter)
}

// applyDraft resolves the draft against row-locked committed state,
// applies the stock and ledger deltas, and returns the rows to persist.
// Validation failures here leave nothing applied because the surrounding
// transaction rolls back.
func (s *Service) applyDraft(ctx context.Context, tx TxRepository, draft Draft) ([]Item, []Entry, decimal.Decimal, error) {
	switch draft.Type {
	case TypeSales, TypePurchase:
		return s.applyTradeDraft(ctx, tx, draft)
	case TypeReceipt, TypePayment:
		return s.applyMoneyDraft(ctx, tx, draft)
	case TypeJournal:
		return s.applyJournalDraft(ctx, tx, draft)
	}
	return nil, nil, decimal.Decimal{}, fmt.Errorf("%w: unknown type %q", ErrInvalid, draft.Type)
}

func (s *Service) applyTradeDraft(ctx context.Context, tx TxRepository, draft Draft) ([]Item, []Entry, decimal.Decimal, error) {
	party, err := tx.GetLedgerForUpdate(ctx, draft.PartyID)
	if err != nil {
		return nil, nil, decimal.Decimal{}, err
	}
	controlType := ledger.TypeSales
	if draft.Type == TypePurchase {
		controlType = ledger.TypePurchase
	}
	control, err := tx.FindControlLedgerForUpdate(ctx, controlType)
	if err != nil {
		return nil, nil, decimal.Decimal{}, err
	}

	items := make([]Item, 0, len(draft.Items))
	total := decimal.Zero
	// The sufficiency check runs before any delta is applied, so the
	// requested quantity must be accumulated across lines naming the
	// same item or a duplicated line could drive stock negative.
	requested := make(map[int64]decimal.Decimal, len(draft.Items))
	for _, line := range draft.Items {
		row, err := tx.GetStockForUpdate(ctx, line.StockItemID)
		if err != nil {
			return nil, nil, decimal.Decimal{}, err
		}
		sum := requested[line.StockItemID].Add(line.Quantity)
		requested[line.StockItemID] = sum
		if draft.Type == TypeSales && row.Quantity.LessThan(sum) {
			return nil, nil, decimal.Decimal{}, InsufficientStockError{
				Item:      row.Name,
				Available: row.Quantity,
				Requested: sum,
			}
		}
		amount := lineAmount(line)
		total = total.Add(amount)
		items = append(items, Item{
			StockItemID: line.StockItemID,
			Quantity:    line.Quantity,
			Rate:        line.Rate,
			DiscountPct: line.DiscountPct,
			Amount:      amount,
		})
	}

	for _, line := range draft.Items {
		delta := line.Quantity
		if draft.Type == TypeSales {
			delta = delta.Neg()
		}
		if err := tx.ApplyStockDelta(ctx, line.StockItemID, delta, draft.Actor); err != nil {
			return nil, nil, decimal.Decimal{}, err
		}
	}

	var entries []Entry
	if draft.Type == TypeSales {
		entries = []Entry{
			{LedgerID: party.ID, Debit: total},
			{LedgerID: control.ID, Credit: total},
		}
	} else {
		entries = []Entry{
			{LedgerID: control.ID, Debit: total},
			{LedgerID: party.ID, Credit: total},
		}
	}
	if err := s.applyEntries(ctx, tx, entries); err != nil {
		return nil, nil, decimal.Decimal{}, err
	}
	return items, entries, total, nil
}

func (s *Service) applyMoneyDraft(ctx context.Context, tx TxRepository, draft Draft) ([]Item, []Entry, decimal.Decimal, error) {
	party, err := tx.GetLedgerForUpdate(ctx, draft.PartyID)
	if err != nil {
		return nil, nil, decimal.Decimal{}, err
	}
	cash, err := tx.FindControlLedgerForUpdate(ctx, ledger.TypeCash)
	if err != nil {
		return nil, nil, decimal.Decimal{}, err
	}
	amount := draft.Amount.Round(2)
	var entries []Entry
	if draft.Type == TypeReceipt {
		entries = []Entry{
			{LedgerID: cash.ID, Debit: amount},
			{LedgerID: party.ID, Credit: amount},
		}
	} else {
		entries = []Entry{
			{LedgerID: party.ID, Debit: amount},
			{LedgerID: cash.ID, Credit: amount},
		}
	}
	if err := s.applyEntries(ctx, tx, entries); err != nil {
		return nil, nil, decimal.Decimal{}, err
	}
	return nil, entries, amount, nil
}

func (s *Service) applyJournalDraft(ctx context.Context, tx TxRepository, draft Draft) ([]Item, []Entry, decimal.Decimal, error) {
	entries := make([]Entry, 0, len(draft.Entries))
	total := decimal.Zero
	for _, line := range draft.Entries {
		if _, err := tx.GetLedgerForUpdate(ctx, line.LedgerID); err != nil {
			return nil, nil, decimal.Decimal{}, err
		}
		entry := Entry{
			LedgerID: line.LedgerID,
			Debit:    line.Debit.Round(2),
			Credit:   line.Credit.Round(2),
		}
		total = total.Add(entry.Debit)
		entries = append(entries, entry)
	}
	if err := s.applyEntries(ctx, tx, entries); err != nil {
		return nil, nil, decimal.Decimal{}, err
	}
	return nil, entries, total, nil
}

func (s *Service) applyEntries(ctx context.Context, tx TxRepository, entries []Entry) error {
	for _, e := range entries {
		if err := tx.ApplyLedgerDelta(ctx, e.LedgerID, e.Debit.Sub(e.Credit)); err != nil {
			return err
		}
	}
	return nil
}

// unapply is the exact inverse of applyDraft for an already-posted
// voucher: stock deltas flip sign and each entry's debit/credit effect is
// subtracted back out.
func (s *Service) unapply(ctx context.Context, tx TxRepository, v Voucher, actor string) error {
	for _, it := range v.Items {
		delta := it.Quantity
		if v.Type == TypePurchase {
			delta = delta.Neg()
		}
		if err := tx.ApplyStockDelta(ctx, it.StockItemID, delta, actor); err != nil {
			return err
		}
	}
	for _, e := range v.Entries {
		if err := tx.ApplyLedgerDelta(ctx, e.LedgerID, e.Credit.Sub(e.Debit)); err != nil {
			return err
		}
	}
	return nil
}

// lineAmount computes one line's charge: gross minus discount, rounded to
// currency precision once, at the line level.
func lineAmount(line DraftLine) decimal.Decimal {
	gross := line.Quantity.Mul(line.Rate)
	discount := gross.Mul(line.DiscountPct).Div(decimal.NewFromInt(100))
	return gross.Sub(discount).Round(2)
}

func withVoucherID(items []Item, id int64) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		it.VoucherID = id
		out[i] = it
	}
	return out
}

func withVoucherIDEntries(entries []Entry, id int64) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.VoucherID = id
		out[i] = e
	}
	return out
}

func (s *Service) record(ctx context.Context, actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "voucher",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) notify(ctx context.Context, action string, id int64) {
	if s.notifier == nil {
		return
	}
	s.notifier.TransactionCommitted(ctx, action, id)
}

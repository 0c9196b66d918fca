package voucher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/tallybook/internal/ledger"
	"github.com/tallybook/tallybook/internal/shared"
)

type fakeState struct {
	ledgers       map[int64]*LedgerRow
	stock         map[int64]*StockRow
	sequences     map[Type]int64
	vouchers      map[int64]*Voucher
	usedNumbers   map[string]bool
	nextVoucherID int64
	nextChildID   int64
}

func newFakeState() *fakeState {
	return &fakeState{
		ledgers:     map[int64]*LedgerRow{},
		stock:       map[int64]*StockRow{},
		sequences:   map[Type]int64{},
		vouchers:    map[int64]*Voucher{},
		usedNumbers: map[string]bool{},
	}
}

func (s *fakeState) clone() *fakeState {
	out := newFakeState()
	for id, l := range s.ledgers {
		cp := *l
		out.ledgers[id] = &cp
	}
	for id, item := range s.stock {
		cp := *item
		out.stock[id] = &cp
	}
	for t, seq := range s.sequences {
		out.sequences[t] = seq
	}
	for id, v := range s.vouchers {
		cp := *v
		cp.Items = append([]Item(nil), v.Items...)
		cp.Entries = append([]Entry(nil), v.Entries...)
		out.vouchers[id] = &cp
	}
	for n, used := range s.usedNumbers {
		out.usedNumbers[n] = used
	}
	out.nextVoucherID = s.nextVoucherID
	out.nextChildID = s.nextChildID
	return out
}

// fakeRepo implements Repository with copy-on-write transactions: the
// closure mutates a clone that only replaces the live state on success.
type fakeRepo struct {
	state  *fakeState
	failOn string
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	work := r.state.clone()
	tx := &fakeTx{state: work, failOn: r.failOn}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id int64) (Voucher, error) {
	v, ok := r.state.vouchers[id]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return *v, nil
}

func (r *fakeRepo) List(ctx context.Context, filter ListFilter) ([]Voucher, int, error) {
	var out []Voucher
	for _, v := range r.state.vouchers {
		if filter.Type != "" && v.Type != filter.Type {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

type fakeTx struct {
	state  *fakeState
	failOn string
}

func (t *fakeTx) fail(op string) error {
	if t.failOn == op {
		return fmt.Errorf("injected failure in %s", op)
	}
	return nil
}

func (t *fakeTx) NextSequence(ctx context.Context, typ Type) (int64, error) {
	if err := t.fail("NextSequence"); err != nil {
		return 0, err
	}
	t.state.sequences[typ]++
	return t.state.sequences[typ], nil
}

func (t *fakeTx) GetLedgerForUpdate(ctx context.Context, id int64) (LedgerRow, error) {
	l, ok := t.state.ledgers[id]
	if !ok {
		return LedgerRow{}, UnknownPartyError{LedgerID: id}
	}
	return *l, nil
}

func (t *fakeTx) FindControlLedgerForUpdate(ctx context.Context, lt ledger.LedgerType) (LedgerRow, error) {
	var best *LedgerRow
	for _, l := range t.state.ledgers {
		if l.Type != lt {
			continue
		}
		if best == nil || l.ID < best.ID {
			best = l
		}
	}
	if best == nil {
		return LedgerRow{}, MissingControlLedgerError{Wanted: string(lt)}
	}
	return *best, nil
}

func (t *fakeTx) ApplyLedgerDelta(ctx context.Context, id int64, delta decimal.Decimal) error {
	if err := t.fail("ApplyLedgerDelta"); err != nil {
		return err
	}
	l, ok := t.state.ledgers[id]
	if !ok {
		return UnknownPartyError{LedgerID: id}
	}
	l.Balance = l.Balance.Add(delta)
	return nil
}

func (t *fakeTx) GetStockForUpdate(ctx context.Context, id int64) (StockRow, error) {
	item, ok := t.state.stock[id]
	if !ok {
		return StockRow{}, UnknownItemError{StockItemID: id}
	}
	return *item, nil
}

func (t *fakeTx) ApplyStockDelta(ctx context.Context, id int64, delta decimal.Decimal, actor string) error {
	if err := t.fail("ApplyStockDelta"); err != nil {
		return err
	}
	item, ok := t.state.stock[id]
	if !ok {
		return UnknownItemError{StockItemID: id}
	}
	item.Quantity = item.Quantity.Add(delta)
	return nil
}

func (t *fakeTx) InsertVoucher(ctx context.Context, v *Voucher) error {
	if err := t.fail("InsertVoucher"); err != nil {
		return err
	}
	key := string(v.Type) + "/" + v.Number
	if t.state.usedNumbers[key] {
		return ErrDuplicateNumber
	}
	t.state.usedNumbers[key] = true
	t.state.nextVoucherID++
	v.ID = t.state.nextVoucherID
	v.CreatedAt = time.Now()
	cp := *v
	cp.Items = nil
	cp.Entries = nil
	t.state.vouchers[v.ID] = &cp
	return nil
}

func (t *fakeTx) InsertItems(ctx context.Context, voucherID int64, items []Item) error {
	if err := t.fail("InsertItems"); err != nil {
		return err
	}
	v, ok := t.state.vouchers[voucherID]
	if !ok {
		return ErrNotFound
	}
	for _, it := range items {
		t.state.nextChildID++
		it.ID = t.state.nextChildID
		it.VoucherID = voucherID
		v.Items = append(v.Items, it)
	}
	return nil
}

func (t *fakeTx) InsertEntries(ctx context.Context, voucherID int64, entries []Entry) error {
	if err := t.fail("InsertEntries"); err != nil {
		return err
	}
	v, ok := t.state.vouchers[voucherID]
	if !ok {
		return ErrNotFound
	}
	for _, e := range entries {
		t.state.nextChildID++
		e.ID = t.state.nextChildID
		e.VoucherID = voucherID
		v.Entries = append(v.Entries, e)
	}
	return nil
}

func (t *fakeTx) GetVoucherWithChildren(ctx context.Context, id int64) (Voucher, error) {
	v, ok := t.state.vouchers[id]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return *v, nil
}

func (t *fakeTx) UpdateVoucherHeader(ctx context.Context, v Voucher) error {
	if err := t.fail("UpdateVoucherHeader"); err != nil {
		return err
	}
	stored, ok := t.state.vouchers[v.ID]
	if !ok {
		return ErrNotFound
	}
	items, entries := stored.Items, stored.Entries
	*stored = v
	stored.Items = items
	stored.Entries = entries
	return nil
}

func (t *fakeTx) DeleteChildren(ctx context.Context, voucherID int64) error {
	if err := t.fail("DeleteChildren"); err != nil {
		return err
	}
	v, ok := t.state.vouchers[voucherID]
	if !ok {
		return ErrNotFound
	}
	v.Items = nil
	v.Entries = nil
	return nil
}

func (t *fakeTx) DeleteVoucher(ctx context.Context, id int64) error {
	if _, ok := t.state.vouchers[id]; !ok {
		return ErrNotFound
	}
	delete(t.state.vouchers, id)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingNotifier struct {
	actions []string
}

func (n *recordingNotifier) TransactionCommitted(ctx context.Context, action string, voucherID int64) {
	n.actions = append(n.actions, action)
}

const (
	customerID = int64(1)
	salesID    = int64(2)
	cashID     = int64(3)
	supplierID = int64(4)
	purchaseID = int64(5)
	itemX1     = int64(10)
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFixture() (*Service, *fakeRepo, *recordingAudit, *recordingNotifier) {
	repo := &fakeRepo{state: newFakeState()}
	repo.state.ledgers[customerID] = &LedgerRow{ID: customerID, Name: "ACME Traders", Type: ledger.TypeCustomer}
	repo.state.ledgers[salesID] = &LedgerRow{ID: salesID, Name: "Sales Account", Type: ledger.TypeSales}
	repo.state.ledgers[cashID] = &LedgerRow{ID: cashID, Name: "Cash in Hand", Type: ledger.TypeCash}
	repo.state.ledgers[supplierID] = &LedgerRow{ID: supplierID, Name: "Mega Supplies", Type: ledger.TypeSupplier}
	repo.state.ledgers[purchaseID] = &LedgerRow{ID: purchaseID, Name: "Purchase Account", Type: ledger.TypePurchase}
	repo.state.stock[itemX1] = &StockRow{ID: itemX1, SKU: "X1", Name: "Widget X1", Quantity: dec("10")}

	audit := &recordingAudit{}
	notifier := &recordingNotifier{}
	svc := NewService(repo, audit, notifier)
	svc.WithNow(func() time.Time { return time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC) })
	return svc, repo, audit, notifier
}

func salesDraft(qty, rate string) Draft {
	return Draft{
		Type:    TypeSales,
		PartyID: customerID,
		Items:   []DraftLine{{StockItemID: itemX1, Quantity: dec(qty), Rate: dec(rate)}},
		Actor:   "owner@example.com",
	}
}

func TestPostSalesVoucher(t *testing.T) {
	svc, repo, audit, notifier := newFixture()

	posted, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.NoError(t, err)

	require.Equal(t, "SAL-00001", posted.Number)
	require.True(t, posted.TotalAmount.Equal(dec("300")))
	require.Len(t, posted.Items, 1)
	require.Len(t, posted.Entries, 2)

	require.True(t, repo.state.ledgers[customerID].Balance.Equal(dec("300")), "customer debited")
	require.True(t, repo.state.ledgers[salesID].Balance.Equal(dec("-300")), "sales credited")
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("7")), "stock decremented")

	require.Len(t, audit.logs, 1)
	require.Equal(t, "voucher.post", audit.logs[0].Action)
	require.Equal(t, []string{"voucher.post"}, notifier.actions)
}

func TestPostSalesLineDiscountRounding(t *testing.T) {
	svc, _, _, _ := newFixture()

	draft := salesDraft("3", "99.99")
	draft.Items[0].DiscountPct = dec("10")

	posted, err := svc.Post(context.Background(), draft)
	require.NoError(t, err)
	// 3 * 99.99 = 299.97, less 10% = 269.973, rounded per line to 269.97
	require.True(t, posted.TotalAmount.Equal(dec("269.97")), "got %s", posted.TotalAmount)
}

func TestPostSalesInsufficientStock(t *testing.T) {
	svc, repo, audit, notifier := newFixture()
	repo.state.stock[itemX1].Quantity = dec("7")

	_, err := svc.Post(context.Background(), salesDraft("8", "100"))

	var insufficient InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(dec("7")))
	require.True(t, insufficient.Requested.Equal(dec("8")))

	require.True(t, repo.state.ledgers[customerID].Balance.IsZero(), "no ledger mutation")
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("7")), "no stock mutation")
	require.Empty(t, repo.state.vouchers)
	require.Empty(t, audit.logs)
	require.Empty(t, notifier.actions)
}

func TestPostSalesDuplicateLinesExhaustStock(t *testing.T) {
	svc, repo, _, _ := newFixture()

	// Two lines on the same item. Each fits the on-hand 10 alone but
	// together they request 14; the combined check must refuse.
	draft := salesDraft("7", "100")
	draft.Items = append(draft.Items, DraftLine{StockItemID: itemX1, Quantity: dec("7"), Rate: dec("100")})

	_, err := svc.Post(context.Background(), draft)

	var insufficient InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(dec("10")))
	require.True(t, insufficient.Requested.Equal(dec("14")), "got %s", insufficient.Requested)

	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("10")), "no stock mutation")
	require.Empty(t, repo.state.vouchers)
}

func TestPostSalesDuplicateLinesWithinStock(t *testing.T) {
	svc, repo, _, _ := newFixture()

	draft := salesDraft("4", "100")
	draft.Items = append(draft.Items, DraftLine{StockItemID: itemX1, Quantity: dec("4"), Rate: dec("100")})

	posted, err := svc.Post(context.Background(), draft)
	require.NoError(t, err)
	require.Len(t, posted.Items, 2)
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("2")), "both lines applied")
}

func TestPostPurchaseVoucher(t *testing.T) {
	svc, repo, _, _ := newFixture()

	draft := Draft{
		Type:    TypePurchase,
		PartyID: supplierID,
		Items:   []DraftLine{{StockItemID: itemX1, Quantity: dec("5"), Rate: dec("60")}},
		Actor:   "owner@example.com",
	}
	posted, err := svc.Post(context.Background(), draft)
	require.NoError(t, err)

	require.Equal(t, "PUR-00001", posted.Number)
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("15")), "stock incremented")
	require.True(t, repo.state.ledgers[purchaseID].Balance.Equal(dec("300")), "purchase control debited")
	require.True(t, repo.state.ledgers[supplierID].Balance.Equal(dec("-300")), "supplier credited")
}

func TestPostReceiptAndPayment(t *testing.T) {
	svc, repo, _, _ := newFixture()

	_, err := svc.Post(context.Background(), Draft{
		Type:    TypeReceipt,
		PartyID: customerID,
		Amount:  dec("150"),
		Actor:   "owner@example.com",
	})
	require.NoError(t, err)
	require.True(t, repo.state.ledgers[cashID].Balance.Equal(dec("150")))
	require.True(t, repo.state.ledgers[customerID].Balance.Equal(dec("-150")))

	_, err = svc.Post(context.Background(), Draft{
		Type:    TypePayment,
		PartyID: supplierID,
		Amount:  dec("90"),
		Actor:   "owner@example.com",
	})
	require.NoError(t, err)
	require.True(t, repo.state.ledgers[cashID].Balance.Equal(dec("60")))
	require.True(t, repo.state.ledgers[supplierID].Balance.Equal(dec("90")))
}

func TestPostJournalVoucher(t *testing.T) {
	svc, repo, _, _ := newFixture()

	posted, err := svc.Post(context.Background(), Draft{
		Type: TypeJournal,
		Entries: []DraftEntry{
			{LedgerID: cashID, Debit: dec("500")},
			{LedgerID: salesID, Credit: dec("500")},
		},
		Actor: "owner@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "JOU-00001", posted.Number)
	require.True(t, repo.state.ledgers[cashID].Balance.Equal(dec("500")))
	require.True(t, repo.state.ledgers[salesID].Balance.Equal(dec("-500")))
}

func TestNumberingIsSequentialPerType(t *testing.T) {
	svc, _, _, _ := newFixture()

	first, err := svc.Post(context.Background(), salesDraft("1", "10"))
	require.NoError(t, err)
	second, err := svc.Post(context.Background(), salesDraft("1", "10"))
	require.NoError(t, err)
	receipt, err := svc.Post(context.Background(), Draft{
		Type: TypeReceipt, PartyID: customerID, Amount: dec("5"), Actor: "owner@example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "SAL-00001", first.Number)
	require.Equal(t, "SAL-00002", second.Number)
	require.Equal(t, "REC-00001", receipt.Number)
}

func TestPostRetriesOnNumberCollision(t *testing.T) {
	svc, repo, _, _ := newFixture()
	// A legacy voucher already holds SAL-00001.
	repo.state.usedNumbers["SALES/SAL-00001"] = true

	posted, err := svc.Post(context.Background(), salesDraft("1", "10"))
	require.NoError(t, err)
	require.Equal(t, "SAL-00002", posted.Number)
}

func TestPostGivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, repo, _, _ := newFixture()
	for i := 1; i <= 10; i++ {
		repo.state.usedNumbers[fmt.Sprintf("SALES/SAL-%05d", i)] = true
	}

	_, err := svc.Post(context.Background(), salesDraft("1", "10"))
	require.ErrorIs(t, err, ErrDuplicateNumber)
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("10")), "no stock mutation")
	// Only the two inter-attempt burns commit; the last collision is
	// not followed by one.
	require.Equal(t, int64(numberRetries-1), repo.state.sequences[TypeSales])
}

func TestPostAtomicOnInsertFailure(t *testing.T) {
	svc, repo, audit, notifier := newFixture()
	repo.failOn = "InsertEntries"

	_, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.Error(t, err)

	require.True(t, repo.state.ledgers[customerID].Balance.IsZero())
	require.True(t, repo.state.ledgers[salesID].Balance.IsZero())
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("10")))
	require.Empty(t, repo.state.vouchers)
	require.Empty(t, audit.logs)
	require.Empty(t, notifier.actions)
}

func TestRevertIsExactInverse(t *testing.T) {
	svc, repo, _, notifier := newFixture()

	posted, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.NoError(t, err)

	found, err := svc.Revert(context.Background(), posted.ID, "owner@example.com")
	require.NoError(t, err)
	require.True(t, found)

	require.True(t, repo.state.ledgers[customerID].Balance.IsZero())
	require.True(t, repo.state.ledgers[salesID].Balance.IsZero())
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("10")))

	stored := repo.state.vouchers[posted.ID]
	require.NotNil(t, stored, "header survives revert")
	require.Empty(t, stored.Items)
	require.Empty(t, stored.Entries)
	require.Equal(t, []string{"voucher.post", "voucher.revert"}, notifier.actions)
}

func TestRevertUnknownVoucher(t *testing.T) {
	svc, _, audit, _ := newFixture()

	found, err := svc.Revert(context.Background(), 999, "owner@example.com")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, audit.logs)
}

func TestEditKeepsIDAndNumber(t *testing.T) {
	svc, repo, _, _ := newFixture()

	posted, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.NoError(t, err)

	updated, err := svc.Edit(context.Background(), posted.ID, salesDraft("5", "100"))
	require.NoError(t, err)

	require.Equal(t, posted.ID, updated.ID)
	require.Equal(t, "SAL-00001", updated.Number)
	require.True(t, updated.TotalAmount.Equal(dec("500")))
	require.True(t, repo.state.ledgers[customerID].Balance.Equal(dec("500")))
	require.True(t, repo.state.ledgers[salesID].Balance.Equal(dec("-500")))
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("5")))
}

func TestEditIdenticalDraftIsNoOp(t *testing.T) {
	svc, repo, _, _ := newFixture()

	posted, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), posted.ID, salesDraft("3", "100"))
	require.NoError(t, err)

	require.True(t, repo.state.ledgers[customerID].Balance.Equal(dec("300")))
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("7")))
}

func TestEditRejectsTypeChange(t *testing.T) {
	svc, repo, _, _ := newFixture()

	posted, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), posted.ID, Draft{
		Type:    TypeReceipt,
		PartyID: customerID,
		Amount:  dec("300"),
		Actor:   "owner@example.com",
	})
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.True(t, repo.state.ledgers[customerID].Balance.Equal(dec("300")), "state untouched")
}

func TestEditAtomicOnFailure(t *testing.T) {
	svc, repo, _, _ := newFixture()

	posted, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.NoError(t, err)

	repo.failOn = "InsertItems"
	_, err = svc.Edit(context.Background(), posted.ID, salesDraft("5", "100"))
	require.Error(t, err)

	// The failed edit must leave the original posting fully intact.
	require.True(t, repo.state.ledgers[customerID].Balance.Equal(dec("300")))
	require.True(t, repo.state.ledgers[salesID].Balance.Equal(dec("-300")))
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("7")))
	stored := repo.state.vouchers[posted.ID]
	require.Len(t, stored.Items, 1)
	require.Len(t, stored.Entries, 2)
}

func TestEditUnknownVoucher(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.Edit(context.Background(), 999, salesDraft("1", "10"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRevertsAndRemovesHeader(t *testing.T) {
	svc, repo, _, _ := newFixture()

	posted, err := svc.Post(context.Background(), salesDraft("3", "100"))
	require.NoError(t, err)

	found, err := svc.Delete(context.Background(), posted.ID, "owner@example.com")
	require.NoError(t, err)
	require.True(t, found)

	require.True(t, repo.state.ledgers[customerID].Balance.IsZero())
	require.True(t, repo.state.stock[itemX1].Quantity.Equal(dec("10")))
	require.NotContains(t, repo.state.vouchers, posted.ID)
}

func TestDeleteUnknownVoucher(t *testing.T) {
	svc, _, _, _ := newFixture()

	found, err := svc.Delete(context.Background(), 999, "owner@example.com")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPostMissingControlLedger(t *testing.T) {
	svc, repo, _, _ := newFixture()
	delete(repo.state.ledgers, salesID)

	_, err := svc.Post(context.Background(), salesDraft("1", "10"))

	var missing MissingControlLedgerError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "SALES", missing.Wanted)
}

func TestPostUnknownParty(t *testing.T) {
	svc, _, _, _ := newFixture()

	draft := salesDraft("1", "10")
	draft.PartyID = 777

	_, err := svc.Post(context.Background(), draft)

	var unknown UnknownPartyError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, int64(777), unknown.LedgerID)
}

func TestPostWorksWithoutNotifier(t *testing.T) {
	repo := &fakeRepo{state: newFakeState()}
	repo.state.ledgers[customerID] = &LedgerRow{ID: customerID, Name: "ACME Traders", Type: ledger.TypeCustomer}
	repo.state.ledgers[salesID] = &LedgerRow{ID: salesID, Name: "Sales Account", Type: ledger.TypeSales}
	repo.state.stock[itemX1] = &StockRow{ID: itemX1, SKU: "X1", Name: "Widget X1", Quantity: dec("10")}
	svc := NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), salesDraft("1", "10"))
	require.NoError(t, err)
}

func TestGetUnknownVoucher(t *testing.T) {
	svc, _, _, _ := newFixture()

	_, err := svc.Get(context.Background(), 0)
	require.True(t, errors.Is(err, ErrNotFound))
}

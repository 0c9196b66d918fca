package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock master operations. On-hand quantity belongs to
// the voucher engine; this service manages item identity, pricing and the
// bulk import contract.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// ItemInput carries fields for creating or updating an item.
type ItemInput struct {
	SKU           string
	Name          string
	Category      string
	Barcode       string
	Unit          string
	PurchasePrice string
	SalesPrice    string
	TaxRate       string
	OpeningQty    string
	ReorderLevel  string
	Actor         string
}

// Create registers a new item. OpeningQty seeds the on-hand quantity.
func (s *Service) Create(ctx context.Context, in ItemInput) (Item, error) {
	item, err := buildItem(in, true)
	if err != nil {
		return Item{}, err
	}
	created, err := s.repo.Create(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, in.Actor, "stock.create", created.ID, map[string]any{"sku": created.SKU})
	return created, nil
}

// Update refreshes master fields. Quantity is untouched.
func (s *Service) Update(ctx context.Context, id int64, in ItemInput) (Item, error) {
	if id <= 0 {
		return Item{}, ErrNotFound
	}
	item, err := buildItem(in, false)
	if err != nil {
		return Item{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	item.ID = id
	item.Quantity = current.Quantity
	if err := s.repo.Update(ctx, item); err != nil {
		return Item{}, err
	}
	s.record(ctx, in.Actor, "stock.update", id, map[string]any{"sku": item.SKU})
	return item, nil
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Search returns items matching the filter.
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Item, error) {
	return s.repo.Search(ctx, filter)
}

// Delete removes an item, refusing while any voucher references it.
func (s *Service) Delete(ctx context.Context, id int64, actor string) error {
	if id <= 0 {
		return ErrNotFound
	}
	used, err := s.repo.InUse(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return ErrInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "stock.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "stock_item",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}

func buildItem(in ItemInput, withOpening bool) (Item, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return Item{}, fmt.Errorf("%w: sku is required", ErrInvalid)
	}
	if len(sku) > 50 {
		return Item{}, fmt.Errorf("%w: sku exceeds 50 characters", ErrInvalid)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Item{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "pcs"
	}
	item := Item{
		SKU:       sku,
		Name:      name,
		Category:  strings.TrimSpace(in.Category),
		Barcode:   strings.TrimSpace(in.Barcode),
		Unit:      unit,
		UpdatedBy: in.Actor,
	}
	var err error
	if item.PurchasePrice, err = nonNegative("purchase price", in.PurchasePrice); err != nil {
		return Item{}, err
	}
	if item.SalesPrice, err = nonNegative("sales price", in.SalesPrice); err != nil {
		return Item{}, err
	}
	if item.TaxRate, err = nonNegative("tax rate", in.TaxRate); err != nil {
		return Item{}, err
	}
	if item.ReorderLevel, err = nonNegative("reorder level", in.ReorderLevel); err != nil {
		return Item{}, err
	}
	if withOpening {
		if item.Quantity, err = nonNegative("opening quantity", in.OpeningQty); err != nil {
			return Item{}, err
		}
	}
	return item, nil
}

func nonNegative(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: invalid %s %q", ErrInvalid, field, raw)
	}
	if value.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must not be negative", ErrInvalid, field)
	}
	return value, nil
}

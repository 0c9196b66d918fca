package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tallybook/tallybook/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger master operations. Balances are left to the
// voucher engine; this service only manages account identity and contacts.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreateInput carries fields for a new ledger account.
type CreateInput struct {
	Name           string
	Type           LedgerType
	Group          AccountGroup
	OpeningBalance string
	Phone          string
	Address        string
	Email          string
	TaxID          string
	Actor          string
}

// Create registers a new account. CurrentBalance starts at OpeningBalance.
func (s *Service) Create(ctx context.Context, in CreateInput) (Ledger, error) {
	l, err := buildLedger(in)
	if err != nil {
		return Ledger{}, err
	}
	created, err := s.repo.Create(ctx, l)
	if err != nil {
		return Ledger{}, err
	}
	s.record(ctx, in.Actor, "ledger.create", created.ID, map[string]any{"name": created.Name, "type": created.Type})
	return created, nil
}

// UpdateInput carries mutable ledger fields. Balances and type are fixed.
type UpdateInput struct {
	Name    string
	Group   AccountGroup
	Phone   string
	Address string
	Email   string
	TaxID   string
	Actor   string
}

// Update modifies account identity and contact details.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Ledger, error) {
	if id <= 0 {
		return Ledger{}, ErrNotFound
	}
	if strings.TrimSpace(in.Name) == "" {
		return Ledger{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if !validGroup(in.Group) {
		return Ledger{}, fmt.Errorf("%w: unknown account group %q", ErrInvalid, in.Group)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ledger{}, err
	}
	current.Name = strings.TrimSpace(in.Name)
	current.Group = in.Group
	current.Phone = in.Phone
	current.Address = in.Address
	current.Email = in.Email
	current.TaxID = in.TaxID
	if err := s.repo.Update(ctx, current); err != nil {
		return Ledger{}, err
	}
	s.record(ctx, in.Actor, "ledger.update", id, map[string]any{"name": current.Name})
	return current, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Ledger, error) {
	if id <= 0 {
		return Ledger{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns accounts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Ledger, error) {
	return s.repo.List(ctx, filter)
}

// Delete removes an account, refusing while any voucher references it.
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
	s.record(ctx, actor, "ledger.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "ledger",
		EntityID: formatID(id),
		Meta:     meta,
		At:       s.now(),
	})
}

func validType(t LedgerType) bool {
	for _, v := range ValidTypes() {
		if v == t {
			return true
		}
	}
	return false
}

func validGroup(g AccountGroup) bool {
	for _, v := range ValidGroups() {
		if v == g {
			return true
		}
	}
	return false
}

package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/tallybook/internal/shared"
)

type memRepo struct {
	ledgers map[int64]Ledger
	byName  map[string]int64
	inUse   map[int64]bool
	nextID  int64
}

func newMemRepo() *memRepo {
	return &memRepo{ledgers: map[int64]Ledger{}, byName: map[string]int64{}, inUse: map[int64]bool{}}
}

func (r *memRepo) Create(ctx context.Context, l Ledger) (Ledger, error) {
	if _, ok := r.byName[l.Name]; ok {
		return Ledger{}, ErrNameTaken
	}
	r.nextID++
	l.ID = r.nextID
	r.ledgers[l.ID] = l
	r.byName[l.Name] = l.ID
	return l, nil
}

func (r *memRepo) Update(ctx context.Context, l Ledger) error {
	current, ok := r.ledgers[l.ID]
	if !ok {
		return ErrNotFound
	}
	if id, taken := r.byName[l.Name]; taken && id != l.ID {
		return ErrNameTaken
	}
	delete(r.byName, current.Name)
	r.ledgers[l.ID] = l
	r.byName[l.Name] = l.ID
	return nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (Ledger, error) {
	l, ok := r.ledgers[id]
	if !ok {
		return Ledger{}, ErrNotFound
	}
	return l, nil
}

func (r *memRepo) List(ctx context.Context, filter ListFilter) ([]Ledger, error) {
	var out []Ledger
	for _, l := range r.ledgers {
		if filter.Type != "" && l.Type != filter.Type {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *memRepo) Delete(ctx context.Context, id int64) error {
	l, ok := r.ledgers[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byName, l.Name)
	delete(r.ledgers, id)
	return nil
}

func (r *memRepo) InUse(ctx context.Context, id int64) (bool, error) {
	return r.inUse[id], nil
}

type nopAudit struct{}

func (nopAudit) Record(ctx context.Context, log shared.AuditLog) error { return nil }

func customerInput(name string) CreateInput {
	return CreateInput{
		Name:           name,
		Type:           TypeCustomer,
		Group:          GroupAsset,
		OpeningBalance: "1500.00",
		Actor:          "owner@example.com",
	}
}

func TestCreateLedger(t *testing.T) {
	svc := NewService(newMemRepo(), nopAudit{})

	created, err := svc.Create(context.Background(), customerInput("ACME Traders"))
	require.NoError(t, err)
	require.Equal(t, TypeCustomer, created.Type)
	require.True(t, created.OpeningBalance.Equal(decimal.NewFromFloat(1500)))
	require.True(t, created.CurrentBalance.Equal(created.OpeningBalance), "current balance starts at opening")
}

func TestCreateLedgerValidation(t *testing.T) {
	svc := NewService(newMemRepo(), nopAudit{})

	in := customerInput("")
	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalid)

	in = customerInput("ACME")
	in.Type = LedgerType("LOAN")
	_, err = svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalid)

	in = customerInput("ACME")
	in.OpeningBalance = "not-a-number"
	_, err = svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestCreateDuplicateName(t *testing.T) {
	svc := NewService(newMemRepo(), nopAudit{})

	_, err := svc.Create(context.Background(), customerInput("ACME Traders"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), customerInput("ACME Traders"))
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestUpdateKeepsTypeAndBalance(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nopAudit{})

	created, err := svc.Create(context.Background(), customerInput("ACME Traders"))
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdateInput{
		Name:  "ACME Trading Co",
		Group: GroupAsset,
		Phone: "98765",
		Actor: "owner@example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "ACME Trading Co", updated.Name)
	require.Equal(t, TypeCustomer, updated.Type, "type is immutable")
	require.True(t, updated.CurrentBalance.Equal(created.CurrentBalance), "balance untouched")
}

func TestDeleteRefusesWhileReferenced(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nopAudit{})

	created, err := svc.Create(context.Background(), customerInput("ACME Traders"))
	require.NoError(t, err)
	repo.inUse[created.ID] = true

	require.ErrorIs(t, svc.Delete(context.Background(), created.ID, "owner@example.com"), ErrInUse)

	repo.inUse[created.ID] = false
	require.NoError(t, svc.Delete(context.Background(), created.ID, "owner@example.com"))
	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

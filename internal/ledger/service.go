// Package ledger is the invariant engine of the fund ledger. Every
// transfer mutation runs as begin → row change → recompute affected
// balances → commit if all are non-negative, else rollback. Mutations
// serialize behind one mutex: the balance recompute and the commit are
// a single critical section, and the store's own transaction isolation
// alone would still allow two individually-valid transfers to combine
// into an overdraft.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fondo/internal/core"
	"fondo/internal/storage"
)

// EventPublisher is notified after a mutation commits. Publishing is
// best-effort and never fails the mutation.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, op string, transferID int64) error
}

type Service struct {
	store  *storage.Repository
	events EventPublisher
	mu     sync.Mutex
}

func NewService(store *storage.Repository, events EventPublisher) *Service {
	return &Service{
		store:  store,
		events: events,
	}
}

// TransferInput carries the user-supplied fields of a transfer. Person
// and project legs are names; the engine resolves them to ids.
type TransferInput struct {
	Time       time.Time
	Person     string
	Project    string
	SubProject string
	Kind       string
	Amount     string
	Memo       string
}

// target is a resolved (person, sub-project) pair with the names kept
// for error reporting.
type target struct {
	personID     int64
	subProjectID int64
	person       string
	project      string
	subProject   string
}

func (s *Service) resolve(ctx context.Context, in TransferInput) (target, error) {
	person, err := s.store.GetPersonByName(ctx, in.Person)
	if errors.Is(err, core.ErrNotFound) {
		return target{}, fmt.Errorf("%q: %w", in.Person, core.ErrUnknownPerson)
	}
	if err != nil {
		return target{}, err
	}

	project, err := s.store.GetProjectByName(ctx, in.Project)
	if errors.Is(err, core.ErrNotFound) {
		return target{}, fmt.Errorf("%q: %w", in.Project, core.ErrUnknownProject)
	}
	if err != nil {
		return target{}, err
	}

	sub, err := s.store.GetSubProjectByName(ctx, project.ID, in.SubProject)
	if errors.Is(err, core.ErrNotFound) {
		return target{}, fmt.Errorf("%s/%q: %w", in.Project, in.SubProject, core.ErrUnknownSubProject)
	}
	if err != nil {
		return target{}, err
	}

	return target{
		personID:     person.ID,
		subProjectID: sub.ID,
		person:       person.Name,
		project:      project.Name,
		subProject:   sub.Name,
	}, nil
}

// AddTransfer records a new transfer and returns its id. The insert is
// rolled back with a BalanceError when it would overdraw the (person,
// sub-project) pair, which can only happen for a debit.
func (s *Service) AddTransfer(ctx context.Context, in TransferInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tgt, kind, amount, err := s.validate(ctx, in)
	if err != nil {
		return 0, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}

	id, err := s.store.InsertTransfer(ctx, tx, core.Transfer{
		Time:         in.Time,
		PersonID:     tgt.personID,
		SubProjectID: tgt.subProjectID,
		Kind:         kind,
		Amount:       amount,
		Memo:         in.Memo,
	})
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := s.checkBalance(ctx, tx, tgt); err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer recorded",
		"id", id,
		"person", tgt.person,
		"project", tgt.project,
		"sub_project", tgt.subProject,
		"kind", string(kind),
		"amount", amount.String())

	s.publish(ctx, "add", id)
	return id, nil
}

// UpdateTransfer overwrites every field of an existing transfer. An
// edit can move the transfer to another person and/or sub-project, so
// the balance check covers the cross product of the old and new
// (person, sub-project) combinations.
func (s *Service) UpdateTransfer(ctx context.Context, id int64, in TransferInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		return err
	}

	tgt, kind, amount, err := s.validate(ctx, in)
	if err != nil {
		return err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := s.store.UpdateTransfer(ctx, tx, core.Transfer{
		ID:           id,
		Time:         in.Time,
		PersonID:     tgt.personID,
		SubProjectID: tgt.subProjectID,
		Kind:         kind,
		Amount:       amount,
		Memo:         in.Memo,
	}); err != nil {
		tx.Rollback()
		return err
	}

	oldTgt := target{
		personID:     old.PersonID,
		subProjectID: old.SubProjectID,
		person:       old.Person,
		project:      old.Project,
		subProject:   old.SubProject,
	}
	for _, t := range affectedTargets(oldTgt, tgt) {
		if err := s.checkBalance(ctx, tx, t); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer updated",
		"id", id,
		"person", tgt.person,
		"project", tgt.project,
		"sub_project", tgt.subProject,
		"kind", string(kind),
		"amount", amount.String())

	s.publish(ctx, "update", id)
	return nil
}

// DeleteTransfer removes a transfer. The same (person, sub-project)
// pair is re-checked over the remaining rows: deleting a credit that an
// existing debit depends on must fail, not silently flip the balance
// negative.
func (s *Service) DeleteTransfer(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := s.store.DeleteTransfer(ctx, tx, id); err != nil {
		tx.Rollback()
		return err
	}

	tgt := target{
		personID:     old.PersonID,
		subProjectID: old.SubProjectID,
		person:       old.Person,
		project:      old.Project,
		subProject:   old.SubProject,
	}
	if err := s.checkBalance(ctx, tx, tgt); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer deleted",
		"id", id,
		"person", old.Person,
		"project", old.Project,
		"sub_project", old.SubProject)

	s.publish(ctx, "delete", id)
	return nil
}

// GetBalance returns the per-sub-project balances of one person within
// one project, keyed by sub-project name. A person and project with no
// transfers yield an empty map, not an error.
func (s *Service) GetBalance(ctx context.Context, personName, projectName string) (map[string]decimal.Decimal, error) {
	// Resolve and read within one transaction so a rename or delete
	// committing mid-query cannot split the snapshot.
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	person, err := s.store.GetPersonByNameTx(ctx, tx, personName)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%q: %w", personName, core.ErrUnknownPerson)
	}
	if err != nil {
		return nil, err
	}

	project, err := s.store.GetProjectByNameTx(ctx, tx, projectName)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%q: %w", projectName, core.ErrUnknownProject)
	}
	if err != nil {
		return nil, err
	}

	return s.store.ProjectBalancesTx(ctx, tx, person.ID, project.ID)
}

// ListTransfers returns transfers matching the filter, newest first.
func (s *Service) ListTransfers(ctx context.Context, filter core.TransferFilter) ([]core.TransferView, error) {
	return s.store.ListTransfers(ctx, filter)
}

func (s *Service) validate(ctx context.Context, in TransferInput) (target, core.Kind, decimal.Decimal, error) {
	tgt, err := s.resolve(ctx, in)
	if err != nil {
		return target{}, "", decimal.Zero, err
	}
	kind, err := core.ParseKind(in.Kind)
	if err != nil {
		return target{}, "", decimal.Zero, err
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return target{}, "", decimal.Zero, fmt.Errorf("%q: %w", in.Amount, err)
	}
	t := core.Transfer{
		Time:         in.Time,
		PersonID:     tgt.personID,
		SubProjectID: tgt.subProjectID,
		Kind:         kind,
		Amount:       amount,
	}
	if err := t.Validate(); err != nil {
		return target{}, "", decimal.Zero, err
	}
	return tgt, kind, amount, nil
}

func (s *Service) checkBalance(ctx context.Context, tx *sql.Tx, tgt target) error {
	balance, err := s.store.BalanceTx(ctx, tx, tgt.personID, tgt.subProjectID)
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return &core.BalanceError{
			Person:     tgt.person,
			Project:    tgt.project,
			SubProject: tgt.subProject,
			Balance:    balance,
		}
	}
	return nil
}

// affectedTargets deduplicates the {old, new person} × {old, new
// sub-project} cross product. Up to four pairs, fewer when legs
// coincide.
func affectedTargets(before, after target) []target {
	persons := []target{before}
	if after.personID != before.personID {
		persons = append(persons, after)
	}
	subs := []target{before}
	if after.subProjectID != before.subProjectID {
		subs = append(subs, after)
	}

	var targets []target
	for _, p := range persons {
		for _, sp := range subs {
			targets = append(targets, target{
				personID:     p.personID,
				subProjectID: sp.subProjectID,
				person:       p.person,
				project:      sp.project,
				subProject:   sp.subProject,
			})
		}
	}
	return targets
}

func (s *Service) publish(ctx context.Context, op string, id int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerChanged(ctx, op, id); err != nil {
		// The mutation is committed; export lag is acceptable,
		// losing the write is not.
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"op", op, "id", id, "error", err)
	}
}

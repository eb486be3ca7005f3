package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fondo/internal/core"
	"fondo/internal/storage"
)

type recordingPublisher struct {
	ops []string
}

func (p *recordingPublisher) PublishLedgerChanged(ctx context.Context, op string, transferID int64) error {
	p.ops = append(p.ops, op)
	return nil
}

func newTestService(t *testing.T) (*Service, *storage.Repository, *recordingPublisher) {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "fondo.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	events := &recordingPublisher{}
	return NewService(repo, events), repo, events
}

func seedHierarchy(t *testing.T, repo *storage.Repository) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"Alice", "Bob"} {
		if _, err := repo.CreatePerson(ctx, name); err != nil {
			t.Fatalf("seed person: %v", err)
		}
	}
	site, err := repo.CreateProject(ctx, "Site1")
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	for _, name := range []string{"Materials", "Labor"} {
		if _, err := repo.CreateSubProject(ctx, site.ID, name); err != nil {
			t.Fatalf("seed sub-project: %v", err)
		}
	}
}

func input(person, subProject, kind, amount string) TransferInput {
	return TransferInput{
		Time:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Person:     person,
		Project:    "Site1",
		SubProject: subProject,
		Kind:       kind,
		Amount:     amount,
	}
}

// Alice credits 100.00 into Materials; a 150.00 debit must fail and
// leave the balance at 100.00.
func TestOverdraftRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	if _, err := svc.AddTransfer(ctx, input("Alice", "Materials", "credit", "100.00")); err != nil {
		t.Fatalf("credit: %v", err)
	}

	balances, err := svc.GetBalance(ctx, "Alice", "Site1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if want := decimal.RequireFromString("100"); !balances["Materials"].Equal(want) {
		t.Fatalf("balance = %s, want %s", balances["Materials"], want)
	}

	_, err = svc.AddTransfer(ctx, input("Alice", "Materials", "debit", "150.00"))
	var balErr *core.BalanceError
	if !errors.As(err, &balErr) {
		t.Fatalf("expected BalanceError, got %v", err)
	}
	if balErr.Person != "Alice" || balErr.Project != "Site1" || balErr.SubProject != "Materials" {
		t.Fatalf("violation names wrong: %+v", balErr)
	}
	if want := decimal.RequireFromString("-50"); !balErr.Balance.Equal(want) {
		t.Fatalf("reported balance = %s, want %s", balErr.Balance, want)
	}

	balances, _ = svc.GetBalance(ctx, "Alice", "Site1")
	if want := decimal.RequireFromString("100"); !balances["Materials"].Equal(want) {
		t.Fatalf("balance after rollback = %s, want %s", balances["Materials"], want)
	}
}

// Deleting a credit that an existing debit depends on must fail and
// leave both rows in place.
func TestDeleteSupportingCreditRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	creditID, err := svc.AddTransfer(ctx, input("Alice", "Materials", "credit", "100.00"))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := svc.AddTransfer(ctx, input("Alice", "Materials", "debit", "40.00")); err != nil {
		t.Fatalf("debit: %v", err)
	}

	balances, _ := svc.GetBalance(ctx, "Alice", "Site1")
	if want := decimal.RequireFromString("60"); !balances["Materials"].Equal(want) {
		t.Fatalf("balance = %s, want %s", balances["Materials"], want)
	}

	err = svc.DeleteTransfer(ctx, creditID)
	var balErr *core.BalanceError
	if !errors.As(err, &balErr) {
		t.Fatalf("expected BalanceError, got %v", err)
	}
	if want := decimal.RequireFromString("-40"); !balErr.Balance.Equal(want) {
		t.Fatalf("reported balance = %s, want %s", balErr.Balance, want)
	}

	transfers, err := svc.ListTransfers(ctx, core.TransferFilter{})
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("transfer count after failed delete = %d, want 2", len(transfers))
	}
}

func TestDeleteTransfer(t *testing.T) {
	svc, repo, events := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	id, err := svc.AddTransfer(ctx, input("Alice", "Materials", "credit", "25.00"))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := svc.DeleteTransfer(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteTransfer(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete expected ErrNotFound, got %v", err)
	}

	want := []string{"add", "delete"}
	if len(events.ops) != len(want) {
		t.Fatalf("published ops = %v, want %v", events.ops, want)
	}
	for i := range want {
		if events.ops[i] != want[i] {
			t.Fatalf("published ops = %v, want %v", events.ops, want)
		}
	}
}

// An edit can move a transfer to a different person and/or
// sub-project; both the origin and destination pairs are re-validated.
func TestUpdateTransferCrossProduct(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	if _, err := svc.AddTransfer(ctx, input("Alice", "Materials", "credit", "100.00")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	debitID, err := svc.AddTransfer(ctx, input("Alice", "Materials", "debit", "80.00"))
	if err != nil {
		t.Fatalf("debit: %v", err)
	}

	t.Run("move debit to unfunded pair fails", func(t *testing.T) {
		err := svc.UpdateTransfer(ctx, debitID, input("Bob", "Labor", "debit", "80.00"))
		var balErr *core.BalanceError
		if !errors.As(err, &balErr) {
			t.Fatalf("expected BalanceError, got %v", err)
		}
		if balErr.Person != "Bob" || balErr.SubProject != "Labor" {
			t.Fatalf("violation should name the destination pair, got %+v", balErr)
		}

		// Origin pair untouched by the rolled-back edit.
		balances, _ := svc.GetBalance(ctx, "Alice", "Site1")
		if want := decimal.RequireFromString("20"); !balances["Materials"].Equal(want) {
			t.Fatalf("balance after rollback = %s, want %s", balances["Materials"], want)
		}
	})

	t.Run("funded move succeeds", func(t *testing.T) {
		if _, err := svc.AddTransfer(ctx, input("Bob", "Labor", "credit", "90.00")); err != nil {
			t.Fatalf("fund destination: %v", err)
		}
		if err := svc.UpdateTransfer(ctx, debitID, input("Bob", "Labor", "debit", "80.00")); err != nil {
			t.Fatalf("update: %v", err)
		}

		aliceBalances, _ := svc.GetBalance(ctx, "Alice", "Site1")
		if want := decimal.RequireFromString("100"); !aliceBalances["Materials"].Equal(want) {
			t.Fatalf("origin balance = %s, want %s", aliceBalances["Materials"], want)
		}
		bobBalances, _ := svc.GetBalance(ctx, "Bob", "Site1")
		if want := decimal.RequireFromString("10"); !bobBalances["Labor"].Equal(want) {
			t.Fatalf("destination balance = %s, want %s", bobBalances["Labor"], want)
		}
	})

	t.Run("shrinking the supporting credit fails", func(t *testing.T) {
		transfers, _ := svc.ListTransfers(ctx, core.TransferFilter{Person: "Bob", Kind: core.Credit})
		if len(transfers) != 1 {
			t.Fatalf("expected one Bob credit, got %d", len(transfers))
		}
		err := svc.UpdateTransfer(ctx, transfers[0].ID, input("Bob", "Labor", "credit", "50.00"))
		var balErr *core.BalanceError
		if !errors.As(err, &balErr) {
			t.Fatalf("expected BalanceError, got %v", err)
		}
	})
}

func TestUnknownNames(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	cases := []struct {
		name string
		in   TransferInput
		want error
	}{
		{"unknown person", input("Carol", "Materials", "credit", "10"), core.ErrUnknownPerson},
		{"unknown project", TransferInput{Time: time.Now(), Person: "Alice", Project: "Ghost", SubProject: "Materials", Kind: "credit", Amount: "10"}, core.ErrUnknownProject},
		{"unknown sub-project", input("Alice", "Ghost", "credit", "10"), core.ErrUnknownSubProject},
		{"invalid amount", input("Alice", "Materials", "credit", "ten"), core.ErrInvalidAmount},
		{"negative amount", input("Alice", "Materials", "credit", "-5"), core.ErrInvalidAmount},
		{"invalid kind", input("Alice", "Materials", "deposit", "10"), core.ErrInvalidKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddTransfer(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if transfers, _ := svc.ListTransfers(ctx, core.TransferFilter{}); len(transfers) != 0 {
		t.Fatalf("failed adds must not persist rows, got %d", len(transfers))
	}

	t.Run("zero time", func(t *testing.T) {
		in := input("Alice", "Materials", "credit", "10")
		in.Time = time.Time{}
		if _, err := svc.AddTransfer(ctx, in); err == nil {
			t.Fatal("expected error for zero time")
		}
	})
}

func TestGetBalance(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	t.Run("empty ledger yields empty map", func(t *testing.T) {
		balances, err := svc.GetBalance(ctx, "Alice", "Site1")
		if err != nil {
			t.Fatalf("get balance: %v", err)
		}
		if len(balances) != 0 {
			t.Fatalf("expected empty map, got %v", balances)
		}
	})

	t.Run("unknown person", func(t *testing.T) {
		if _, err := svc.GetBalance(ctx, "Carol", "Site1"); !errors.Is(err, core.ErrUnknownPerson) {
			t.Fatalf("expected ErrUnknownPerson, got %v", err)
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		if _, err := svc.GetBalance(ctx, "Alice", "Ghost"); !errors.Is(err, core.ErrUnknownProject) {
			t.Fatalf("expected ErrUnknownProject, got %v", err)
		}
	})
}

// Project-level balance equals the sum of the per-sub-project
// balances.
func TestBalanceAdditivity(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	fixture := []struct {
		person, sub, kind, amount string
	}{
		{"Alice", "Materials", "credit", "100.00"},
		{"Alice", "Materials", "debit", "30.00"},
		{"Alice", "Labor", "credit", "50.50"},
		{"Alice", "Labor", "debit", "0.50"},
	}
	for _, f := range fixture {
		if _, err := svc.AddTransfer(ctx, input(f.person, f.sub, f.kind, f.amount)); err != nil {
			t.Fatalf("add %v: %v", f, err)
		}
	}

	balances, err := svc.GetBalance(ctx, "Alice", "Site1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}

	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b)
	}
	if want := decimal.RequireFromString("120"); !total.Equal(want) {
		t.Fatalf("project balance = %s, want %s", total, want)
	}
}

// Any sequence of individually-successful mutations keeps every
// (person, sub-project) balance non-negative.
func TestInvariantPreservation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedHierarchy(t, repo)
	ctx := context.Background()

	steps := []struct {
		person, sub, kind, amount string
	}{
		{"Alice", "Materials", "credit", "10.00"},
		{"Alice", "Materials", "debit", "10.00"},
		{"Alice", "Materials", "debit", "0.01"}, // fails
		{"Bob", "Labor", "credit", "5"},
		{"Bob", "Labor", "debit", "4.99"},
		{"Bob", "Materials", "debit", "0.01"}, // fails
		{"Alice", "Labor", "credit", "1"},
	}

	for _, s := range steps {
		_, err := svc.AddTransfer(ctx, input(s.person, s.sub, s.kind, s.amount))

		var balErr *core.BalanceError
		if err != nil && !errors.As(err, &balErr) {
			t.Fatalf("step %v: unexpected error %v", s, err)
		}

		for _, person := range []string{"Alice", "Bob"} {
			balances, err := svc.GetBalance(ctx, person, "Site1")
			if err != nil {
				t.Fatalf("get balance: %v", err)
			}
			for sub, b := range balances {
				if b.IsNegative() {
					t.Fatalf("after step %v: balance(%s, %s) = %s", s, person, sub, b)
				}
			}
		}
	}
}

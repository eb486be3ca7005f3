package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fondo/internal/amqp"
	"fondo/internal/core"
	"fondo/internal/ledger"
	"fondo/internal/storage"
)

type fakeWriter struct {
	writes []core.Summary
	err    error
}

func (w *fakeWriter) WriteSummary(ctx context.Context, s core.Summary) error {
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, s)
	return nil
}

func newWorkerFixture(t *testing.T) (*ExportWorker, *ledger.Service, *fakeWriter) {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "fondo.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	if _, err := repo.CreatePerson(ctx, "Alice"); err != nil {
		t.Fatalf("seed person: %v", err)
	}
	project, err := repo.CreateProject(ctx, "Site1")
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	if _, err := repo.CreateSubProject(ctx, project.ID, "Materials"); err != nil {
		t.Fatalf("seed sub-project: %v", err)
	}

	svc := ledger.NewService(repo, nil)
	writer := &fakeWriter{}
	return NewExportWorker(svc, writer, nil, time.Second), svc, writer
}

func TestHandleChangeMessageMarksDirty(t *testing.T) {
	w, _, _ := newWorkerFixture(t)

	if w.dirty.Load() {
		t.Fatal("worker starts dirty")
	}
	msg := amqp.NewLedgerChangedMessage("add", 7)
	if err := w.HandleChangeMessage(msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if !w.dirty.Load() {
		t.Fatal("message did not mark the summary dirty")
	}

	// The flag is consumed by exactly one exporter pass.
	if !w.dirty.Swap(false) {
		t.Fatal("expected dirty flag to be set")
	}
	if w.dirty.Swap(false) {
		t.Fatal("dirty flag must clear after one swap")
	}
}

func TestExportWritesCurrentSummary(t *testing.T) {
	w, svc, writer := newWorkerFixture(t)
	ctx := context.Background()

	if _, err := svc.AddTransfer(ctx, ledger.TransferInput{
		Time:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Person:     "Alice",
		Project:    "Site1",
		SubProject: "Materials",
		Kind:       "credit",
		Amount:     "42.00",
	}); err != nil {
		t.Fatalf("add transfer: %v", err)
	}

	if err := w.Export(ctx); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(writer.writes) != 1 {
		t.Fatalf("writer received %d summaries, want 1", len(writer.writes))
	}

	got := writer.writes[0]
	if len(got.Persons) != 1 || got.Persons[0] != "Alice" {
		t.Fatalf("persons = %v", got.Persons)
	}
	if got.GrandTotal.String() != "42" {
		t.Fatalf("grand total = %s, want 42", got.GrandTotal)
	}
}

func TestExportPropagatesWriterError(t *testing.T) {
	w, _, writer := newWorkerFixture(t)
	writer.err = errors.New("quota exceeded")

	err := w.Export(context.Background())
	if err == nil || !errors.Is(err, writer.err) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

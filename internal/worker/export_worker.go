// Package worker re-exports the summary matrix after ledger changes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fondo/internal/amqp"
	"fondo/internal/export"
	"fondo/internal/ledger"
)

// ExportWorker consumes ledger change messages and pushes a fresh
// summary to the configured writer. Messages only mark the summary
// dirty; the export itself is debounced so a burst of edits produces
// one write.
type ExportWorker struct {
	ledger   *ledger.Service
	writer   export.SummaryWriter
	client   *amqp.Client
	debounce time.Duration
	dirty    atomic.Bool
}

func NewExportWorker(svc *ledger.Service, writer export.SummaryWriter, client *amqp.Client, debounce time.Duration) *ExportWorker {
	return &ExportWorker{
		ledger:   svc,
		writer:   writer,
		client:   client,
		debounce: debounce,
	}
}

// HandleChangeMessage records that the summary is stale. The message
// is acked once marked; rebuild failures are retried by the ticker,
// not by requeueing.
func (w *ExportWorker) HandleChangeMessage(msg *amqp.LedgerChangedMessage) error {
	slog.Info("Ledger change received",
		"op", msg.Op,
		"transfer_id", msg.TransferID,
		"timestamp", msg.Timestamp)
	w.dirty.Store(true)
	return nil
}

// Export rebuilds the summary and writes it out.
func (w *ExportWorker) Export(ctx context.Context) error {
	summary, err := w.ledger.BuildSummary(ctx)
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}
	if err := w.writer.WriteSummary(ctx, summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Run consumes messages and exports on the debounce tick until ctx is
// cancelled. An initial export runs at startup so the spreadsheet
// reflects mutations that happened while the worker was down.
func (w *ExportWorker) Run(ctx context.Context) error {
	if err := w.Export(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup export failed", "error", err)
		w.dirty.Store(true)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.client.ConsumeLedgerChanges(ctx, w.HandleChangeMessage)
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.debounce)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if !w.dirty.Swap(false) {
					continue
				}
				if err := w.Export(ctx); err != nil {
					slog.ErrorContext(ctx, "Summary export failed", "error", err)
					w.dirty.Store(true)
				}
			}
		}
	})

	return g.Wait()
}

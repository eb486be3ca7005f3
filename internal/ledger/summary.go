package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"fondo/internal/core"
)

// BuildSummary derives the dense pivot of the whole transfer log:
// persons in creation order against (project, sub-project) columns in
// hierarchy rank order, one credit and one debit cell per combination.
//
// Every cell is pre-seeded to zero before the transfer scan. A sparse
// accumulation would omit rows and columns that have never been used
// and produce a jagged report; pre-seeding keeps the matrix
// rectangular for any fixture, including the empty one.
func (s *Service) BuildSummary(ctx context.Context) (core.Summary, error) {
	// All three reads share one transaction: the axes and the transfer
	// log must come from the same commit point, or a mutation landing
	// between them can reference a person or column the axes missed.
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	defer tx.Rollback()

	persons, err := s.store.ListPersonsTx(ctx, tx)
	if err != nil {
		return core.Summary{}, err
	}
	columns, err := s.store.ListSubProjectsTx(ctx, tx, 0)
	if err != nil {
		return core.Summary{}, err
	}
	transfers, err := s.store.ListTransfersTx(ctx, tx, core.TransferFilter{})
	if err != nil {
		return core.Summary{}, err
	}

	summary := core.Summary{
		Persons:      make([]string, len(persons)),
		Columns:      make([]core.SummaryColumn, len(columns)),
		Credits:      make([][]decimal.Decimal, len(persons)),
		Debits:       make([][]decimal.Decimal, len(persons)),
		PersonCredit: make([]decimal.Decimal, len(persons)),
		PersonNet:    make([]decimal.Decimal, len(persons)),
		ColumnTotals: make([]decimal.Decimal, len(columns)),
		GrandTotal:   decimal.Zero,
	}

	personIdx := make(map[int64]int, len(persons))
	for i, p := range persons {
		summary.Persons[i] = p.Name
		personIdx[p.ID] = i
		summary.Credits[i] = zeroRow(len(columns))
		summary.Debits[i] = zeroRow(len(columns))
		summary.PersonCredit[i] = decimal.Zero
		summary.PersonNet[i] = decimal.Zero
	}

	columnIdx := make(map[int64]int, len(columns))
	for i, c := range columns {
		summary.Columns[i] = core.SummaryColumn{Project: c.Project, SubProject: c.Name}
		columnIdx[c.ID] = i
		summary.ColumnTotals[i] = decimal.Zero
	}

	// Single pass over the log; foreign keys guarantee every transfer
	// lands in a seeded cell.
	personDebit := zeroRow(len(persons))
	for _, t := range transfers {
		p := personIdx[t.PersonID]
		c := columnIdx[t.SubProjectID]

		switch t.Kind {
		case core.Credit:
			summary.Credits[p][c] = summary.Credits[p][c].Add(t.Amount)
			summary.PersonCredit[p] = summary.PersonCredit[p].Add(t.Amount)
		case core.Debit:
			summary.Debits[p][c] = summary.Debits[p][c].Add(t.Amount)
			personDebit[p] = personDebit[p].Add(t.Amount)
		}
		summary.ColumnTotals[c] = summary.ColumnTotals[c].Add(t.Kind.Signed(t.Amount))
	}

	for i := range persons {
		summary.PersonNet[i] = summary.PersonCredit[i].Sub(personDebit[i])
	}
	for _, total := range summary.ColumnTotals {
		summary.GrandTotal = summary.GrandTotal.Add(total)
	}

	return summary, nil
}

func zeroRow(n int) []decimal.Decimal {
	row := make([]decimal.Decimal, n)
	for i := range row {
		row[i] = decimal.Zero
	}
	return row
}

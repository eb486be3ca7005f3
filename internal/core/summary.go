package core

import "github.com/shopspring/decimal"

// SummaryColumn identifies one (project, sub-project) column of the
// summary matrix, in hierarchy rank order.
type SummaryColumn struct {
	Project    string
	SubProject string
}

// Summary is the dense pivot of the whole transfer log: one credit and
// one debit row per person, one column per (project, sub-project), with
// trailing totals. It is derived output with no lifecycle of its own
// and is rebuilt in full on every request.
type Summary struct {
	Persons []string
	Columns []SummaryColumn

	// Credits[p][c] and Debits[p][c] are the unsigned sums for person
	// p and column c. Every cell exists, zero when unused.
	Credits [][]decimal.Decimal
	Debits  [][]decimal.Decimal

	// Per-person totals over all columns.
	PersonCredit []decimal.Decimal
	PersonNet    []decimal.Decimal // credit total minus debit total

	// Signed (credit minus debit) total per column, and their sum.
	ColumnTotals []decimal.Decimal
	GrandTotal   decimal.Decimal
}

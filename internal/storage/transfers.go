package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fondo/internal/core"
)

// Transfer rows are only ever written through these tx-scoped methods;
// the ledger engine owns the transaction so the invariant check and the
// row change commit or roll back together.

// InsertTransfer adds a transfer row inside tx and returns its id.
func (r *Repository) InsertTransfer(ctx context.Context, tx *sql.Tx, t core.Transfer) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transfer (time, person_id, sub_project_id, kind, amount, memo)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(t.Time), t.PersonID, t.SubProjectID, string(t.Kind),
		t.Amount.String(), nullableMemo(t.Memo))
	if err != nil {
		return 0, fmt.Errorf("insert transfer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transfer insert id: %w", err)
	}
	return id, nil
}

// UpdateTransfer overwrites every mutable field of the row t.ID inside
// tx.
func (r *Repository) UpdateTransfer(ctx context.Context, tx *sql.Tx, t core.Transfer) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transfer
		 SET time = ?, person_id = ?, sub_project_id = ?, kind = ?, amount = ?, memo = ?
		 WHERE id = ?`,
		formatTime(t.Time), t.PersonID, t.SubProjectID, string(t.Kind),
		t.Amount.String(), nullableMemo(t.Memo), t.ID)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transfer rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transfer %d: %w", t.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteTransfer removes the row id inside tx.
func (r *Repository) DeleteTransfer(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM transfer WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transfer rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transfer %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// GetTransfer returns the joined view of one transfer row.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (core.TransferView, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT t.id, t.time, t.person_id, t.sub_project_id,
		        pe.name, p.name, sp.name, t.kind, t.amount, COALESCE(t.memo, '')
		 FROM transfer t
		 JOIN person pe ON pe.id = t.person_id
		 JOIN sub_project sp ON sp.id = t.sub_project_id
		 JOIN project p ON p.id = sp.project_id
		 WHERE t.id = ?`, id)

	v, err := scanTransferView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransferView{}, fmt.Errorf("transfer %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.TransferView{}, fmt.Errorf("get transfer: %w", err)
	}
	return v, nil
}

// Balance sums signed amounts for one (person, sub-project) pair over
// the live table.
func (r *Repository) Balance(ctx context.Context, personID, subProjectID int64) (decimal.Decimal, error) {
	return balance(ctx, r.db, personID, subProjectID)
}

// BalanceTx is Balance evaluated inside a mutation's transaction, so
// the invariant check sees the uncommitted row change.
func (r *Repository) BalanceTx(ctx context.Context, tx *sql.Tx, personID, subProjectID int64) (decimal.Decimal, error) {
	return balance(ctx, tx, personID, subProjectID)
}

func balance(ctx context.Context, q querier, personID, subProjectID int64) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT kind, amount FROM transfer
		 WHERE person_id = ? AND sub_project_id = ?`,
		personID, subProjectID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query balance rows: %w", err)
	}
	defer rows.Close()

	// The signed sum is folded in Go: amounts are stored as decimal
	// text and must never pass through SQLite's float arithmetic.
	total := decimal.Zero
	for rows.Next() {
		var kind, amountText string
		if err := rows.Scan(&kind, &amountText); err != nil {
			return decimal.Zero, fmt.Errorf("scan balance row: %w", err)
		}
		amount, err := scanAmount(amountText)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(core.Kind(kind).Signed(amount))
	}
	return total, rows.Err()
}

// ProjectBalances returns the per-sub-project balances of one person
// within one project, keyed by sub-project name. Sub-projects with no
// transfers are absent; an empty ledger yields an empty map.
func (r *Repository) ProjectBalances(ctx context.Context, personID, projectID int64) (map[string]decimal.Decimal, error) {
	return projectBalances(ctx, r.db, personID, projectID)
}

// ProjectBalancesTx is ProjectBalances inside a caller-owned
// transaction.
func (r *Repository) ProjectBalancesTx(ctx context.Context, tx *sql.Tx, personID, projectID int64) (map[string]decimal.Decimal, error) {
	return projectBalances(ctx, tx, personID, projectID)
}

func projectBalances(ctx context.Context, q querier, personID, projectID int64) (map[string]decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT sp.name, t.kind, t.amount
		 FROM transfer t
		 JOIN sub_project sp ON sp.id = t.sub_project_id
		 WHERE t.person_id = ? AND sp.project_id = ?`,
		personID, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var name, kind, amountText string
		if err := rows.Scan(&name, &kind, &amountText); err != nil {
			return nil, fmt.Errorf("scan project balance row: %w", err)
		}
		amount, err := scanAmount(amountText)
		if err != nil {
			return nil, err
		}
		balances[name] = balances[name].Add(core.Kind(kind).Signed(amount))
	}
	return balances, rows.Err()
}

// ListTransfers returns transfers matching the filter, most recent
// first; equal timestamps keep insertion order. Filter values are
// exact matches bound as parameters.
func (r *Repository) ListTransfers(ctx context.Context, filter core.TransferFilter) ([]core.TransferView, error) {
	return listTransfers(ctx, r.db, filter)
}

// ListTransfersTx is ListTransfers inside a caller-owned transaction.
func (r *Repository) ListTransfersTx(ctx context.Context, tx *sql.Tx, filter core.TransferFilter) ([]core.TransferView, error) {
	return listTransfers(ctx, tx, filter)
}

func listTransfers(ctx context.Context, q querier, filter core.TransferFilter) ([]core.TransferView, error) {
	query := `SELECT t.id, t.time, t.person_id, t.sub_project_id,
	                 pe.name, p.name, sp.name, t.kind, t.amount, COALESCE(t.memo, '')
	          FROM transfer t
	          JOIN person pe ON pe.id = t.person_id
	          JOIN sub_project sp ON sp.id = t.sub_project_id
	          JOIN project p ON p.id = sp.project_id`
	var (
		conds []string
		args  []any
	)
	if filter.Person != "" {
		conds = append(conds, `pe.name = ?`)
		args = append(args, filter.Person)
	}
	if filter.Project != "" {
		conds = append(conds, `p.name = ?`)
		args = append(args, filter.Project)
	}
	if filter.Kind != "" {
		conds = append(conds, `t.kind = ?`)
		args = append(args, string(filter.Kind))
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY t.time DESC, t.id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []core.TransferView
	for rows.Next() {
		v, err := scanTransferView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, v)
	}
	return transfers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransferView(row rowScanner) (core.TransferView, error) {
	var (
		v          core.TransferView
		timeText   string
		kind       string
		amountText string
	)
	if err := row.Scan(&v.ID, &timeText, &v.PersonID, &v.SubProjectID,
		&v.Person, &v.Project, &v.SubProject, &kind, &amountText, &v.Memo); err != nil {
		return core.TransferView{}, err
	}

	t, err := parseTime(timeText)
	if err != nil {
		return core.TransferView{}, err
	}
	amount, err := scanAmount(amountText)
	if err != nil {
		return core.TransferView{}, err
	}
	v.Time = t
	v.Kind = core.Kind(kind)
	v.Amount = amount
	return v, nil
}

func nullableMemo(memo string) any {
	if memo == "" {
		return nil
	}
	return memo
}

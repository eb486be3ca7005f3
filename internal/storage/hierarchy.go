package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fondo/internal/core"
)

// CreatePerson inserts a person. Names are globally unique.
func (r *Repository) CreatePerson(ctx context.Context, name string) (core.Person, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Person{}, err
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO person (name) VALUES (?)`, name)
	if isUniqueViolation(err) {
		return core.Person{}, fmt.Errorf("person %q: %w", name, core.ErrDuplicateName)
	}
	if err != nil {
		return core.Person{}, fmt.Errorf("insert person: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Person{}, fmt.Errorf("person insert id: %w", err)
	}
	return core.Person{ID: id, Name: name}, nil
}

// CreateProject inserts a project at the end of the display order
// (rank = current max + 1, 1 when the table is empty).
func (r *Repository) CreateProject(ctx context.Context, name string) (core.Project, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Project{}, err
	}

	tx, err := r.BeginTx(ctx)
	if err != nil {
		return core.Project{}, err
	}

	var rank int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(rank), 0) + 1 FROM project`).Scan(&rank); err != nil {
		return core.Project{}, rollback(tx, fmt.Errorf("next project rank: %w", err))
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO project (name, rank) VALUES (?, ?)`, name, rank)
	if isUniqueViolation(err) {
		return core.Project{}, rollback(tx, fmt.Errorf("project %q: %w", name, core.ErrDuplicateName))
	}
	if err != nil {
		return core.Project{}, rollback(tx, fmt.Errorf("insert project: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Project{}, rollback(tx, fmt.Errorf("project insert id: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return core.Project{}, fmt.Errorf("commit project insert: %w", err)
	}
	return core.Project{ID: id, Name: name, Rank: rank}, nil
}

// CreateSubProject inserts a sub-project under a project, ranked last
// among its siblings. Name uniqueness is per parent.
func (r *Repository) CreateSubProject(ctx context.Context, projectID int64, name string) (core.SubProject, error) {
	if err := core.ValidateName(name); err != nil {
		return core.SubProject{}, err
	}

	tx, err := r.BeginTx(ctx)
	if err != nil {
		return core.SubProject{}, err
	}

	var exists int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM project WHERE id = ?`, projectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SubProject{}, rollback(tx, fmt.Errorf("project %d: %w", projectID, core.ErrNotFound))
	}
	if err != nil {
		return core.SubProject{}, rollback(tx, fmt.Errorf("check project: %w", err))
	}

	var rank int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(rank), 0) + 1 FROM sub_project WHERE project_id = ?`,
		projectID).Scan(&rank); err != nil {
		return core.SubProject{}, rollback(tx, fmt.Errorf("next sub-project rank: %w", err))
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sub_project (name, project_id, rank) VALUES (?, ?, ?)`,
		name, projectID, rank)
	if isUniqueViolation(err) {
		return core.SubProject{}, rollback(tx, fmt.Errorf("sub-project %q: %w", name, core.ErrDuplicateName))
	}
	if err != nil {
		return core.SubProject{}, rollback(tx, fmt.Errorf("insert sub-project: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.SubProject{}, rollback(tx, fmt.Errorf("sub-project insert id: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return core.SubProject{}, fmt.Errorf("commit sub-project insert: %w", err)
	}
	return core.SubProject{ID: id, Name: name, ProjectID: projectID, Rank: rank}, nil
}

func (r *Repository) rename(ctx context.Context, table, label string, id int64, newName string) error {
	if err := core.ValidateName(newName); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET name = ? WHERE id = ?`, newName, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %q: %w", label, newName, core.ErrDuplicateName)
	}
	if err != nil {
		return fmt.Errorf("rename %s: %w", label, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename %s rows affected: %w", label, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", label, id, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) RenamePerson(ctx context.Context, id int64, newName string) error {
	return r.rename(ctx, "person", "person", id, newName)
}

func (r *Repository) RenameProject(ctx context.Context, id int64, newName string) error {
	return r.rename(ctx, "project", "project", id, newName)
}

func (r *Repository) RenameSubProject(ctx context.Context, id int64, newName string) error {
	return r.rename(ctx, "sub_project", "sub-project", id, newName)
}

// DeletePerson removes a person. Deletion is RESTRICT: it fails while
// any transfer still references the person. No cascades, ever; a
// cascade could silently destroy financial history.
func (r *Repository) DeletePerson(ctx context.Context, id int64) error {
	return r.deleteRestricted(ctx, restrictedDelete{
		table:    "person",
		label:    "person",
		refQuery: `SELECT COUNT(*) FROM transfer WHERE person_id = ?`,
		refLabel: "transfers",
	}, id)
}

// DeleteProject removes a project, failing while any sub-project still
// belongs to it.
func (r *Repository) DeleteProject(ctx context.Context, id int64) error {
	return r.deleteRestricted(ctx, restrictedDelete{
		table:    "project",
		label:    "project",
		refQuery: `SELECT COUNT(*) FROM sub_project WHERE project_id = ?`,
		refLabel: "sub-projects",
	}, id)
}

// DeleteSubProject removes a sub-project, failing while any transfer
// still references it.
func (r *Repository) DeleteSubProject(ctx context.Context, id int64) error {
	return r.deleteRestricted(ctx, restrictedDelete{
		table:    "sub_project",
		label:    "sub-project",
		refQuery: `SELECT COUNT(*) FROM transfer WHERE sub_project_id = ?`,
		refLabel: "transfers",
	}, id)
}

type restrictedDelete struct {
	table    string
	label    string
	refQuery string
	refLabel string
}

func (r *Repository) deleteRestricted(ctx context.Context, ds restrictedDelete, id int64) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}

	var refs int64
	if err := tx.QueryRowContext(ctx, ds.refQuery, id).Scan(&refs); err != nil {
		return rollback(tx, fmt.Errorf("count %s references: %w", ds.label, err))
	}
	if refs > 0 {
		return rollback(tx, fmt.Errorf("%s %d has %d %s: %w",
			ds.label, id, refs, ds.refLabel, core.ErrReferenced))
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM `+ds.table+` WHERE id = ?`, id)
	if err != nil {
		return rollback(tx, fmt.Errorf("delete %s: %w", ds.label, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rollback(tx, fmt.Errorf("delete %s rows affected: %w", ds.label, err))
	}
	if n == 0 {
		return rollback(tx, fmt.Errorf("%s %d: %w", ds.label, id, core.ErrNotFound))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s delete: %w", ds.label, err)
	}
	return nil
}

// ReorderProjects swaps the ranks of two projects in one transaction.
// Callers pass validated sibling pairs; the swap itself never changes
// the set of ranks, only their assignment.
func (r *Repository) ReorderProjects(ctx context.Context, aID, bID int64) error {
	return r.swapRanks(ctx, "project", aID, bID)
}

// ReorderSubProjects swaps the ranks of two sub-projects of the same
// parent in one transaction.
func (r *Repository) ReorderSubProjects(ctx context.Context, aID, bID int64) error {
	return r.swapRanks(ctx, "sub_project", aID, bID)
}

func (r *Repository) swapRanks(ctx context.Context, table string, aID, bID int64) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}

	readRank := func(id int64) (int64, error) {
		var rank int64
		err := tx.QueryRowContext(ctx,
			`SELECT rank FROM `+table+` WHERE id = ?`, id).Scan(&rank)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s %d: %w", table, id, core.ErrNotFound)
		}
		return rank, err
	}

	aRank, err := readRank(aID)
	if err != nil {
		return rollback(tx, err)
	}
	bRank, err := readRank(bID)
	if err != nil {
		return rollback(tx, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET rank = ? WHERE id = ?`, bRank, aID); err != nil {
		return rollback(tx, fmt.Errorf("swap rank of %s %d: %w", table, aID, err))
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET rank = ? WHERE id = ?`, aRank, bID); err != nil {
		return rollback(tx, fmt.Errorf("swap rank of %s %d: %w", table, bID, err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rank swap: %w", err)
	}
	return nil
}

// ListPersons returns all persons in creation order.
func (r *Repository) ListPersons(ctx context.Context) ([]core.Person, error) {
	return listPersons(ctx, r.db)
}

// ListPersonsTx is ListPersons inside a caller-owned transaction.
func (r *Repository) ListPersonsTx(ctx context.Context, tx *sql.Tx) ([]core.Person, error) {
	return listPersons(ctx, tx)
}

func listPersons(ctx context.Context, q querier) ([]core.Person, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM person ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []core.Person
	for rows.Next() {
		var p core.Person
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// ListProjects returns all projects in rank order.
func (r *Repository) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, rank FROM project ORDER BY rank`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []core.Project
	for rows.Next() {
		var p core.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Rank); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SubProjectView is a sub-project joined with its parent project name.
type SubProjectView struct {
	core.SubProject
	Project string
}

// ListSubProjects returns sub-projects grouped by project rank, then by
// their own rank within the project. projectID 0 lists all of them.
func (r *Repository) ListSubProjects(ctx context.Context, projectID int64) ([]SubProjectView, error) {
	return listSubProjects(ctx, r.db, projectID)
}

// ListSubProjectsTx is ListSubProjects inside a caller-owned
// transaction.
func (r *Repository) ListSubProjectsTx(ctx context.Context, tx *sql.Tx, projectID int64) ([]SubProjectView, error) {
	return listSubProjects(ctx, tx, projectID)
}

func listSubProjects(ctx context.Context, q querier, projectID int64) ([]SubProjectView, error) {
	query := `SELECT sp.id, sp.name, sp.project_id, sp.rank, p.name
		FROM sub_project sp
		JOIN project p ON p.id = sp.project_id`
	args := []any{}
	if projectID != 0 {
		query += ` WHERE sp.project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY p.rank, sp.rank`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sub-projects: %w", err)
	}
	defer rows.Close()

	var subs []SubProjectView
	for rows.Next() {
		var s SubProjectView
		if err := rows.Scan(&s.ID, &s.Name, &s.ProjectID, &s.Rank, &s.Project); err != nil {
			return nil, fmt.Errorf("scan sub-project: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GetPersonByName resolves a person name to its row.
func (r *Repository) GetPersonByName(ctx context.Context, name string) (core.Person, error) {
	return getPersonByName(ctx, r.db, name)
}

// GetPersonByNameTx is GetPersonByName inside a caller-owned
// transaction.
func (r *Repository) GetPersonByNameTx(ctx context.Context, tx *sql.Tx, name string) (core.Person, error) {
	return getPersonByName(ctx, tx, name)
}

func getPersonByName(ctx context.Context, q querier, name string) (core.Person, error) {
	var p core.Person
	err := q.QueryRowContext(ctx,
		`SELECT id, name FROM person WHERE name = ?`, name).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Person{}, fmt.Errorf("person %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return core.Person{}, fmt.Errorf("get person by name: %w", err)
	}
	return p, nil
}

// GetProjectByName resolves a project name to its row.
func (r *Repository) GetProjectByName(ctx context.Context, name string) (core.Project, error) {
	return getProjectByName(ctx, r.db, name)
}

// GetProjectByNameTx is GetProjectByName inside a caller-owned
// transaction.
func (r *Repository) GetProjectByNameTx(ctx context.Context, tx *sql.Tx, name string) (core.Project, error) {
	return getProjectByName(ctx, tx, name)
}

func getProjectByName(ctx context.Context, q querier, name string) (core.Project, error) {
	var p core.Project
	err := q.QueryRowContext(ctx,
		`SELECT id, name, rank FROM project WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &p.Rank)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, fmt.Errorf("project %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project by name: %w", err)
	}
	return p, nil
}

// GetSubProjectByName resolves a sub-project by parent project id and
// name.
func (r *Repository) GetSubProjectByName(ctx context.Context, projectID int64, name string) (core.SubProject, error) {
	var s core.SubProject
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, project_id, rank FROM sub_project
		 WHERE project_id = ? AND name = ?`, projectID, name).
		Scan(&s.ID, &s.Name, &s.ProjectID, &s.Rank)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SubProject{}, fmt.Errorf("sub-project %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return core.SubProject{}, fmt.Errorf("get sub-project by name: %w", err)
	}
	return s, nil
}

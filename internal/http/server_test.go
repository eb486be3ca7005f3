package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"fondo/internal/ledger"
	"fondo/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "fondo.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewServer(":0", repo, ledger.NewService(repo, nil))
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func seedServer(t *testing.T, srv *Server) {
	t.Helper()
	mustStatus(t, do(t, srv, http.MethodPost, "/api/persons", map[string]string{"name": "Alice"}), http.StatusCreated)
	mustStatus(t, do(t, srv, http.MethodPost, "/api/projects", map[string]string{"name": "Site1"}), http.StatusCreated)
	mustStatus(t, do(t, srv, http.MethodPost, "/api/subprojects", map[string]any{"project_id": 1, "name": "Materials"}), http.StatusCreated)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	mustStatus(t, do(t, srv, http.MethodGet, "/healthz", nil), http.StatusOK)
	mustStatus(t, do(t, srv, http.MethodGet, "/readyz", nil), http.StatusOK)
}

func TestTransferLifecycle(t *testing.T) {
	srv := newTestServer(t)
	seedServer(t, srv)

	transfer := func(kind, amount string) map[string]string {
		return map[string]string{
			"time":        "2026-03-01 12:00:00",
			"person":      "Alice",
			"project":     "Site1",
			"sub_project": "Materials",
			"kind":        kind,
			"amount":      amount,
		}
	}

	rec := do(t, srv, http.MethodPost, "/api/transfers", transfer("credit", "100.00"))
	mustStatus(t, rec, http.StatusCreated)
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	rec = do(t, srv, http.MethodGet, "/api/balance?person=Alice&project=Site1", nil)
	mustStatus(t, rec, http.StatusOK)
	var balances map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &balances); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balances["Materials"] != "100" {
		t.Fatalf("balance = %q, want 100", balances["Materials"])
	}

	rec = do(t, srv, http.MethodGet, "/api/transfers?person=Alice&kind=credit", nil)
	mustStatus(t, rec, http.StatusOK)
	var listed []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d transfers, want 1", len(listed))
	}

	update := transfer("credit", "80.00")
	rec = do(t, srv, http.MethodPost, "/api/transfers/update", map[string]any{
		"id": created.ID, "time": update["time"], "person": update["person"],
		"project": update["project"], "sub_project": update["sub_project"],
		"kind": update["kind"], "amount": update["amount"],
	})
	mustStatus(t, rec, http.StatusNoContent)

	mustStatus(t, do(t, srv, http.MethodPost, "/api/transfers/delete", map[string]int64{"id": created.ID}), http.StatusNoContent)
	mustStatus(t, do(t, srv, http.MethodPost, "/api/transfers/delete", map[string]int64{"id": created.ID}), http.StatusNotFound)
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	seedServer(t, srv)

	transfer := func(person, kind, amount string) map[string]string {
		return map[string]string{
			"person":      person,
			"project":     "Site1",
			"sub_project": "Materials",
			"kind":        kind,
			"amount":      amount,
		}
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown person", http.MethodPost, "/api/transfers", transfer("Ghost", "credit", "10"), http.StatusNotFound},
		{"invalid kind", http.MethodPost, "/api/transfers", transfer("Alice", "deposit", "10"), http.StatusUnprocessableEntity},
		{"invalid amount", http.MethodPost, "/api/transfers", transfer("Alice", "credit", "ten"), http.StatusUnprocessableEntity},
		{"negative amount", http.MethodPost, "/api/transfers", transfer("Alice", "credit", "-4"), http.StatusUnprocessableEntity},
		{"overdraft", http.MethodPost, "/api/transfers", transfer("Alice", "debit", "10"), http.StatusUnprocessableEntity},
		{"duplicate person", http.MethodPost, "/api/persons", map[string]string{"name": "Alice"}, http.StatusConflict},
		{"empty person name", http.MethodPost, "/api/persons", map[string]string{"name": "  "}, http.StatusUnprocessableEntity},
		{"overlong person name", http.MethodPost, "/api/persons", map[string]string{"name": strings.Repeat("x", 201)}, http.StatusUnprocessableEntity},
		{"delete referenced project", http.MethodPost, "/api/projects/delete", map[string]int64{"id": 1}, http.StatusConflict},
		{"rename missing project", http.MethodPost, "/api/projects/rename", map[string]any{"id": 99, "name": "X"}, http.StatusNotFound},
		{"malformed json", http.MethodPost, "/api/persons", nil, http.StatusBadRequest},
		{"balance missing params", http.MethodGet, "/api/balance?person=Alice", nil, http.StatusBadRequest},
		{"balance unknown project", http.MethodGet, "/api/balance?person=Alice&project=Ghost", nil, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/transfers", nil, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tc.name == "malformed json" {
				req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString("{not json"))
				rec = httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, req)
			} else {
				rec = do(t, srv, tc.method, tc.path, tc.body)
			}
			mustStatus(t, rec, tc.want)
		})
	}
}

func TestBalanceViolationBody(t *testing.T) {
	srv := newTestServer(t)
	seedServer(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/transfers", map[string]string{
		"person": "Alice", "project": "Site1", "sub_project": "Materials",
		"kind": "debit", "amount": "25.00",
	})
	mustStatus(t, rec, http.StatusUnprocessableEntity)

	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Person != "Alice" || body.Project != "Site1" || body.SubProject != "Materials" {
		t.Fatalf("violation fields = %+v", body)
	}
	if body.Balance != "-25" {
		t.Fatalf("balance = %q, want -25", body.Balance)
	}
}

func TestHierarchyReorder(t *testing.T) {
	srv := newTestServer(t)
	for _, name := range []string{"First", "Second"} {
		mustStatus(t, do(t, srv, http.MethodPost, "/api/projects", map[string]string{"name": name}), http.StatusCreated)
	}

	mustStatus(t, do(t, srv, http.MethodPost, "/api/projects/reorder", map[string]int64{"a": 1, "b": 2}), http.StatusNoContent)

	rec := do(t, srv, http.MethodGet, "/api/projects", nil)
	mustStatus(t, rec, http.StatusOK)
	var projects []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &projects); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "Second" || projects[1].Name != "First" {
		t.Fatalf("projects after reorder = %+v", projects)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedServer(t, srv)

	for _, f := range []struct{ kind, amount string }{
		{"credit", "100.00"},
		{"debit", "40.00"},
	} {
		rec := do(t, srv, http.MethodPost, "/api/transfers", map[string]string{
			"person": "Alice", "project": "Site1", "sub_project": "Materials",
			"kind": f.kind, "amount": f.amount,
		})
		mustStatus(t, rec, http.StatusCreated)
	}

	rec := do(t, srv, http.MethodGet, "/api/summary", nil)
	mustStatus(t, rec, http.StatusOK)

	var body summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(body.Columns) != 1 || body.Columns[0] != "Site1/Materials" {
		t.Fatalf("columns = %v", body.Columns)
	}
	if body.GrandTotal != "60" {
		t.Fatalf("grand total = %q, want 60", body.GrandTotal)
	}
	if got := fmt.Sprintf("%s/%s", body.Credits[0][0], body.Debits[0][0]); got != "100/40" {
		t.Fatalf("Alice cells = %s, want 100/40", got)
	}
}

package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"fondo/internal/core"
	"fondo/internal/ledger"
)

// transferRequest is the wire form of a transfer mutation. Time is
// accepted as RFC 3339 or "2006-01-02 15:04:05"; an empty time means
// now.
type transferRequest struct {
	ID         int64  `json:"id,omitempty"`
	Time       string `json:"time"`
	Person     string `json:"person"`
	Project    string `json:"project"`
	SubProject string `json:"sub_project"`
	Kind       string `json:"kind"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo"`
}

type transferResponse struct {
	ID         int64  `json:"id"`
	Time       string `json:"time"`
	Person     string `json:"person"`
	Project    string `json:"project"`
	SubProject string `json:"sub_project"`
	Kind       string `json:"kind"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

func parseTransferTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

func (r transferRequest) toInput() (ledger.TransferInput, error) {
	t, err := parseTransferTime(r.Time)
	if err != nil {
		return ledger.TransferInput{}, err
	}
	return ledger.TransferInput{
		Time:       t,
		Person:     r.Person,
		Project:    r.Project,
		SubProject: r.SubProject,
		Kind:       r.Kind,
		Amount:     r.Amount,
		Memo:       r.Memo,
	}, nil
}

func toTransferResponse(v core.TransferView) transferResponse {
	return transferResponse{
		ID:         v.ID,
		Time:       v.Time.UTC().Format("2006-01-02 15:04:05"),
		Person:     v.Person,
		Project:    v.Project,
		SubProject: v.SubProject,
		Kind:       string(v.Kind),
		Amount:     v.Amount.String(),
		Memo:       v.Memo,
	}
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := core.TransferFilter{
			Person:  r.URL.Query().Get("person"),
			Project: r.URL.Query().Get("project"),
			Kind:    core.Kind(r.URL.Query().Get("kind")),
		}
		transfers, err := s.ledger.ListTransfers(r.Context(), filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]transferResponse, len(transfers))
		for i, t := range transfers {
			out[i] = toTransferResponse(t)
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req transferRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.toInput()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		id, err := s.ledger.AddTransfer(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpdateTransfer(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.ledger.UpdateTransfer(r.Context(), req.ID, in); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req deleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.ledger.DeleteTransfer(r.Context(), req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	person := r.URL.Query().Get("person")
	project := r.URL.Query().Get("project")
	if person == "" || project == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "person and project query parameters are required"})
		return
	}

	balances, err := s.ledger.GetBalance(r.Context(), person, project)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make(map[string]string, len(balances))
	for name, balance := range balances {
		out[name] = balance.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	summary, err := s.ledger.BuildSummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

type summaryResponse struct {
	Persons      []string   `json:"persons"`
	Columns      []string   `json:"columns"`
	Credits      [][]string `json:"credits"`
	Debits       [][]string `json:"debits"`
	PersonCredit []string   `json:"person_credit"`
	PersonNet    []string   `json:"person_net"`
	ColumnTotals []string   `json:"column_totals"`
	GrandTotal   string     `json:"grand_total"`
}

func toSummaryResponse(s core.Summary) summaryResponse {
	out := summaryResponse{
		Persons:      s.Persons,
		Columns:      make([]string, len(s.Columns)),
		Credits:      make([][]string, len(s.Persons)),
		Debits:       make([][]string, len(s.Persons)),
		PersonCredit: make([]string, len(s.Persons)),
		PersonNet:    make([]string, len(s.Persons)),
		ColumnTotals: make([]string, len(s.Columns)),
		GrandTotal:   s.GrandTotal.String(),
	}
	for i, c := range s.Columns {
		out.Columns[i] = c.Project + "/" + c.SubProject
		out.ColumnTotals[i] = s.ColumnTotals[i].String()
	}
	for p := range s.Persons {
		out.Credits[p] = make([]string, len(s.Columns))
		out.Debits[p] = make([]string, len(s.Columns))
		for c := range s.Columns {
			out.Credits[p][c] = s.Credits[p][c].String()
			out.Debits[p][c] = s.Debits[p][c].String()
		}
		out.PersonCredit[p] = s.PersonCredit[p].String()
		out.PersonNet[p] = s.PersonNet[p].String()
	}
	return out
}

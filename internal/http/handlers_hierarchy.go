package http

import (
	"net/http"
	"strconv"
)

type renameRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type deleteRequest struct {
	ID int64 `json:"id"`
}

type reorderRequest struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

func (s *Server) handlePersons(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		persons, err := s.store.ListPersons(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, persons)
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		person, err := s.store.CreatePerson(r.Context(), req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, person)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRenamePerson(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.RenamePerson(r.Context(), req.ID, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "name": req.Name})
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req deleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.DeletePerson(r.Context(), req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.store.ListProjects(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		project, err := s.store.CreateProject(r.Context(), req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.RenameProject(r.Context(), req.ID, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "name": req.Name})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req deleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.DeleteProject(r.Context(), req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderProjects(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.ReorderProjects(r.Context(), req.A, req.B); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var projectID int64
		if v := r.URL.Query().Get("project_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid project_id"})
				return
			}
			projectID = id
		}
		subs, err := s.store.ListSubProjects(r.Context(), projectID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, subs)
	case http.MethodPost:
		var req struct {
			ProjectID int64  `json:"project_id"`
			Name      string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		sub, err := s.store.CreateSubProject(r.Context(), req.ProjectID, req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRenameSubProject(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.RenameSubProject(r.Context(), req.ID, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "name": req.Name})
}

func (s *Server) handleDeleteSubProject(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req deleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.DeleteSubProject(r.Context(), req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderSubProjects(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.ReorderSubProjects(r.Context(), req.A, req.B); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

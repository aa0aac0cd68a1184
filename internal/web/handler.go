// Package web serves a read-only view of open FCP proposals.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cexll/fcpbot/internal/store"
)

//go:embed templates/*
var templatesFS embed.FS

// Handler handles dashboard requests
type Handler struct {
	board     *Board
	templates *template.Template
}

// NewHandler creates a dashboard over st. wait is the FCP length used to
// compute end dates; zero means fcp.WaitPeriod.
func NewHandler(st store.Store, wait time.Duration) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"date": formatDate,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		board:     NewBoard(st, wait),
		templates: tmpl,
	}, nil
}

// RegisterRoutes registers dashboard routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleList).Methods("GET")
	r.HandleFunc("/api/fcps", h.handleListJSON).Methods("GET")
	r.HandleFunc("/api/fcps/{owner}/{repo}/{number:[0-9]+}", h.handleDetailJSON).Methods("GET")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.board.Open(r.Context(), "")
	if err != nil {
		log.Printf("[Web] list proposals: %v", err)
		http.Error(w, "Failed to load proposals", http.StatusInternalServerError)
		return
	}

	data := struct {
		Proposals []Proposal
	}{
		Proposals: proposals,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "fcp_list.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) handleListJSON(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.board.Open(r.Context(), "")
	if err != nil {
		log.Printf("[Web] list proposals: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load proposals")
		return
	}
	for i := range proposals {
		proposals[i].Concerns = nil
	}
	writeJSON(w, http.StatusOK, proposals)
}

func (h *Handler) handleDetailJSON(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	repo := vars["owner"] + "/" + vars["repo"]
	number, err := strconv.Atoi(vars["number"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue number")
		return
	}

	view, err := h.board.Lookup(r.Context(), repo, number)
	switch {
	case errors.Is(err, ErrNotTracked):
		writeError(w, http.StatusNotFound, "issue not tracked")
		return
	case errors.Is(err, ErrNoProposal):
		writeError(w, http.StatusNotFound, "no proposal on this issue")
		return
	case err != nil:
		log.Printf("[Web] %s#%d: %v", repo, number, err)
		writeError(w, http.StatusInternalServerError, "failed to load proposal")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Web] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

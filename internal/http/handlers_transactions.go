package http

import (
	"net/http"

	"finanzas/internal/analytics"
	"finanzas/internal/core"
	"finanzas/internal/log"
)

type transactionList struct {
	Transactions []core.Transaction `json:"transactions"`
	Count        int                `json:"count"`
	Totals       analytics.Summary  `json:"totals"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	params, err := ParseListParams(r.URL.Query(), s.opts.Location)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	txs := params.Apply(s.store.Snapshot())
	NewJSONResponse().Body(transactionList{
		Transactions: txs,
		Count:        len(txs),
		Totals:       analytics.Totals(txs),
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r, maxFormBytes)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}

	t, err := core.ValidateIn(candidateFrom(p), s.opts.Location)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	id, err := s.store.Create(r.Context(), t)
	if err != nil {
		s.writeError(w, r, log.OpCreate, err)
		return
	}
	t.ID = id

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+id).
		Body(t).
		Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, ok := s.store.FindByID(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, log.OpList, core.ErrNotFound)
		return
	}
	NewJSONResponse().Body(t).Write(w)
}

// handleUpdateTransaction merges the supplied fields into the current record.
// The merged record must pass the same checks as a new one.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, ok := s.store.FindByID(id)
	if !ok {
		s.writeError(w, r, log.OpUpdate, core.ErrNotFound)
		return
	}

	p := NewRequestBodyParser(r, maxFormBytes)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	patch, err := patchFrom(p, s.opts.Location)
	if err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	merged := patch.Apply(current)
	if err := merged.Validate(); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	if err := s.store.Update(r.Context(), id, patch); err != nil {
		s.writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(merged).Write(w)
}

// handleDeleteTransaction succeeds for ids that are already gone.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

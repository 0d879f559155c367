package http

import (
	"net/http"

	"finanzas/internal/analytics"
	"finanzas/internal/log"
)

// handleInsights sends the expenses of the requested month, or of the whole
// collection, to the advisor.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		s.writeError(w, r, log.OpInsights, errAdvisorUnavailable)
		return
	}
	month, err := parseMonthParam(r.URL.Query())
	if err != nil {
		s.writeError(w, r, log.OpInsights, err)
		return
	}

	txs := s.store.Snapshot()
	if !month.IsZero() {
		txs = analytics.InMonth(txs, month, s.opts.Location)
	}
	text, err := s.advisor.Insights(r.Context(), txs)
	if err != nil {
		s.writeError(w, r, log.OpInsights, err)
		return
	}
	NewJSONResponse().Body(map[string]string{"insights": text}).Write(w)
}

// handleCategorize suggests a type and category for a description.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		s.writeError(w, r, log.OpSuggest, errAdvisorUnavailable)
		return
	}
	p := NewRequestBodyParser(r, maxFormBytes)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, log.OpSuggest, err)
		return
	}

	sug, err := s.advisor.Suggest(r.Context(), p.Get("description"))
	if err != nil {
		s.writeError(w, r, log.OpSuggest, err)
		return
	}
	NewJSONResponse().Body(sug).Write(w)
}

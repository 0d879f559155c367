package http

import (
	"net/http"

	"finanzas/internal/analytics"
	"finanzas/internal/core"
	"finanzas/internal/log"
)

type summaryResponse struct {
	Month      string                    `json:"month,omitempty"`
	Label      string                    `json:"label,omitempty"`
	Totals     analytics.Summary         `json:"totals"`
	ByCategory []analytics.CategoryTotal `json:"by_category"`
	ByDay      []analytics.DailyTotal    `json:"by_day"`
}

// handleSummary aggregates one month, or the whole collection without a
// month parameter.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParam(r.URL.Query())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}

	txs := s.store.Snapshot()
	resp := summaryResponse{}
	if !month.IsZero() {
		txs = analytics.InMonth(txs, month, s.opts.Location)
		resp.Month, resp.Label = month.String(), month.Label()
	}
	resp.Totals = analytics.Totals(txs)
	resp.ByCategory = analytics.ByCategory(txs)
	resp.ByDay = analytics.ByDayIn(txs, s.opts.Location)

	NewJSONResponse().Body(resp).Write(w)
}

type monthEntry struct {
	Month string `json:"month"`
	Label string `json:"label"`
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	months := analytics.AvailableMonths(s.store.Snapshot(), s.opts.Now(), s.opts.Location)
	out := make([]monthEntry, len(months))
	for i, m := range months {
		out[i] = monthEntry{Month: m.String(), Label: m.Label()}
	}
	NewJSONResponse().Body(map[string]any{"months": out}).Write(w)
}

func handleCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string][]string{
		string(core.Expense): core.Categories(core.Expense),
		string(core.Income):  core.Categories(core.Income),
	}).Write(w)
}

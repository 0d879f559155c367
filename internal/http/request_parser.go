// Package http provides the JSON API over the transaction store.
//
// This file implements parsing of request bodies and query strings into
// domain values.

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finanzas/internal/analytics"
	"finanzas/internal/core"
	"finanzas/internal/store"
)

// maxFormBytes caps transaction bodies; uploads have their own limit.
const maxFormBytes = 64 << 10

// RequestBodyParser reads a JSON object or a form-encoded body once and
// exposes its values as trimmed strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBytes of the request body.
func NewRequestBodyParser(r *http.Request, maxBytes int64) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if p.err == nil && int64(len(p.body)) > maxBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse decodes the body as JSON when it looks like an object and as a form
// otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = newBadRequest("El cuerpo de la petición no es JSON válido")
			return p.err
		}
		return nil
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		p.err = newBadRequest("Formato de petición no válido")
		return p.err
	}
	p.formData = values
	return nil
}

// Get returns a value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// Has reports whether key was sent at all, even empty.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Object returns a nested JSON object as strings, for bodies like a mapping.
func (p *RequestBodyParser) Object(key string) (map[string]string, bool) {
	raw, ok := p.jsonData[key].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = strings.TrimSpace(stringValue(v))
	}
	return out, true
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprint(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newline.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' {
			return -1
		}
		if r == 127 {
			return -1
		}
		return r
	}, s)
}

// candidateFrom reads the transaction fields of a create request.
func candidateFrom(p *RequestBodyParser) core.Candidate {
	return core.Candidate{
		Kind:        p.Get("type"),
		Amount:      p.Get("amount"),
		OccurredAt:  p.Get("date"),
		Category:    p.Get("category"),
		Description: p.Get("description"),
		Comments:    p.Get("comments"),
	}
}

// patchFrom reads the fields present in an update request. Each supplied
// field is checked on its own; the merged record is checked by the caller.
func patchFrom(p *RequestBodyParser, loc *time.Location) (store.Patch, error) {
	var patch store.Patch

	if p.Has("type") {
		kind := core.Kind(p.Get("type"))
		if !kind.IsValid() {
			return patch, &core.ValidationError{Field: "type", Err: core.ErrInvalidKind}
		}
		patch.Kind = &kind
	}
	if p.Has("amount") {
		amount, err := core.ParseAmount(p.Get("amount"))
		if err != nil || !amount.IsPositive() {
			return patch, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}
		}
		patch.Amount = &amount
	}
	if p.Has("date") {
		at, err := core.ParseDate(p.Get("date"), loc)
		if err != nil {
			return patch, &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
		}
		patch.OccurredAt = &at
	}
	if p.Has("category") {
		category := p.Get("category")
		patch.Category = &category
	}
	if p.Has("description") {
		desc := p.Get("description")
		if desc == "" {
			return patch, &core.ValidationError{Field: "description", Err: core.ErrMissingDescription}
		}
		patch.Description = &desc
	}
	if p.Has("comments") {
		comments := p.Get("comments")
		patch.Comments = &comments
	}
	return patch, nil
}

// ListParams is a parsed transactions query.
type ListParams struct {
	Filter analytics.Filter
	Sort   analytics.SortKey
	Desc   bool
}

// Apply filters and sorts txs.
func (p ListParams) Apply(txs []core.Transaction) []core.Transaction {
	return analytics.SortBy(p.Filter.Apply(txs), p.Sort, p.Desc)
}

// ParseListParams reads type, category, q, month, sort and dir. Sorting
// defaults to newest first.
func ParseListParams(query url.Values, loc *time.Location) (ListParams, error) {
	params := ListParams{
		Filter: analytics.Filter{
			Category: strings.TrimSpace(query.Get("category")),
			Search:   sanitizeInput(query.Get("q")),
			Location: loc,
		},
		Sort: analytics.ParseSortKey(query.Get("sort")),
		Desc: !strings.EqualFold(strings.TrimSpace(query.Get("dir")), "asc"),
	}

	if v := strings.TrimSpace(query.Get("type")); v != "" {
		kind := core.Kind(strings.ToLower(v))
		if !kind.IsValid() {
			return params, newBadRequest("El tipo debe ser income o expense")
		}
		params.Filter.Kind = kind
	}

	month, err := parseMonthParam(query)
	if err != nil {
		return params, err
	}
	params.Filter.Month = month
	return params, nil
}

// parseMonthParam reads month=YYYY-MM. An absent month is the zero Month.
func parseMonthParam(query url.Values) (analytics.Month, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return analytics.Month{}, nil
	}
	m, err := analytics.ParseMonth(v)
	if err != nil {
		return analytics.Month{}, newBadRequest("El mes debe tener el formato AAAA-MM")
	}
	return m, nil
}

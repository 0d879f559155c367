package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"finanzas/internal/importer"
	"finanzas/internal/log"
	"finanzas/internal/spreadsheet"

	"github.com/google/uuid"
)

// multipartOverhead leaves room for the form boundaries around the file.
const multipartOverhead = 64 << 10

const previewRows = 5

type importSession struct {
	ID      string              `json:"id"`
	State   string              `json:"state"`
	Policy  string              `json:"policy"`
	Headers []string            `json:"headers"`
	Rows    int                 `json:"rows"`
	Fields  []string            `json:"fields"`
	Mapping map[string]string   `json:"mapping"`
	Missing []string            `json:"missing"`
	Preview []map[string]string `json:"preview"`
}

func sessionView(id string, policy importer.CategoryPolicy, p *importer.Pipeline) importSession {
	mapping := make(map[string]string)
	for f, h := range p.Mapping() {
		mapping[string(f)] = h
	}
	fields := importer.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	missing := []string{}
	for _, f := range p.Missing() {
		missing = append(missing, string(f))
	}
	return importSession{
		ID:      id,
		State:   p.State().String(),
		Policy:  policy.String(),
		Headers: p.Headers(),
		Rows:    p.RowCount(),
		Fields:  names,
		Mapping: mapping,
		Missing: missing,
		Preview: p.Preview(previewRows),
	}
}

type session struct {
	pipeline *importer.Pipeline
	policy   importer.CategoryPolicy
}

func parsePolicy(s string, fallback importer.CategoryPolicy) importer.CategoryPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lenient":
		return importer.LenientCategories
	case "strict":
		return importer.StrictCategories
	default:
		return fallback
	}
}

// handleStartImport reads the uploaded file into a new session and suggests
// a mapping from its headers. Nothing is written yet.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.ImportMaxBytes+multipartOverhead)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = errBodyTooLarge
		} else {
			err = newBadRequest("Falta el archivo a importar")
		}
		s.writeError(w, r, log.OpImport, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.opts.ImportMaxBytes+1))
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}
	if int64(len(data)) > s.opts.ImportMaxBytes {
		s.writeError(w, r, log.OpImport, errBodyTooLarge)
		return
	}

	policy := parsePolicy(r.FormValue("policy"), s.opts.ImportPolicy)
	p := importer.New(s.store, importer.Options{Policy: policy, Location: s.opts.Location})
	if err := p.Load(bytes.NewReader(data)); err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}

	id := uuid.NewString()
	s.imports.Set(id, &session{pipeline: p, policy: policy})
	log.FromContext(r.Context()).InfoContext(r.Context(), "Import session started",
		log.FieldSession, id,
		"rows", p.RowCount(),
		"headers", len(p.Headers()))

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/imports/"+id).
		Body(sessionView(id, policy, p)).
		Write(w)
}

func (s *Server) session(id string) (*session, error) {
	sess, ok := s.imports.Get(id)
	if !ok {
		return nil, errSessionNotFound
	}
	return sess, nil
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.session(id)
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}
	NewJSONResponse().Body(sessionView(id, sess.policy, sess.pipeline)).Write(w)
}

// handleSetMapping replaces the mapping with {"mapping": {"field": "Header"}}.
func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.session(id)
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}

	p := NewRequestBodyParser(r, maxFormBytes)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}
	raw, ok := p.Object("mapping")
	if !ok {
		s.writeError(w, r, log.OpImport, newBadRequest("Falta el objeto mapping"))
		return
	}

	mapping := make(importer.Mapping, len(raw))
	for name, header := range raw {
		field, err := importer.ParseField(name)
		if err != nil {
			s.writeError(w, r, log.OpImport, err)
			return
		}
		mapping[field] = header
	}
	if err := sess.pipeline.SetMapping(mapping); err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}
	NewJSONResponse().Body(sessionView(id, sess.policy, sess.pipeline)).Write(w)
}

// handleRunImport writes the accepted rows. The session survives a failed
// import so the mapping can be fixed and the import retried.
func (s *Server) handleRunImport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.session(id)
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}

	result, err := sess.pipeline.Import(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}
	s.imports.Delete(id)

	NewJSONResponse().Status(http.StatusCreated).Body(result).Write(w)
}

// handleCancelImport discards the session. Unknown ids succeed.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if sess, ok := s.imports.Get(id); ok {
		sess.pipeline.Cancel()
		s.imports.Delete(id)
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleExport writes the filtered collection as an xlsx workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	params, err := ParseListParams(r.URL.Query(), s.opts.Location)
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	txs := params.Apply(s.store.Snapshot())

	var buf bytes.Buffer
	if err := spreadsheet.Export(&buf, txs, s.opts.Location); err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Export generated", log.FieldCount, len(txs))
	w.Header().Set("Content-Type", spreadsheet.MIMEType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+spreadsheet.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

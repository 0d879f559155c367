// Package importer turns an uploaded spreadsheet into transactions.
//
// A Pipeline waits for a file, then for a column mapping, and writes every
// accepted row in a single bulk create. Nothing is written before Import and
// a cancelled pipeline leaves no trace.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"finanzas/internal/core"
	"finanzas/internal/spreadsheet"
)

type State int

const (
	StateAwaitingFile State = iota
	StateMapping
)

func (s State) String() string {
	switch s {
	case StateAwaitingFile:
		return "awaiting_file"
	case StateMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyFile      = errors.New("file has no rows")
	ErrUnreadableFile = errors.New("file could not be read")
	ErrNoFile         = errors.New("no file loaded")
	ErrUnknownHeader  = errors.New("unknown column header")
	ErrUnknownField   = errors.New("unknown field")
	ErrImportFailed   = errors.New("no valid rows to import")
)

// MissingMappingError lists the required fields that have no column.
type MissingMappingError struct {
	Fields []Field
}

func (e *MissingMappingError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return "missing mapping for " + strings.Join(names, ", ")
}

// BulkCreator receives the accepted rows. The Store implements it.
type BulkCreator interface {
	BulkCreate(ctx context.Context, txs []core.Transaction) ([]string, error)
}

type Result struct {
	Accepted int      `json:"accepted"`
	Skipped  int      `json:"skipped"`
	IDs      []string `json:"ids,omitempty"`
}

type Pipeline struct {
	target BulkCreator
	opts   Options

	mu      sync.Mutex
	state   State
	table   *spreadsheet.Table
	mapping Mapping
}

func New(target BulkCreator, opts Options) *Pipeline {
	return &Pipeline{target: target, opts: opts, mapping: Mapping{}}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Load parses r and moves to StateMapping with a suggested mapping. On
// failure the pipeline is back to StateAwaitingFile.
func (p *Pipeline) Load(r io.Reader) error {
	table, err := spreadsheet.Read(r)
	switch {
	case errors.Is(err, spreadsheet.ErrEmpty):
		p.Cancel()
		return ErrEmptyFile
	case err != nil:
		p.Cancel()
		return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return p.LoadTable(table)
}

// LoadTable starts mapping an already parsed table.
func (p *Pipeline) LoadTable(t *spreadsheet.Table) error {
	if t == nil || (len(t.Headers) == 0 && len(t.Rows) == 0) {
		p.Cancel()
		return ErrEmptyFile
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = t
	p.mapping = SuggestMapping(t.Headers)
	p.state = StateMapping
	return nil
}

// Headers returns the header labels of the loaded file.
func (p *Pipeline) Headers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table == nil {
		return nil
	}
	return slices.Clone(p.table.Headers)
}

// RowCount returns the number of data rows of the loaded file.
func (p *Pipeline) RowCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table == nil {
		return 0
	}
	return len(p.table.Rows)
}

// Preview returns up to n data rows keyed by header.
func (p *Pipeline) Preview(n int) []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table == nil {
		return nil
	}
	n = min(n, len(p.table.Rows))
	out := make([]map[string]string, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, p.table.Record(i))
	}
	return out
}

// Map assigns header to field. An empty header clears the field.
func (p *Pipeline) Map(field Field, header string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateMapping {
		return ErrNoFile
	}
	if !slices.Contains(Fields(), field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if header == "" {
		delete(p.mapping, field)
		return nil
	}
	if !slices.Contains(p.table.Headers, header) {
		return fmt.Errorf("%w: %q", ErrUnknownHeader, header)
	}
	p.mapping[field] = header
	return nil
}

// SetMapping replaces the whole mapping after checking every entry.
func (p *Pipeline) SetMapping(m Mapping) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateMapping {
		return ErrNoFile
	}
	next := make(Mapping, len(m))
	for f, h := range m {
		if !slices.Contains(Fields(), f) {
			return fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if h == "" {
			continue
		}
		if !slices.Contains(p.table.Headers, h) {
			return fmt.Errorf("%w: %q", ErrUnknownHeader, h)
		}
		next[f] = h
	}
	p.mapping = next
	return nil
}

func (p *Pipeline) Mapping() Mapping {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapping.Clone()
}

// Missing returns the required fields still unmapped.
func (p *Pipeline) Missing() []Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapping.Missing()
}

// Import transforms every row and writes the accepted ones in one bulk
// create. The pipeline resets only when the write succeeds.
func (p *Pipeline) Import(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if p.state != StateMapping {
		p.mu.Unlock()
		return Result{}, ErrNoFile
	}
	if missing := p.mapping.Missing(); len(missing) > 0 {
		p.mu.Unlock()
		return Result{}, &MissingMappingError{Fields: missing}
	}
	table, mapping := p.table, p.mapping.Clone()
	p.mu.Unlock()

	accepted, skipped := Transform(table, mapping, p.opts)
	if len(accepted) == 0 {
		slog.WarnContext(ctx, "Import produced no valid rows", "rows", len(table.Rows), "skipped", skipped)
		return Result{Skipped: skipped}, ErrImportFailed
	}

	ids, err := p.target.BulkCreate(ctx, accepted)
	if err != nil {
		return Result{}, fmt.Errorf("bulk create %d transactions: %w", len(accepted), err)
	}

	p.mu.Lock()
	// A concurrent Load or Cancel may have replaced the table meanwhile.
	if p.table == table {
		p.reset()
	}
	p.mu.Unlock()

	slog.InfoContext(ctx, "Import completed",
		"accepted", len(accepted),
		"skipped", skipped,
		"policy", p.opts.Policy.String())
	return Result{Accepted: len(accepted), Skipped: skipped, IDs: ids}, nil
}

// Cancel discards the loaded file and mapping.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

func (p *Pipeline) reset() {
	p.state = StateAwaitingFile
	p.table = nil
	p.mapping = Mapping{}
}

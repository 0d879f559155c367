package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, the way the records were always stored.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

type (
	// Kind is the direction of a transaction. Amounts are never signed.
	Kind string

	Transaction struct {
		ID          string          `json:"id,omitempty"`
		Kind        Kind            `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		OccurredAt  time.Time       `json:"date"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Comments    string          `json:"comments,omitempty"`
	}

	// Candidate is unvalidated input coming from a form or an import row.
	Candidate struct {
		Kind        string
		Amount      string
		OccurredAt  string
		Category    string
		Description string
		Comments    string
	}
)

var (
	ErrInvalidKind        = errors.New("invalid transaction type")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrMissingDescription = errors.New("missing description")

	ErrNotFound = errors.New("transaction not found")
)

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (k Kind) IsValid() bool {
	return k == Income || k == Expense
}

// Label returns the user-facing name used in exported files.
func (k Kind) Label() string {
	if k == Income {
		return "Ingreso"
	}
	return "Gasto"
}

// NormalizeKind maps free text to a Kind. Only "ingreso" and "income" mean
// income; everything else, including empty text, is treated as an expense.
func NormalizeKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ingreso", "income":
		return Income
	default:
		return Expense
	}
}

// Validate turns a candidate into a transaction. Rules run in a fixed order
// and the first failure is returned so the message always names one cause.
func Validate(c Candidate) (Transaction, error) {
	return ValidateIn(c, time.Local)
}

// ValidateIn is Validate with an explicit location for dates without a zone.
func ValidateIn(c Candidate, loc *time.Location) (Transaction, error) {
	kind := Kind(strings.TrimSpace(c.Kind))
	if !kind.IsValid() {
		return Transaction{}, &ValidationError{Field: "type", Err: ErrInvalidKind}
	}

	amount, err := ParseAmount(c.Amount)
	if err != nil || !amount.IsPositive() {
		return Transaction{}, &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}

	at, err := ParseDate(c.OccurredAt, loc)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "date", Err: ErrInvalidDate}
	}

	category := strings.TrimSpace(c.Category)
	if !CategoryAllowed(kind, category) {
		return Transaction{}, &ValidationError{Field: "category", Err: ErrInvalidCategory}
	}

	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		return Transaction{}, &ValidationError{Field: "description", Err: ErrMissingDescription}
	}

	return Transaction{
		Kind:        kind,
		Amount:      amount,
		OccurredAt:  at,
		Category:    category,
		Description: desc,
		Comments:    strings.TrimSpace(c.Comments),
	}, nil
}

// Validate re-checks an already typed record against the same rules.
func (t Transaction) Validate() error {
	if !t.Kind.IsValid() {
		return &ValidationError{Field: "type", Err: ErrInvalidKind}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	if t.OccurredAt.IsZero() {
		return &ValidationError{Field: "date", Err: ErrInvalidDate}
	}
	if !CategoryAllowed(t.Kind, t.Category) {
		return &ValidationError{Field: "category", Err: ErrInvalidCategory}
	}
	if strings.TrimSpace(t.Description) == "" {
		return &ValidationError{Field: "description", Err: ErrMissingDescription}
	}
	return nil
}

func (t Transaction) IsIncome() bool {
	return t.Kind == Income
}

func (t Transaction) IsExpense() bool {
	return t.Kind == Expense
}

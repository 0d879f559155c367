// Package advisor wraps the AI advisory gateway: spending insights over a set
// of expenses and category suggestions for a description.
package advisor

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the remote model. Both calls are plain request/response.
type Gateway interface {
	// SpendingInsights returns commentary on a JSON array of expenses.
	SpendingInsights(ctx context.Context, transactionsJSON string) (string, error)
	// Categorize returns the best-guess category label for description.
	Categorize(ctx context.Context, description string) (string, error)
}

// NoExpensesMessage is returned instead of calling the gateway when there is
// nothing to analyze.
const NoExpensesMessage = "No hay datos de gastos disponibles para analizar."

var (
	ErrUnknownCategory  = errors.New("suggested category is not a known category")
	ErrEmptyDescription = errors.New("description is required to categorize")
	ErrEmptyResponse    = errors.New("empty response from model")
)

// GatewayError wraps any failure of a gateway call. Retrying is left to the
// user.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("advisor %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

package expressions

import "context"

// Engine evaluates expressions against board data.
// Two implementations: GoJQ (graph queries and transforms) and Expr
// (boolean predicates and scalar logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

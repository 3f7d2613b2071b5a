package job

import "context"

// Definition is a typed executor for one job kind.
// T is the payload type and R the result type; both must be
// JSON-serializable.
type Definition[T, R any] struct {
	// Kind is the unique name jobs are submitted under.
	Kind string

	// Handler performs the work and may report progress.
	Handler func(ctx context.Context, payload T, report ReportFunc) (R, error)
}

// NewDefinition creates a typed executor definition.
func NewDefinition[T, R any](kind string, handler func(ctx context.Context, payload T, report ReportFunc) (R, error)) *Definition[T, R] {
	return &Definition[T, R]{
		Kind:    kind,
		Handler: handler,
	}
}

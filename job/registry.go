package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased executor. It receives the raw payload and a
// progress reporter and returns the raw result.
type HandlerFunc func(ctx context.Context, payload []byte, report ReportFunc) ([]byte, error)

// Registry maps job kinds to executors. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register installs fn as the executor for kind, replacing any previous one.
func (r *Registry) Register(kind string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = fn
}

// RegisterDefinition registers a typed definition. The handler is wrapped
// in a closure that decodes the payload into T and encodes R.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T, R any](r *Registry, def *Definition[T, R]) {
	r.Register(def.Kind, func(ctx context.Context, payload []byte, report ReportFunc) ([]byte, error) {
		var in T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &in); err != nil {
				return nil, Permanent(fmt.Errorf("unmarshal payload for job %q: %w", def.Kind, err))
			}
		}
		out, err := def.Handler(ctx, in, report)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, Permanent(fmt.Errorf("marshal result for job %q: %w", def.Kind, err))
		}
		return data, nil
	})
}

// Get returns the executor for kind.
func (r *Registry) Get(kind string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

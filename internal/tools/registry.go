// Package tools implements the local functions the model may call during a
// session and the registry that dispatches calls to them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// ErrUnsupported is returned by [Registry.Invoke] for unknown tool names.
var ErrUnsupported = errors.New("tools: unsupported tool")

// Handler executes one tool call. A nil response with a nil error is reported
// to the model as {"result": "ok"}.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool pairs a declaration offered to the model with its local handler.
type Tool struct {
	Declaration *genai.FunctionDeclaration
	Handler     Handler
}

// Registry maps tool names to handlers. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns a registry containing tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	if t.Declaration == nil || t.Declaration.Name == "" {
		return errors.New("tools: declaration name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: %s: handler is required", t.Declaration.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Declaration.Name
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tools: %s: already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Declarations returns the declarations of all registered tools in
// registration order.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration)
	}
	return decls
}

// Invoke runs the named tool and always returns a response suitable for the
// model:
//
//   - unknown name: {"result": "unsupported"} and [ErrUnsupported]
//   - handler error or panic: {"error": message} and the error
//   - success: the handler's response, or {"result": "ok"} when it is nil
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (resp map[string]any, err error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return map[string]any{"result": "unsupported"}, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tools: %s: panic: %v", name, p)
			resp = map[string]any{"error": err.Error()}
		}
	}()

	resp, err = t.Handler(ctx, args)
	if err != nil {
		return map[string]any{"error": err.Error()}, err
	}
	if resp == nil {
		resp = map[string]any{"result": "ok"}
	}
	return resp, nil
}

// Package tools maps tool names to handlers and runs them. Dispatch is the
// single place where errors become Failure results: nothing a handler
// returns or panics with reaches the transport as an error.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
)

// Handler runs one tool invocation. Required arguments are already known to
// be present.
type Handler func(ctx context.Context, args Args) (any, error)

// Param documents one argument in the tool's input schema.
type Param struct {
	Name        string
	Type        string // JSON schema type: string, integer, boolean, object
	Description string
	Default     any
}

// Tool is an immutable registry entry.
type Tool struct {
	Name        string
	Description string
	Required    []string
	Params      []Param
	Handler     Handler
}

// InputSchema renders the tool's arguments as a JSON schema object.
func (t Tool) InputSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	for _, p := range t.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
	}
	required := t.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Invocation is one incoming tool call.
type Invocation struct {
	Tool      string
	Arguments map[string]any
}

// Failure is the error half of a Result.
type Failure struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"error"`
}

// Result is either a successful payload or a Failure, never both.
type Result struct {
	Payload any
	Failure *Failure
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Failure == nil }

func success(payload any) Result { return Result{Payload: payload} }

func failure(kind errs.Kind, msg string) Result {
	return Result{Failure: &Failure{Kind: kind, Message: msg}}
}

// Registry holds the tools exposed by one server.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
}

// NewRegistry returns an empty registry. timeout bounds every invocation;
// zero disables the bound.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{tools: make(map[string]Tool), timeout: timeout}
}

// Register adds t. Registering a name twice is an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs inv and always returns a Result.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation) Result {
	id := uuid.NewString()
	logger := log.With().Str("tool", inv.Tool).Str("invocation", id).Logger()

	t, ok := r.Lookup(inv.Tool)
	if !ok {
		logger.Warn().Msg("unknown tool")
		return failure(errs.UnknownTool, fmt.Sprintf("Unknown tool: %s", inv.Tool))
	}

	args := Args(inv.Arguments)
	if args == nil {
		args = Args{}
	}
	if missing := args.missing(t.Required); len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("missing required arguments")
		return failure(errs.Validation, fmt.Sprintf("missing required argument(s): %s", strings.Join(missing, ", ")))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	payload, err := invoke(ctx, t.Handler, args)
	elapsed := time.Since(start)
	if err != nil {
		kind := errs.KindOf(err)
		// drivers report a cancelled statement with their own error text
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = errs.Timeout
		}
		msg := err.Error()
		if kind == errs.Timeout {
			msg = fmt.Sprintf("%s timed out after %s", t.Name, r.timeout)
		}
		logger.Warn().Err(err).Str("kind", string(kind)).Dur("took", elapsed).Msg("tool failed")
		return failure(kind, msg)
	}

	logger.Debug().Dur("took", elapsed).Msg("tool succeeded")
	return success(payload)
}

// invoke calls h and turns a panic into an error.
func invoke(ctx context.Context, h Handler, args Args) (payload any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("tool handler panicked")
			payload, err = nil, errs.New(errs.Backend, "internal error: %v", rec)
		}
	}()
	return h(ctx, args)
}

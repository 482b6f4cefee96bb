// Package agent maps scheduled agent names to maintenance routines over
// the memory layer.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler executes one agent invocation and returns human-readable output.
type Handler func(ctx context.Context, prompt string) (string, error)

// Agent is a named maintenance routine that the scheduler can invoke.
type Agent struct {
	Name        string
	Description string
	Handler     Handler
}

// ErrUnknownAgent is returned when a task references an unregistered name.
var ErrUnknownAgent = fmt.Errorf("unknown agent")

// Registry holds the runnable agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds an agent, replacing any previous one with the same name.
func (r *Registry) Register(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[strings.ToLower(a.Name)] = a
}

// Run dispatches to the named agent.
func (r *Registry) Run(ctx context.Context, name, prompt string) (string, error) {
	r.mu.RLock()
	a, ok := r.agents[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return a.Handler(ctx, prompt)
}

// Known reports whether an agent name is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[strings.ToLower(name)]
	return ok
}

// List returns the registered agents sorted by name.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

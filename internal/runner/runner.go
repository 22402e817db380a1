// Package runner defines the runner capability contract and the adapter
// registry. A runner performs the actual work for one adapter type and
// returns a pure result; it never contacts the reporting client itself,
// keeping reporting centralized in the claim loop.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brad-usredoxlabs/computable-lab/internal/task"
)

// Runner executes one claimed task and produces its result. A returned
// error is interpreted by the claim loop as a runner-level failure.
type Runner interface {
	Run(ctx context.Context, t *task.Task) (*task.Result, error)
}

// ErrNotFound means no runner is registered for an adapter id.
var ErrNotFound = errors.New("no runner registered for adapter")

// Registry maps adapter ids to runner instances. The set is fixed at
// startup; lookups are pure and case-insensitive.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry creates an empty registry. The executor entry points
// register the adapters they are configured for.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds a runner under the given adapter id.
func (r *Registry) Register(adapterID string, rn Runner) {
	r.runners[normalize(adapterID)] = rn
}

// Get returns the runner for an adapter id.
func (r *Registry) Get(adapterID string) (Runner, error) {
	rn, ok := r.runners[normalize(adapterID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, adapterID)
	}
	return rn, nil
}

// Adapters lists the registered adapter ids, sorted.
func (r *Registry) Adapters() []string {
	ids := make([]string, 0, len(r.runners))
	for id := range r.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalize(adapterID string) string {
	return strings.ToLower(strings.TrimSpace(adapterID))
}

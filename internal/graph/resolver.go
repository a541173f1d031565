// Package graph orders agent specs so that every agent runs after the
// agents it depends on.
package graph

import (
	"fmt"

	"github.com/nexous-ai/nexous/internal/config"
	"github.com/nexous-ai/nexous/internal/trace"
)

// CycleError reports a dependency cycle, naming one participant.
type CycleError struct {
	AgentID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving agent %q", e.AgentID)
}

// ErrorKind tags the cycle for the trace error list.
func (e *CycleError) ErrorKind() string { return trace.KindDependencyCycle }

// MissingDependencyError reports a dependency naming an agent that is not
// part of the project.
type MissingDependencyError struct {
	AgentID    string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("agent %q depends on unknown agent %q", e.AgentID, e.Dependency)
}

// ErrorKind maps a dangling reference to a schema-level failure.
func (e *MissingDependencyError) ErrorKind() string { return trace.KindSchemaValidation }

// DFS colouring.
const (
	white = iota // unvisited
	grey         // on the current path
	black        // finished
)

// Resolve returns a permutation of agents in which every agent appears
// after all agents named in its dependencies. Within the freedom allowed
// by the partial order the original input order is preserved: agents are
// visited in input order, dependencies in declared order, and each agent
// is emitted immediately after its dependencies.
func Resolve(agents []config.AgentSpec) ([]config.AgentSpec, error) {
	byID := make(map[string]*config.AgentSpec, len(agents))
	for i := range agents {
		byID[agents[i].ID] = &agents[i]
	}

	colour := make(map[string]int, len(agents))
	order := make([]config.AgentSpec, 0, len(agents))

	var visit func(id string) error
	visit = func(id string) error {
		switch colour[id] {
		case black:
			return nil
		case grey:
			return &CycleError{AgentID: id}
		}
		colour[id] = grey
		spec := byID[id]
		for _, dep := range spec.Dependencies {
			target, ok := byID[dep]
			if !ok {
				return &MissingDependencyError{AgentID: id, Dependency: dep}
			}
			if err := visit(target.ID); err != nil {
				return err
			}
		}
		colour[id] = black
		order = append(order, *spec)
		return nil
	}

	for i := range agents {
		if err := visit(agents[i].ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

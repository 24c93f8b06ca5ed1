// Package templates holds the per-method catalogs of routing step definitions.
package templates

import (
	"sort"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/pkg/errors"
)

// Catalog maps a production method to its ordered step templates.
type Catalog map[models.ProductionMethod][]models.PipelineStepTemplate

// Merge returns a new catalog holding base with every method of overlay replacing base's entry.
func Merge(base, overlay Catalog) Catalog {
	merged := make(Catalog, len(base)+len(overlay))
	for method, steps := range base {
		merged[method] = steps
	}
	for method, steps := range overlay {
		merged[method] = steps
	}
	return merged
}

// Registry is a validated, read-only set of templates.
type Registry struct {
	templates map[models.ProductionMethod][]models.PipelineStepTemplate
}

// NewRegistry validates every method of the catalog and freezes it.
func NewRegistry(catalog Catalog) (*Registry, error) {
	r := &Registry{templates: make(map[models.ProductionMethod][]models.PipelineStepTemplate, len(catalog))}
	for method, steps := range catalog {
		normalized, err := validate(method, steps)
		if err != nil {
			return nil, err
		}
		r.templates[method] = normalized
	}
	return r, nil
}

// Get returns a copy of the ordered templates for method.
func (r *Registry) Get(method models.ProductionMethod) ([]models.PipelineStepTemplate, error) {
	steps, ok := r.templates[method]
	if !ok {
		return nil, errors.Wrapf(models.ErrUnknownMethod, "method %q", method)
	}
	out := make([]models.PipelineStepTemplate, len(steps))
	copy(out, steps)
	return out, nil
}

// Methods lists the registered methods in lexical order.
func (r *Registry) Methods() []models.ProductionMethod {
	methods := make([]models.ProductionMethod, 0, len(r.templates))
	for m := range r.templates {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

func validate(method models.ProductionMethod, steps []models.PipelineStepTemplate) ([]models.PipelineStepTemplate, error) {
	if method == "" {
		return nil, errors.Wrap(models.ErrInvalidInput, "method cannot be empty")
	}
	if len(steps) == 0 {
		return nil, errors.Wrapf(models.ErrInvalidInput, "method %s has no steps", method)
	}

	position := make(map[string]int, len(steps))
	out := make([]models.PipelineStepTemplate, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return nil, errors.Wrapf(models.ErrInvalidInput, "method %s step %d: name cannot be empty", method, i+1)
		}
		if _, dup := position[s.Name]; dup {
			return nil, errors.Wrapf(models.ErrInvalidInput, "method %s: duplicate step %q", method, s.Name)
		}
		if s.StandardHours.IsNegative() {
			return nil, errors.Wrapf(models.ErrInvalidInput, "method %s step %q: standard hours cannot be negative", method, s.Name)
		}
		if s.Join == "" {
			s.Join = models.JoinAll
		}
		if !s.Join.Valid() {
			return nil, errors.Wrapf(models.ErrInvalidInput, "method %s step %q: unknown join type %q", method, s.Name, s.Join)
		}
		s.Method = method
		s.Predecessors = append([]string(nil), s.Predecessors...)
		s.RequiredMaterials = append([]string(nil), s.RequiredMaterials...)
		s.QualityCheckpoints = append([]string(nil), s.QualityCheckpoints...)
		position[s.Name] = i
		out[i] = s
	}

	for _, s := range out {
		for _, p := range s.Predecessors {
			if p == s.Name {
				return nil, &models.CyclicDependencyError{Method: method, Steps: []string{s.Name}}
			}
			if _, ok := position[p]; !ok {
				return nil, errors.Wrapf(models.ErrInvalidInput, "method %s step %q: unknown predecessor %q", method, s.Name, p)
			}
		}
	}

	if err := checkAcyclic(method, out); err != nil {
		return nil, err
	}

	// Sequence numbers follow declaration order, so a predecessor declared later would run backwards.
	for i, s := range out {
		for _, p := range s.Predecessors {
			if position[p] > i {
				return nil, errors.Wrapf(models.ErrInvalidInput, "method %s step %q: predecessor %q is declared after it", method, s.Name, p)
			}
		}
	}
	return out, nil
}

// checkAcyclic runs Kahn's algorithm over the step graph.
func checkAcyclic(method models.ProductionMethod, steps []models.PipelineStepTemplate) error {
	inDegree := make(map[string]int, len(steps))
	graph := make(map[string][]string, len(steps))
	for _, s := range steps {
		inDegree[s.Name] += 0
		for _, p := range s.Predecessors {
			graph[p] = append(graph[p], s.Name)
			inDegree[s.Name]++
		}
	}

	var queue []string
	for _, s := range steps {
		if inDegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range graph[name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited == len(steps) {
		return nil
	}
	var stuck []string
	for _, s := range steps {
		if inDegree[s.Name] > 0 {
			stuck = append(stuck, s.Name)
		}
	}
	return &models.CyclicDependencyError{Method: method, Steps: stuck}
}

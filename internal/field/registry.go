package field

import (
	"sort"
	"sync"

	"github.com/sablhq/warehouse/internal/util"
)

// Registry is a hierarchical field dictionary. A Warehouse-scoped registry
// falls through to each child DataSource's registry on lookup miss; an
// ad-hoc registry built from request-scoped fields takes precedence and may
// not reuse an existing name, per §4.A.
type Registry struct {
	mu         sync.RWMutex
	metrics    map[string]*Field
	dimensions map[string]*Field
	parents    []*Registry // consulted in order on lookup miss
}

// New creates an empty registry with the given fallback parents.
func New(parents ...*Registry) *Registry {
	return &Registry{
		metrics:    make(map[string]*Field),
		dimensions: make(map[string]*Field),
		parents:    parents,
	}
}

// AddMetric registers a metric field. Fails WarehouseIntegrity if the name
// is already used by a metric or dimension anywhere in this registry's own
// maps. Parent registries are not consulted, and Warehouse construction
// does not check names for duplicates or conflicting definitions across
// DataSources.
func (r *Registry) AddMetric(f *Field) error {
	f.Class = ClassMetric
	if err := f.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dimensions[f.Name]; exists {
		return util.WarehouseIntegrity("field \""+f.Name+"\" is declared as both a metric and a dimension", nil)
	}
	if _, exists := r.metrics[f.Name]; exists {
		return util.WarehouseIntegrity("metric \""+f.Name+"\" is already declared", nil)
	}
	r.metrics[f.Name] = f
	return nil
}

// AddDimension registers a dimension field.
func (r *Registry) AddDimension(f *Field) error {
	f.Class = ClassDimension
	if err := f.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[f.Name]; exists {
		return util.WarehouseIntegrity("field \""+f.Name+"\" is declared as both a metric and a dimension", nil)
	}
	r.dimensions[f.Name] = f
	return nil
}

// GetMetric resolves a metric by name, falling through to parent registries.
func (r *Registry) GetMetric(name string) (*Field, error) {
	r.mu.RLock()
	f, ok := r.metrics[name]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}
	for _, p := range r.parents {
		if f, err := p.GetMetric(name); err == nil {
			return f, nil
		}
	}
	return nil, util.InvalidField("unknown metric \""+name+"\"", nil)
}

// GetDimension resolves a dimension by name, falling through to parents.
func (r *Registry) GetDimension(name string) (*Field, error) {
	r.mu.RLock()
	f, ok := r.dimensions[name]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}
	for _, p := range r.parents {
		if f, err := p.GetDimension(name); err == nil {
			return f, nil
		}
	}
	return nil, util.InvalidField("unknown dimension \""+name+"\"", nil)
}

// GetField resolves a name as either a metric or a dimension.
func (r *Registry) GetField(name string) (*Field, error) {
	if f, err := r.GetMetric(name); err == nil {
		return f, nil
	}
	if f, err := r.GetDimension(name); err == nil {
		return f, nil
	}
	return nil, util.InvalidField("unknown field \""+name+"\"", nil)
}

// Has reports whether name is already bound anywhere in this registry's own
// maps (ignoring parents) -- used to detect ad-hoc/global name collisions.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, m := r.metrics[name]
	_, d := r.dimensions[name]
	return m || d
}

// WithAdHoc returns a child registry seeded with request-scoped ad-hoc
// fields that shadow this registry for the duration of one report. Any
// ad-hoc field whose name collides with an existing global name (in this
// registry or any of its parents) fails InvalidField.
func (r *Registry) WithAdHoc(adhoc []*Field) (*Registry, error) {
	child := New(r)
	for _, f := range adhoc {
		if r.exists(f.Name) {
			return nil, util.InvalidField("ad-hoc field \""+f.Name+"\" collides with an existing field name", nil)
		}
		f.AdHoc = true
		var err error
		switch f.Class {
		case ClassMetric:
			err = child.AddMetric(f)
		case ClassDimension:
			err = child.AddDimension(f)
		default:
			err = util.InvalidField("ad-hoc field \""+f.Name+"\" must declare a class", nil)
		}
		if err != nil {
			return nil, err
		}
	}
	return child, nil
}

func (r *Registry) exists(name string) bool {
	if r.Has(name) {
		return true
	}
	for _, p := range r.parents {
		if p.exists(name) {
			return true
		}
	}
	return false
}

// MetricNames returns all metric names visible from this registry (own plus
// parents), sorted for deterministic iteration.
func (r *Registry) MetricNames() []string {
	seen := map[string]bool{}
	r.collectMetricNames(seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) collectMetricNames(seen map[string]bool) {
	r.mu.RLock()
	for n := range r.metrics {
		seen[n] = true
	}
	r.mu.RUnlock()
	for _, p := range r.parents {
		p.collectMetricNames(seen)
	}
}

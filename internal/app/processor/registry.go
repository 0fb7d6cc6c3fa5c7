package processor

import (
	"fmt"
	"sync"
)

// Registry keeps compiled products keyed by product key, in registration order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	products map[string]*Product
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:       sync.RWMutex{},
		order:    nil,
		products: make(map[string]*Product),
	}
}

// NewDefaultRegistry compiles the default product table with endpoint overrides applied.
func NewDefaultRegistry(overrides map[string][]string) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range WithEndpoints(DefaultSpecs(), overrides) {
		if err := r.Register(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles spec and appends it to the processing order.
func (r *Registry) Register(spec Spec) error {
	product, err := Compile(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.products[spec.Key]; exists {
		return fmt.Errorf("product %q already registered", spec.Key)
	}
	r.products[spec.Key] = product
	r.order = append(r.order, spec.Key)
	return nil
}

// Lookup returns the product registered under key.
func (r *Registry) Lookup(key string) (*Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[key]
	return p, ok
}

// Exchanges returns exchange names in the order their first product was registered.
func (r *Registry) Exchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.order))
	for _, key := range r.order {
		specs = append(specs, r.products[key].spec)
	}
	return Exchanges(specs)
}

// Products returns the products of exchange in registration order.
func (r *Registry) Products(exchange string) []*Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Product
	for _, key := range r.order {
		if p := r.products[key]; p.spec.Exchange == exchange {
			out = append(out, p)
		}
	}
	return out
}

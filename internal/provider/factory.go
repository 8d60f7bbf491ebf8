package provider

import (
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
)

// Factory resolves a provider name to its adapter. The map is fixed at
// construction; there is no global registry.
type Factory struct {
	providers map[string]Provider
}

// NewFactory builds a factory over the given adapters, keyed by Name().
func NewFactory(providers ...Provider) *Factory {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Factory{providers: m}
}

// Get returns the adapter for name, or a validation error for unknown names.
func (f *Factory) Get(name string) (Provider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, domainerr.NewValidationError("unsupported payment provider: " + name)
	}
	return p, nil
}

// Names lists the registered provider names.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	return names
}

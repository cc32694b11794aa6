package provider

import (
	"fmt"
	"sort"
)

// Provider identifiers and the model codes each one services, exported for
// registry wiring at bootstrap.
const (
	NameLucy14b   = lucy14bName
	NameSplice    = spliceName
	NameMirageLSD = mirageName
)

var (
	Lucy14bModelCodes   = lucy14bModelCodes
	SpliceModelCodes    = []string{spliceModelCode}
	MirageLSDModelCodes = []string{mirageModelCode}
)

// Factory builds an Adapter instance. Factories return a ConfigurationError
// when required credentials are absent, so resolution fails fast before any
// network call.
type Factory func() (Adapter, error)

// registration ties a provider id to its factory, configuration check, and
// the model codes it services.
type registration struct {
	factory    Factory
	configured func() bool
}

// Registry maps provider identifiers and model codes to adapter factories.
// The default provider is fixed at construction time; nothing here mutates
// after Register calls complete during bootstrap.
type Registry struct {
	providers   map[string]registration
	modelRoutes map[string]string
	order       []string
	preferred   string
}

// NewRegistry creates an empty registry. preferred names the provider to use
// when neither an explicit provider nor a routable model code is given; it
// is honored only if that provider ends up registered and configured.
func NewRegistry(preferred string) *Registry {
	return &Registry{
		providers:   make(map[string]registration),
		modelRoutes: make(map[string]string),
		preferred:   preferred,
	}
}

// Register adds a provider with the model codes it services.
func (r *Registry) Register(name string, factory Factory, configured func() bool, modelCodes ...string) {
	r.providers[name] = registration{factory: factory, configured: configured}
	r.order = append(r.order, name)
	for _, code := range modelCodes {
		r.modelRoutes[code] = name
	}
}

// Default returns the provider id used when a request names neither a
// provider nor a routable model code: the preferred provider if configured,
// otherwise the first configured registration. Empty when nothing is
// configured.
func (r *Registry) Default() string {
	if reg, ok := r.providers[r.preferred]; ok && reg.configured() {
		return r.preferred
	}
	for _, name := range r.order {
		if r.providers[name].configured() {
			return name
		}
	}
	return ""
}

// Resolve selects and builds the adapter for a request. An explicit provider
// wins; otherwise the model code routes through the static table; otherwise
// the default applies.
func (r *Registry) Resolve(requestedProvider, modelCode string) (Adapter, error) {
	name := requestedProvider
	if name == "" && modelCode != "" {
		routed, ok := r.modelRoutes[modelCode]
		if !ok {
			return nil, fmt.Errorf("%w: no provider for model code %q", ErrUnknownProvider, modelCode)
		}
		name = routed
	}
	if name == "" {
		name = r.Default()
	}

	reg, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProvider, name, r.Names())
	}

	return reg.factory()
}

// Adapter builds the adapter for a known provider id. Unlike Resolve it
// never falls back; jobs already bound to a provider poll through here.
func (r *Registry) Adapter(name string) (Adapter, error) {
	reg, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return reg.factory()
}

// IsConfigured reports whether the named provider has its required
// credentials present. It never performs network I/O.
func (r *Registry) IsConfigured(name string) bool {
	reg, ok := r.providers[name]
	return ok && reg.configured()
}

// Names returns the registered provider identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package provider

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"chatrelay/pkg/logger"
)

// Registry maps provider names to sinks. Sinks are registered explicitly
// at startup; there is no runtime scanning.
type Registry struct {
	log   *logger.Logger
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates an empty sink registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:   log,
		sinks: make(map[string]Sink),
	}
}

// Register registers a sink under its declared name.
func (r *Registry) Register(sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := sink.Name()
	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.sinks[name] = sink
	r.log.Info("Registered provider",
		zap.String("provider", name),
		zap.Bool("enabled", sink.IsEnabled()),
		zap.Bool("threads", sink.SupportsThreads()))
	return nil
}

// Get returns the sink registered under name.
func (r *Registry) Get(name string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	return s, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChannelSchema returns the parameter schema and thread capability of a
// registered provider. It satisfies the rule store's schema source.
func (r *Registry) ChannelSchema(name string) (params []Param, supportsThreads bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	if !ok {
		return nil, false, false
	}
	return s.ParameterSchema(), s.SupportsThreads(), true
}

// All returns all registered sinks ordered by name.
func (r *Registry) All() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinks := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool { return sinks[i].Name() < sinks[j].Name() })
	return sinks
}

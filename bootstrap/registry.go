package bootstrap

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/najoast/syncrt/config"
	"github.com/najoast/syncrt/core"
)

// ActorFactory builds an actor described by a setup entry
type ActorFactory func(setup config.ActorSetup) (core.Actor, error)

// Registry maps actor type names to factories
type Registry struct {
	// factories holds registered actor factories
	factories map[string]ActorFactory

	// mutex protects concurrent access
	mutex sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ActorFactory),
	}
}

// Register registers a factory for an actor type
func (r *Registry) Register(typeName string, factory ActorFactory) error {
	if typeName == "" {
		return fmt.Errorf("actor type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("actor factory cannot be nil")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.factories[typeName]; exists {
		return fmt.Errorf("actor type %s is already registered", typeName)
	}
	r.factories[typeName] = factory
	return nil
}

// MustRegister is Register that panics on error
func (r *Registry) MustRegister(typeName string, factory ActorFactory) {
	if err := r.Register(typeName, factory); err != nil {
		panic(err)
	}
}

// Build creates the actor described by setup
func (r *Registry) Build(setup config.ActorSetup) (core.Actor, error) {
	r.mutex.RLock()
	factory, exists := r.factories[setup.Type]
	r.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("actor type %s is not registered", setup.Type)
	}
	actor, err := factory(setup)
	if err != nil {
		return nil, fmt.Errorf("failed to create actor %s (%s): %w", setup.ID, setup.Type, err)
	}
	return actor, nil
}

// Has checks if an actor type is registered
func (r *Registry) Has(typeName string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.factories[typeName]
	return exists
}

// Names returns all registered actor types
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Populate spawns every actor of setup into sys and connects their
// outputs. It returns the handle of each setup id.
func (r *Registry) Populate(sys *core.ActorSystem, setup *config.SetupConfig) (map[uuid.UUID]core.ActorHandle, error) {
	handles := make(map[uuid.UUID]core.ActorHandle, len(setup.Actors))

	for _, actorSetup := range setup.Actors {
		actor, err := r.Build(actorSetup)
		if err != nil {
			return nil, err
		}
		handle, err := sys.Spawn(actor, core.ActorOptions{
			Type:  actorSetup.Type,
			Name:  actorSetup.Name,
			Group: actorSetup.Group,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to spawn actor %s (%s): %w", actorSetup.ID, actorSetup.Type, err)
		}
		handles[actorSetup.ID] = handle
	}

	for _, actorSetup := range setup.Actors {
		outputs := make([]string, 0, len(actorSetup.Outputs))
		for output := range actorSetup.Outputs {
			outputs = append(outputs, output)
		}
		sort.Strings(outputs)

		for _, output := range outputs {
			receivers := make([]core.ActorHandle, 0, len(actorSetup.Outputs[output]))
			for _, id := range actorSetup.Outputs[output] {
				receivers = append(receivers, handles[id])
			}
			if err := sys.Connect(handles[actorSetup.ID], output, receivers...); err != nil {
				return nil, fmt.Errorf("failed to connect %s.%s: %w", actorSetup.ID, output, err)
			}
		}
	}
	return handles, nil
}

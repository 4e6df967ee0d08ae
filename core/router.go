package core

import (
	"fmt"
	"sort"
	"sync"
)

// Router is the routing table shared by every mailbox of a system. It
// allocates handles and maps them to mailboxes. Once frozen it only
// serves lookups.
type Router struct {
	mu sync.RWMutex

	// Maps handle to mailbox
	mailboxes map[ActorHandle]*NetComponent

	// Maps actor name to handle
	names map[string]ActorHandle

	// Counter for generating unique handle IDs
	idCounter uint32

	frozen bool
}

// NewRouter creates an empty routing table.
func NewRouter() *Router {
	return &Router{
		mailboxes: make(map[ActorHandle]*NetComponent),
		names:     make(map[string]ActorHandle),
	}
}

// Allocate creates a new handle for an actor of the given type.
func (r *Router) Allocate(actorType, name string) (ActorHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return NoActor, ErrRoutingFrozen
	}

	// Check if name is already taken
	if name != "" {
		if _, exists := r.names[name]; exists {
			return NoActor, fmt.Errorf("%w: '%s'", ErrNameTaken, name)
		}
	}

	r.idCounter++
	handle := ActorHandle{ID: r.idCounter, Type: actorType}
	if name != "" {
		r.names[name] = handle
	}
	return handle, nil
}

// Register binds a mailbox to its handle.
func (r *Router) Register(net *NetComponent) error {
	if net == nil {
		return fmt.Errorf("cannot register nil mailbox")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRoutingFrozen
	}

	handle := net.Self()
	if _, exists := r.mailboxes[handle]; exists {
		return fmt.Errorf("actor %s already registered", handle)
	}
	r.mailboxes[handle] = net
	return nil
}

// Release drops a handle that never made it into the running system.
func (r *Router) Release(handle ActorHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.mailboxes, handle)
	for name, h := range r.names {
		if h == handle {
			delete(r.names, name)
		}
	}
}

// Lookup finds the mailbox of an actor.
func (r *Router) Lookup(handle ActorHandle) (*NetComponent, bool) {
	r.mu.RLock()
	net, exists := r.mailboxes[handle]
	r.mu.RUnlock()
	return net, exists
}

// HandleByName finds an actor by its registered name.
func (r *Router) HandleByName(name string) (ActorHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, exists := r.names[name]
	return handle, exists
}

// List returns all registered handles ordered by ID.
func (r *Router) List() []ActorHandle {
	r.mu.RLock()
	handles := make([]ActorHandle, 0, len(r.mailboxes))
	for handle := range r.mailboxes {
		handles = append(handles, handle)
	}
	r.mu.RUnlock()

	sort.Slice(handles, func(i, j int) bool { return handles[i].ID < handles[j].ID })
	return handles
}

// Freeze rejects further registrations.
func (r *Router) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Unfreeze allows registrations again after the system has stopped.
func (r *Router) Unfreeze() {
	r.mu.Lock()
	r.frozen = false
	r.mu.Unlock()
}

package paxos

import (
	"errors"
	"fmt"
	"sync"
)

// Instance is one agreement: a participant registry plus the nodes wired to
// it, started and disposed as a unit. The registry may be wrapped (for
// example by an UnreliableTransport) before the nodes bind to it.
type Instance[V any] struct {
	name     string
	registry *Registry[V]
	nodes    []*Node[V]

	mu      sync.Mutex
	started bool
}

// NewInstance builds the nodes of one agreement over a shared registry.
// Every uid is registered first so broadcast fan-out covers the full quorum
// before any node starts; transport may be the registry itself or a wrapper
// around it.
func NewInstance[V any](name string, uids []string, transport Transport[V], registry *Registry[V], store StableStore[V], api API[V], config Config) (*Instance[V], error) {
	if len(uids) == 0 {
		return nil, errors.New("paxos: instance needs at least one participant")
	}
	for _, uid := range uids {
		if err := registry.Register(uid); err != nil {
			return nil, err
		}
	}
	inst := &Instance[V]{name: name, registry: registry}
	for _, uid := range uids {
		node, err := NewNode[V](uid, transport, store, api, config)
		if err != nil {
			return nil, fmt.Errorf("building node %s: %w", uid, err)
		}
		inst.nodes = append(inst.nodes, node)
	}
	return inst, nil
}

// Name returns the instance's name.
func (i *Instance[V]) Name() string { return i.name }

// Registry returns the instance's participant registry.
func (i *Instance[V]) Registry() *Registry[V] { return i.registry }

// Nodes returns the instance's nodes in the order their uids were given.
func (i *Instance[V]) Nodes() []*Node[V] { return i.nodes }

// Start wires every node's bindings. A node that refuses to bind aborts the
// start; already-bound nodes are left running.
func (i *Instance[V]) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return fmt.Errorf("paxos: instance %s already started", i.name)
	}
	for _, n := range i.nodes {
		if err := n.SetupBindings(); err != nil {
			return fmt.Errorf("binding node %s: %w", n.UID(), err)
		}
	}
	i.started = true
	return nil
}

// Close disposes every node and then the registry. Idempotent.
func (i *Instance[V]) Close() {
	for _, n := range i.nodes {
		n.Close()
	}
	i.registry.Close()
}

// Coordinator is a registry of named agreement instances. Instances are
// appended over the coordinator's lifetime and torn down together.
type Coordinator[V any] struct {
	mu        sync.Mutex
	instances map[string]*Instance[V]
}

// NewCoordinator creates an empty instance registry.
func NewCoordinator[V any]() *Coordinator[V] {
	return &Coordinator[V]{instances: make(map[string]*Instance[V])}
}

// CreateInstance builds, registers and returns a named instance over a
// fresh registry. The name must be unused.
func (c *Coordinator[V]) CreateInstance(name string, uids []string, store StableStore[V], api API[V], config Config) (*Instance[V], error) {
	registry := NewRegistry[V]()
	inst, err := NewInstance[V](name, uids, registry, registry, store, api, config)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.instances[name]; ok {
		return nil, fmt.Errorf("paxos: instance %s already exists", name)
	}
	c.instances[name] = inst
	return inst, nil
}

// Instance looks a named instance up.
func (c *Coordinator[V]) Instance(name string) (*Instance[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[name]
	return inst, ok
}

// CloseAll disposes every instance the coordinator knows.
func (c *Coordinator[V]) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, inst := range c.instances {
		inst.Close()
	}
}

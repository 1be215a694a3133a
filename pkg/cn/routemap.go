package cn

import (
	"bytes"
	"sync"
)

// RouteStore is the persistence sink for edge-key → node-id mappings,
// implemented by pkg/metalog. The route map works with or without one
// (tests use no store); it is an external collaborator the scheduler
// never talks to directly.
type RouteStore interface {
	PutRoute(edgeKey []byte, nodeID string) error
	DeleteRoute(edgeKey []byte) error
}

// RouteMap directs a key to the leaf whose edge key is the smallest
// one ≥ the lookup key, the standard cn-tree partitioning rule.
type RouteMap struct {
	mu      sync.RWMutex
	entries []routeEntry
	store   RouteStore
}

type routeEntry struct {
	edgeKey []byte
	node    *Node
}

// NewRouteMap creates an empty route map, optionally backed by store.
func NewRouteMap(store RouteStore) *RouteMap {
	return &RouteMap{store: store}
}

// Insert adds or replaces the mapping for a leaf's edge key.
func (r *RouteMap) Insert(n *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if bytes.Equal(e.edgeKey, n.EdgeKey) {
			r.entries[i].node = n
			return r.persist(n.EdgeKey, n.ID)
		}
	}
	r.entries = append(r.entries, routeEntry{edgeKey: n.EdgeKey, node: n})
	r.sortLocked()
	return r.persist(n.EdgeKey, n.ID)
}

// Delete removes a leaf's edge key from the map (join/shape-trim).
func (r *RouteMap) Delete(n *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if bytes.Equal(e.edgeKey, n.EdgeKey) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	if r.store != nil {
		return r.store.DeleteRoute(n.EdgeKey)
	}
	return nil
}

// ExtendKey rewrites a leaf's edge key (used by the shape auditor to
// extend the left survivor of a trimmed trailing empty node out to the
// maximum sentinel key, preserving the partition).
func (r *RouteMap) ExtendKey(n *Node, newKey []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := n.EdgeKey
	n.EdgeKey = newKey
	for i, e := range r.entries {
		if bytes.Equal(e.edgeKey, old) {
			r.entries[i].edgeKey = newKey
			break
		}
	}
	r.sortLocked()
	return r.persist(newKey, n.ID)
}

// Lookup returns the leaf whose edge key is the smallest one ≥ key,
// or nil if key falls past every known edge (shouldn't happen once a
// sentinel-keyed rightmost leaf exists).
func (r *RouteMap) Lookup(key []byte) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if bytes.Compare(key, e.edgeKey) <= 0 {
			return e.node
		}
	}
	return nil
}

func (r *RouteMap) sortLocked() {
	for i := 1; i < len(r.entries); i++ {
		for j := i; j > 0 && bytes.Compare(r.entries[j].edgeKey, r.entries[j-1].edgeKey) < 0; j-- {
			r.entries[j], r.entries[j-1] = r.entries[j-1], r.entries[j]
		}
	}
}

func (r *RouteMap) persist(edgeKey []byte, nodeID string) error {
	if r.store == nil {
		return nil
	}
	return r.store.PutRoute(edgeKey, nodeID)
}

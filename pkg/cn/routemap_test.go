package cn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouteStore struct {
	puts    map[string]string
	deletes [][]byte
}

func newFakeRouteStore() *fakeRouteStore {
	return &fakeRouteStore{puts: make(map[string]string)}
}

func (f *fakeRouteStore) PutRoute(edgeKey []byte, nodeID string) error {
	f.puts[string(edgeKey)] = nodeID
	return nil
}

func (f *fakeRouteStore) DeleteRoute(edgeKey []byte) error {
	f.deletes = append(f.deletes, edgeKey)
	return nil
}

func TestRouteMapLookupFindsSmallestCoveringEdge(t *testing.T) {
	rm := NewRouteMap(nil)
	a := NewNode("a", false, EncodeKey(100))
	b := NewNode("b", false, EncodeKey(200))
	c := NewNode("c", false, MaxSentinelKey)
	require.NoError(t, rm.Insert(b))
	require.NoError(t, rm.Insert(a))
	require.NoError(t, rm.Insert(c))

	assert.Equal(t, a, rm.Lookup(EncodeKey(50)))
	assert.Equal(t, a, rm.Lookup(EncodeKey(100)))
	assert.Equal(t, b, rm.Lookup(EncodeKey(101)))
	assert.Equal(t, c, rm.Lookup(EncodeKey(1_000_000)))
}

func TestRouteMapInsertPersistsToStore(t *testing.T) {
	store := newFakeRouteStore()
	rm := NewRouteMap(store)
	a := NewNode("a", false, EncodeKey(100))
	require.NoError(t, rm.Insert(a))
	assert.Equal(t, "a", store.puts[string(EncodeKey(100))])
}

func TestRouteMapDeleteRemovesEntryAndPersists(t *testing.T) {
	store := newFakeRouteStore()
	rm := NewRouteMap(store)
	a := NewNode("a", false, EncodeKey(100))
	require.NoError(t, rm.Insert(a))
	require.NoError(t, rm.Delete(a))

	assert.Nil(t, rm.Lookup(EncodeKey(50)))
	require.Len(t, store.deletes, 1)
	assert.Equal(t, EncodeKey(100), store.deletes[0])
}

func TestRouteMapExtendKeyRekeysAndResorts(t *testing.T) {
	rm := NewRouteMap(nil)
	a := NewNode("a", false, EncodeKey(100))
	b := NewNode("b", false, EncodeKey(200))
	require.NoError(t, rm.Insert(a))
	require.NoError(t, rm.Insert(b))

	require.NoError(t, rm.ExtendKey(a, MaxSentinelKey))
	assert.Equal(t, MaxSentinelKey, a.EdgeKey)
	assert.Equal(t, b, rm.Lookup(EncodeKey(150)), "b still covers its own range")
	assert.Equal(t, a, rm.Lookup(EncodeKey(1_000_000)), "a now covers everything past b")
}

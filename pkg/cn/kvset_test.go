package cn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKvsetComputesCompressedLen(t *testing.T) {
	k := NewKvset(1, 1, 100, 10, 5, 4096, 4096, []uint32{1, 2, 3})
	assert.Equal(t, uint64(1), k.ID)
	assert.Equal(t, 3, k.VGroupCount())
	assert.Greater(t, k.Clen, int64(0))
	assert.LessOrEqual(t, k.Clen, k.Alen)
}

func TestKvsetClaimRelease(t *testing.T) {
	k := NewKvset(1, 1, 10, 0, 0, 100, 100, nil)
	assert.Equal(t, uint64(0), k.WorkID())

	k.Claim(42)
	assert.Equal(t, uint64(42), k.WorkID())

	k.Release()
	assert.Equal(t, uint64(0), k.WorkID())

	k.Claim(7)
	assert.Equal(t, uint64(7), k.WorkID())
}

func TestKvsetClaimPanicsWhenAlreadyClaimed(t *testing.T) {
	k := NewKvset(1, 1, 10, 0, 0, 100, 100, nil)
	k.Claim(1)
	assert.Panics(t, func() { k.Claim(2) })
}

func TestVGroupUnion(t *testing.T) {
	a := NewKvset(1, 1, 10, 0, 0, 100, 100, []uint32{1, 2})
	b := NewKvset(2, 1, 10, 0, 0, 100, 100, []uint32{2, 3})
	union := a.vgroupUnion(b)
	require.NotNil(t, union)
	assert.Equal(t, uint64(3), union.GetCardinality())
}

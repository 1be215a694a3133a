package cn

import "encoding/binary"

// Edge keys are modeled as fixed-width big-endian uint64s rather than
// arbitrary byte strings. A real cn-tree partitions on opaque
// application keys; this stand-in only needs a total order cheap
// enough to bisect when a leaf splits, so it uses the key space
// [0, MaxUint64] directly.

// EncodeKey turns a uint64 position into an edge key.
func EncodeKey(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// DecodeKey turns an edge key back into its uint64 position.
func DecodeKey(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// MaxSentinelKey is the maximum possible edge key, used by the
// tree-shape auditor to re-key a left neighbor after trimming the
// rightmost empty leaf, and as the rightmost leaf's edge key.
var MaxSentinelKey = EncodeKey(^uint64(0))

package cn

import (
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
	"github.com/pierrec/lz4/v4"
)

// Kvset is an immutable sorted key-value segment. Fields that the
// scheduler claims against (WorkID) are the only mutable part of an
// otherwise immutable object.
type Kvset struct {
	ID   uint64
	Dgen uint64 // generation, assigned at creation
	// Compc is the number of prior compactions this kvset's data has
	// been through; the length planner groups runs by equal Compc.
	Compc uint32

	// workID is 0 when unclaimed, or the dispatching job's id.
	workID uint64

	Keys     int64
	KeysUniq int64
	Tombs    int64
	PTombs   int64

	Alen int64 // allocated bytes
	Clen int64 // compacted (logical) bytes
	Wlen int64 // written bytes, KeyBytes+ValueBytes

	KeyBytes   int64
	ValueBytes int64

	VBlocks int
	vgroups *roaring.Bitmap // vgroup ids this kvset's vblocks belong to

	// payload is a tiny stand-in for the kvset's on-media bytes, run
	// through an lz4 round trip by the kernels to give CompactK/KV
	// something real to rewrite instead of just editing counters.
	payload []byte
}

// NewKvset builds a kvset with the given stats and a synthetic
// 256-byte zero payload compressed immediately so that Clen reflects
// a plausible compaction ratio.
func NewKvset(id uint64, dgen uint64, keys, tombs, ptombs, alen, wlen int64, vgroups []uint32) *Kvset {
	bm := roaring.New()
	for _, g := range vgroups {
		bm.Add(g)
	}
	k := &Kvset{
		ID:         id,
		Dgen:       dgen,
		Keys:       keys,
		KeysUniq:   keys,
		Tombs:      tombs,
		PTombs:     ptombs,
		Alen:       alen,
		Wlen:       wlen,
		KeyBytes:   wlen / 4,
		ValueBytes: wlen - wlen/4,
		VBlocks:    len(vgroups),
		vgroups:    bm,
		payload:    make([]byte, 256),
	}
	k.Clen = k.compressedLen()
	return k
}

// compressedLen runs the kvset's synthetic payload through lz4 and
// reports Alen scaled by the resulting compression ratio as a
// stand-in compacted length, so tiny synthetic payloads still produce
// realistic-looking byte counts.
func (k *Kvset) compressedLen() int64 {
	dst := make([]byte, lz4.CompressBlockBound(len(k.payload)))
	n, err := lz4.CompressBlock(k.payload, dst, nil)
	if err != nil || n == 0 {
		return k.Alen
	}
	ratio := float64(n) / float64(len(k.payload))
	clen := int64(float64(k.Alen) * ratio)
	if clen <= 0 {
		clen = k.Alen
	}
	return clen
}

// WorkID returns the claiming job's id, or 0 if unclaimed.
func (k *Kvset) WorkID() uint64 { return atomic.LoadUint64(&k.workID) }

// Claim sets the kvset's WorkID; it is a programming error to claim an
// already-claimed kvset.
func (k *Kvset) Claim(jobID uint64) {
	if !atomic.CompareAndSwapUint64(&k.workID, 0, jobID) {
		panic("cn: kvset already claimed")
	}
}

// Release clears the kvset's WorkID after the owning job completes.
func (k *Kvset) Release() {
	atomic.StoreUint64(&k.workID, 0)
}

// VGroupCount returns the number of distinct vgroups this kvset's
// vblocks are scattered across.
func (k *Kvset) VGroupCount() int {
	if k.vgroups == nil {
		return 0
	}
	return int(k.vgroups.GetCardinality())
}

func (k *Kvset) vgroupUnion(other *Kvset) *roaring.Bitmap {
	out := roaring.New()
	if k.vgroups != nil {
		out.Or(k.vgroups)
	}
	if other != nil && other.vgroups != nil {
		out.Or(other.vgroups)
	}
	return out
}

/*
Package cn models the cn-tree data structure that the compaction
scheduler (pkg/csched) operates over: an ordered forest of trees, each
with one root node and a sequence of leaves holding newest-first lists
of immutable kvsets.

This package is deliberately not a real storage engine. Kvset I/O,
on-media layout, and the merge/compaction kernels are out of scope for
the scheduler this repository implements (spec says so explicitly);
what lives here is the minimum in-memory stand-in needed to drive the
scheduler end to end in tests and the demo binary — action kernels
that mutate kvset lists and stats the way the real spill/compact-k/
compact-kv/split/join kernels would, without touching media.

# Shape

	Tree
	 ├─ Nodes[0]        root    (kvsets, newest first)
	 └─ Nodes[1..]      leaves  (ordered by edge key)

Each Node's stats (keys, tombs, alen, clen, wlen, ...) are maintained
as running sums over its kvset list and recomputed whenever the list
changes; the scheduler only ever reads them.
*/
package cn

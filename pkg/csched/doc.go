// Package csched implements the compaction scheduler for a
// log-structured, tree-based key-value storage engine: a
// single-threaded decision loop that classifies cn-tree nodes into
// seven work categories, plans concrete compaction jobs, dispatches
// them to a bounded worker pool, and drives an I/O throttle sensor
// from the resulting backlog.
//
//	        ingest / job-completion threads
//	                    │
//	                    ▼
//	          ┌──────────────────┐
//	          │  dirty propagation │  (double-buffered MPSC)
//	          └─────────┬─────────┘
//	                    ▼
//	          ┌──────────────────┐
//	          │  monitor loop     │  (single goroutine)
//	          └─────────┬─────────┘
//	          ┌─────────┼─────────┐
//	          ▼         ▼         ▼
//	    classifier  samp est.  throttle/shape
//	          │
//	          ▼
//	   priority indexes (7 categories)
//	          │
//	          ▼
//	     job dispatcher ──submit──▶ pkg/worker pool ──▶ pkg/cn kernels
//	          ▲                                              │
//	          └──────────────── completion callback ─────────┘
//
// The scheduler never touches kvset bytes directly; pkg/cn supplies
// the tree/node/kvset data model and the action kernels it invokes.
package csched

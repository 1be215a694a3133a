package csched

import "github.com/cuemby/cn-csched/pkg/cn"

// WorkCategory is one of the seven priority indexes the monitor loop
// dispatches from.
type WorkCategory int

const (
	CategoryRoot WorkCategory = iota
	CategoryLength
	CategoryGarbage
	CategoryScatter
	CategoryIdle
	CategorySplit
	CategoryJoin

	categoryCount = 7
)

func (c WorkCategory) String() string {
	switch c {
	case CategoryRoot:
		return "root"
	case CategoryLength:
		return "length"
	case CategoryGarbage:
		return "garbage"
	case CategoryScatter:
		return "scatter"
	case CategoryIdle:
		return "idle"
	case CategorySplit:
		return "split"
	case CategoryJoin:
		return "join"
	default:
		return "unknown"
	}
}

// Action is the concrete action a planned WorkItem will execute.
type Action int

const (
	ActionNone Action = iota
	ActionCompactK
	ActionCompactKV
	ActionSpill
	ActionSplit
	ActionJoin
)

func (a Action) String() string {
	switch a {
	case ActionCompactK:
		return "compact-k"
	case ActionCompactKV:
		return "compact-kv"
	case ActionSpill:
		return "spill"
	case ActionSplit:
		return "split"
	case ActionJoin:
		return "join"
	default:
		return "none"
	}
}

// PlanResult is the outcome of a planner call.
type PlanResult int

const (
	// Resched means the candidate remains on its index and should be
	// considered again next tick (cw_resched = true).
	Resched PlanResult = iota
	// Drop means the candidate is removed from its index until the
	// next reclassification produces fresh eligibility.
	Drop
	// Planned means a concrete WorkItem was produced.
	Planned
)

// WorkItem describes one planned job.
type WorkItem struct {
	JobID      uint64
	Tree       *cn.Tree
	Node       *cn.Node
	Other      *cn.Node // left node of a join; nil for other actions
	Kvsets     []*cn.Kvset
	Action     Action
	Category   WorkCategory
	Rule       string
	SampDeltaAlen int64
	SampDeltaWlen int64
	SampDeltaGood int64
}

// weight64 packs a (primary, secondary) pair into one 64-bit ordering
// key: higher packed value sorts first, giving deterministic tie-breaks
// without an auxiliary comparator.
type weight64 uint64

func packWeight(primary, secondary uint32) weight64 {
	return weight64(uint64(primary)<<32 | uint64(secondary))
}

const maxUint32 = ^uint32(0)
const maxUint64 = ^uint64(0)

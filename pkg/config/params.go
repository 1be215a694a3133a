// Package config holds the scheduler's runtime-mutable configuration
// inputs, loadable from YAML and clamped to their documented bounds
// before use.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RspillParams are the three packed root-spill thresholds.
type RspillParams struct {
	RunlenMax   int   `yaml:"runlen_max"`
	RunlenMin   int   `yaml:"runlen_min"`
	WlenMaxMiB  int64 `yaml:"wlen_max_mib"`
}

// LeafCompParams govern leaf compaction run sizing and join eligibility.
type LeafCompParams struct {
	RunlenMax  int `yaml:"runlen_max"`
	JoinPct    int `yaml:"join_pct"`
	SplitKeys  int64 `yaml:"split_keys"`
}

// LeafLenParams govern the length category and idle consolidation.
type LeafLenParams struct {
	RunlenMax int `yaml:"runlen_max"`
	RunlenMin int `yaml:"runlen_min"`
	Idlec     int `yaml:"idlec"`
	Idlem     int `yaml:"idlem"`
}

// KvsetIterMode selects how the (out-of-scope) kvset iterator reads
// media. The scheduler carries the value in Params but does not read
// it, and compact_status_get does not report it.
type KvsetIterMode string

const (
	KvsetIterSync      KvsetIterMode = "sync"
	KvsetIterMMapCache KvsetIterMode = "mmap-cache"
	KvsetIterAsync     KvsetIterMode = "async"
)

// Params holds every tunable scheduler input. All percent fields are
// stored scaled ×100; pkg/csched further scales by 10,000 internally
// for fixed-point samp math.
type Params struct {
	SampMaxX100   int `yaml:"samp_max_x100"`
	LoThPctX100   int `yaml:"lo_th_pct_x100"`
	HiThPctX100   int `yaml:"hi_th_pct_x100"`
	LeafPctX100   int `yaml:"leaf_pct_x100"`

	Rspill     RspillParams   `yaml:"rspill_params"`
	LeafComp   LeafCompParams `yaml:"leaf_comp_params"`
	LeafLen    LeafLenParams  `yaml:"leaf_len_params"`

	LscatRunlenMax int `yaml:"lscat_runlen_max"`
	LscatHWM       int `yaml:"lscat_hwm"`

	// QThreads is per-category worker concurrency, indexed by
	// csched.WorkCategory.
	QThreads [7]int `yaml:"qthreads"`

	KvsetIter KvsetIterMode `yaml:"kvset_iter"`

	GCPct int `yaml:"gc_pct"`
}

// Default returns the scheduler's built-in defaults.
func Default() Params {
	return Params{
		SampMaxX100: 150_00, // samp_max 1.50
		LoThPctX100: 25_00,
		HiThPctX100: 75_00,
		LeafPctX100: 90_00,
		Rspill: RspillParams{
			RunlenMax:  16,
			RunlenMin:  4,
			WlenMaxMiB: 32,
		},
		LeafComp: LeafCompParams{
			RunlenMax: 8,
			JoinPct:   33,
			SplitKeys: 250_000_000,
		},
		LeafLen: LeafLenParams{
			RunlenMax: 16,
			RunlenMin: 4,
			Idlec:     4,
			Idlem:     5,
		},
		LscatRunlenMax: 4,
		LscatHWM:       4,
		QThreads:       [7]int{2, 2, 2, 1, 1, 1, 1},
		KvsetIter:      KvsetIterMMapCache,
		GCPct:          50,
	}
}

// Load reads and parses a YAML configuration file, applying defaults
// for any field the file leaves zero-valued by first unmarshaling
// on top of Default().
func Load(path string) (Params, error) {
	p := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return p, nil
}

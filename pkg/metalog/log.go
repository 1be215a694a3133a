package metalog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketRoutes      = []byte("routes")
	bucketCompletions = []byte("work_completions")
)

// Completion is one durable record of a finished work item, keyed by
// its monotonic job id.
type Completion struct {
	JobID       uint64 `json:"job_id"`
	TreeID      string `json:"tree_id"`
	NodeID      string `json:"node_id"`
	Category    string `json:"category"`
	Rule        string `json:"rule"`
	CompletedAt int64  `json:"completed_at_unix_nano"`
	Success     bool   `json:"success"`
}

// Log wraps a bbolt database with the two buckets the scheduler's
// tree collaborator needs: an edge-key routing map and a durable
// journal of completed work. compact_status_get does not read the
// journal, and nothing outside this package's tests writes to it.
type Log struct {
	db *bolt.DB
}

// Open creates or opens a metadata log at dataDir/csched-metalog.db.
func Open(dataDir string) (*Log, error) {
	dbPath := filepath.Join(dataDir, "csched-metalog.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("metalog: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRoutes, bucketCompletions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("metalog: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// PutRoute persists an edge-key → node-id mapping. Implements
// cn.RouteStore.
func (l *Log) PutRoute(edgeKey []byte, nodeID string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).Put(edgeKey, []byte(nodeID))
	})
}

// DeleteRoute removes an edge-key mapping. Implements cn.RouteStore.
func (l *Log) DeleteRoute(edgeKey []byte) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoutes).Delete(edgeKey)
	})
}

// LookupRoute returns the node id stored for an edge key, or "" if
// none exists. Used only by tests and the demo CLI to verify
// durability across restarts — the live route map is pkg/cn's
// in-memory RouteMap.
func (l *Log) LookupRoute(edgeKey []byte) (string, error) {
	var nodeID string
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRoutes).Get(edgeKey)
		if v != nil {
			nodeID = string(v)
		}
		return nil
	})
	return nodeID, err
}

// RecordCompletion journals a finished work item keyed by job id.
func (l *Log) RecordCompletion(c Completion) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, c.JobID)
		return tx.Bucket(bucketCompletions).Put(key, data)
	})
}

// RecentCompletions returns up to limit of the most recently recorded
// completions, newest first.
func (l *Log) RecentCompletions(limit int) ([]Completion, error) {
	var out []Completion
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCompletions).Cursor()
		count := 0
		for k, v := c.Last(); k != nil && count < limit; k, v = c.Prev() {
			var rec Completion
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			count++
		}
		return nil
	})
	return out, err
}

// CompletionCount returns the total number of completions journaled.
func (l *Log) CompletionCount() (int, error) {
	count := 0
	err := l.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketCompletions).Stats().KeyN
		return nil
	})
	return count, err
}

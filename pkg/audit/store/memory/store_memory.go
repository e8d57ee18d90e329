// Package memory provides an in-memory audit record store for tests and
// single-process setups.
package memory

import (
	"context"
	"sort"
	"sync"

	"chronicle/pkg/audit"
)

// Store keeps records in insertion order behind a mutex. Records are
// append-only; reads return copies.
type Store struct {
	mu      sync.RWMutex
	records []audit.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Clear drops all records. Test helper.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// AppendBatch stores all records of one commit.
func (s *Store) AppendBatch(_ context.Context, records []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// ListByCorrelation returns every record stamped with correlationUID.
func (s *Store) ListByCorrelation(_ context.Context, correlationUID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, r := range s.records {
		if r.CorrelationUID == correlationUID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListByEntity returns every record of every correlation where entityUID
// appears in a non-Detail record. UnmodifiedRoot rows qualify a correlation.
func (s *Store) ListByEntity(_ context.Context, entityUID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qualified := make(map[string]struct{})
	for _, r := range s.records {
		if r.TypeCode != audit.TypeDetail && r.EntityUID == entityUID {
			qualified[r.CorrelationUID] = struct{}{}
		}
	}

	var out []audit.Record
	for _, r := range s.records {
		if _, ok := qualified[r.CorrelationUID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListRecent returns the records of the limit most recent commits, whole
// correlations only, newest commit first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}

	type commit struct {
		correlationUID string
		records        []audit.Record
	}

	byCorrelation := make(map[string]int)
	var commits []commit
	for _, r := range s.records {
		idx, seen := byCorrelation[r.CorrelationUID]
		if !seen {
			idx = len(commits)
			byCorrelation[r.CorrelationUID] = idx
			commits = append(commits, commit{correlationUID: r.CorrelationUID})
		}
		commits[idx].records = append(commits[idx].records, r)
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].records[0].OccurredAt.After(commits[j].records[0].OccurredAt)
	})

	if len(commits) > limit {
		commits = commits[:limit]
	}

	var out []audit.Record
	for _, c := range commits {
		out = append(out, c.records...)
	}
	return out, nil
}

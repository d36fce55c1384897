package kpistore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/core/calendar"
	"github.com/huangsam/kpi/schema"
)

// MemoryStore keeps KPI records in process. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []schema.Record
	nextID  int64
	closed  bool
}

var _ contract.RecordStore = &MemoryStore{} // Compile-time check

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

var errStoreClosed = errors.New("store is closed")

// Insert implements the RecordStore interface.
func (ms *MemoryStore) Insert(_ context.Context, r *schema.Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return errStoreClosed
	}

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	r.ID = ms.nextID
	r.Synthetic = false
	ms.nextID++

	stored := r.Clone()
	stored.CreatedAt = stored.CreatedAt.UTC()
	stored.UpdatedAt = stored.UpdatedAt.UTC()
	ms.records = append(ms.records, stored)
	return nil
}

// Find implements the RecordStore interface.
func (ms *MemoryStore) Find(_ context.Context, filter schema.RecordFilter) ([]schema.Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, errStoreClosed
	}
	return ms.find(filter)
}

func (ms *MemoryStore) find(filter schema.RecordFilter) ([]schema.Record, error) {
	var latest map[string]int64
	if filter.Interval != "" {
		if !filter.Interval.Valid() {
			return nil, fmt.Errorf("%w: %q", schema.ErrUnsupportedInterval, filter.Interval)
		}
		// Highest ID per (key, bucket) among rows matching the key filter.
		latest = make(map[string]int64)
		for _, r := range ms.records {
			if filter.Key != "" && r.Key != filter.Key {
				continue
			}
			group := r.Key + "\x00" + calendar.MustBucketKey(r.CreatedAt, filter.Interval)
			latest[group] = max(latest[group], r.ID)
		}
	}

	var out []schema.Record
	for _, r := range ms.records {
		if filter.Key != "" && r.Key != filter.Key {
			continue
		}
		if latest != nil && latest[r.Key+"\x00"+calendar.MustBucketKey(r.CreatedAt, filter.Interval)] != r.ID {
			continue
		}
		if !inRange(r.CreatedAt, filter.Start, filter.End) {
			continue
		}
		out = append(out, r.Clone())
	}

	slices.SortStableFunc(out, func(a, b schema.Record) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if filter.Descending {
			return -c
		}
		return c
	})
	return out, nil
}

func inRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}

// Count implements the RecordStore interface.
func (ms *MemoryStore) Count(ctx context.Context, filter schema.RecordFilter) (int64, error) {
	records, err := ms.Find(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// Delete implements the RecordStore interface.
func (ms *MemoryStore) Delete(_ context.Context, id int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return errStoreClosed
	}

	idx := slices.IndexFunc(ms.records, func(r schema.Record) bool { return r.ID == id })
	if idx < 0 {
		return fmt.Errorf("delete record %d: %w", id, schema.ErrNotFound)
	}
	ms.records = slices.Delete(ms.records, idx, idx+1)
	return nil
}

// Status implements the RecordStore interface.
func (ms *MemoryStore) Status(_ context.Context) (schema.StoreStatus, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	status := schema.StoreStatus{
		Backend:       string(schema.MemoryBackend),
		Connected:     !ms.closed,
		TotalRecords:  int64(len(ms.records)),
		RecordsPerKey: make(map[string]int64),
	}
	for i, r := range ms.records {
		status.RecordsPerKey[r.Key]++
		if i == 0 || r.CreatedAt.Before(status.OldestRecord) {
			status.OldestRecord = r.CreatedAt
		}
		if i == 0 || r.CreatedAt.After(status.NewestRecord) {
			status.NewestRecord = r.CreatedAt
		}
	}
	status.DistinctKeys = int64(len(status.RecordsPerKey))
	return status, nil
}

// Close implements the RecordStore interface.
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	return nil
}

package schema

import "time"

// RecordFilter describes which records a store query returns.
type RecordFilter struct {
	Key        string     // Equality on key; empty matches every key
	Start      *time.Time // Inclusive lower bound on CreatedAt
	End        *time.Time // Inclusive upper bound on CreatedAt
	Interval   Interval   // Keep only the highest ID per (key, bucket); empty disables it
	Descending bool       // Newest first instead of oldest first
}

// StoreStatus represents status information about a KPI record store.
type StoreStatus struct {
	Backend        string           `json:"backend"`
	Connected      bool             `json:"connected"`
	TotalRecords   int64            `json:"total_records"`
	DistinctKeys   int64            `json:"distinct_keys"`
	OldestRecord   time.Time        `json:"oldest_record"`
	NewestRecord   time.Time        `json:"newest_record"`
	RecordsPerKey  map[string]int64 `json:"records_per_key"`
	TableSizeBytes int64            `json:"table_size_bytes"`
}

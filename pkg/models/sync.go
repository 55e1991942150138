package models

import "github.com/ekaya-inc/ekaya-fkgraph/pkg/jsonutil"

// FkDependency is the set of foreign ids one FK field references across a
// batch of records. UniqueIDs is deduplicated and sorted; TotalReferences
// counts raw occurrences and may exceed len(UniqueIDs).
type FkDependency struct {
	Field           string    `json:"field"`
	FieldID         int64     `json:"field_id"`
	FieldType       FieldType `json:"field_type"`
	TargetModel     string    `json:"target_model"`
	TargetModelID   int64     `json:"target_model_id"`
	UniqueIDs       []int64   `json:"unique_ids"`
	TotalReferences int       `json:"total_references"`
}

// SyncedTargetsResult partitions candidate ids by existence in the store.
// Both slices keep the order of the input ids.
type SyncedTargetsResult struct {
	Synced  []int64 `json:"synced"`
	Missing []int64 `json:"missing"`
}

// SyncRequest restricts a single-model sync to a domain filter or explicit ids.
// When IDs is non-empty the filter is ignored.
type SyncRequest struct {
	Domain []any   `json:"domain,omitempty"`
	IDs    []int64 `json:"ids,omitempty"`
}

// SyncResult is what a single-model sync reports back. Records are the
// freshly fetched source records; the cascade expands from them.
type SyncResult struct {
	RecordsSynced int      `json:"records_synced"`
	IDs           []int64  `json:"ids"`
	Records       []Record `json:"-"`
}

// RecordID extracts the "id" of a source record.
func RecordID(r Record) (int64, bool) {
	id, ok := r["id"]
	if !ok {
		return 0, false
	}
	return jsonutil.FlexibleInt64(id)
}

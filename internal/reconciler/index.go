package reconciler

import (
	"location-sync-service/internal/models"
)

// RecordIndex maps business keys to records, keeping creation order so that
// the first record wins when a key is duplicated
type RecordIndex struct {
	// ByKey maps a business key to every record carrying it
	ByKey map[string][]*models.Record

	// All holds the indexed records in insertion order
	All []*models.Record
}

// NewRecordIndex creates an index over records
func NewRecordIndex(records []*models.Record) *RecordIndex {
	index := &RecordIndex{
		ByKey: make(map[string][]*models.Record, len(records)),
		All:   make([]*models.Record, 0, len(records)),
	}
	for _, r := range records {
		index.Add(r)
	}
	return index
}

// Add appends a record to the index
func (ri *RecordIndex) Add(r *models.Record) {
	ri.ByKey[r.Key] = append(ri.ByKey[r.Key], r)
	ri.All = append(ri.All, r)
}

// First returns the earliest record with key
func (ri *RecordIndex) First(key string) (*models.Record, bool) {
	records := ri.ByKey[key]
	if len(records) == 0 {
		return nil, false
	}
	return records[0], true
}

// Contains reports whether any record has key
func (ri *RecordIndex) Contains(key string) bool {
	return len(ri.ByKey[key]) > 0
}

// Len returns the number of indexed records
func (ri *RecordIndex) Len() int {
	return len(ri.All)
}

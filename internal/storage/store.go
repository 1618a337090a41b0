package storage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Record is the flat key/value form of one potential instance.
type Record struct {
	ID      string            `json:"id"`
	Kind    string            `json:"kind"`
	Created time.Time         `json:"created"`
	Fields  map[string]string `json:"fields"`
}

// NewRecord returns an empty record of kind with a fresh id.
func NewRecord(kind string) Record {
	return Record{
		ID:      uuid.NewString(),
		Kind:    kind,
		Created: time.Now().UTC(),
		Fields:  make(map[string]string),
	}
}

// Keys returns the field keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store persists potential records.
type Store interface {
	Init(ctx context.Context) error
	SaveRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, id string) (Record, bool, error)
	ListRecords(ctx context.Context) ([]Record, error)
	DeleteRecord(ctx context.Context, id string) error
}

package apikey

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// StaticKeyStore serves records from an in-memory map. It backs the file
// store and is handy in tests.
type StaticKeyStore struct {
	records map[string]*Record
}

// NewStaticKeyStore indexes the given records by prefix.
func NewStaticKeyStore(records []Record) *StaticKeyStore {
	m := make(map[string]*Record, len(records))
	for i := range records {
		rec := records[i]
		m[rec.Prefix] = &rec
	}
	return &StaticKeyStore{records: m}
}

// Lookup returns the record for a prefix, or nil if unknown.
func (s *StaticKeyStore) Lookup(ctx context.Context, prefix string) (*Record, error) {
	return s.records[prefix], nil
}

// NewFileKeyStore loads a JSON array of records from disk. The file is read
// once at startup; key rotation is a process restart.
func NewFileKeyStore(path string) (*StaticKeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}

	return NewStaticKeyStore(records), nil
}

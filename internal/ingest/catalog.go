package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadSongFile parses one song catalog file.
//
// A catalog file holds exactly one JSON object. Trailing whitespace after the
// object is tolerated; a second object, a non-object value, or a record that
// fails validation is reported as ErrMalformedRecord.
func ReadSongFile(path string) (*SongRecord, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from directory scan, not user input
	if err != nil {
		return nil, fmt.Errorf("failed to open song file %s: %w", path, err)
	}

	defer func() {
		_ = f.Close()
	}()

	dec := json.NewDecoder(f)

	var record SongRecord
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, path, err)
	}

	// Exactly one record per file. Anything after the first object means the
	// file does not match the catalog contract.
	if dec.More() {
		return nil, fmt.Errorf("%w: %s: more than one record in catalog file", ErrMalformedRecord, path)
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: trailing data after record", ErrMalformedRecord, path)
	}

	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &record, nil
}

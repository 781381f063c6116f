package storage

import (
	"fmt"
	"io"
	"time"

	"rulebase/core"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotFormatVersion is bumped when the snapshot layout changes
const snapshotFormatVersion = 1

// Snapshot is a portable dump of every stored rule version.
type Snapshot struct {
	FormatVersion int          `msgpack:"format_version"`
	CreatedAt     time.Time    `msgpack:"created_at"`
	Rules         []*core.Rule `msgpack:"rules"`
}

// WriteSnapshot encodes rules as msgpack to w. Rule fields use their json names.
func WriteSnapshot(w io.Writer, rules []*core.Rule) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	snap := Snapshot{
		FormatVersion: snapshotFormatVersion,
		CreatedAt:     time.Now().UTC(),
		Rules:         rules,
	}
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.FormatVersion != snapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version %d", snap.FormatVersion)
	}
	return &snap, nil
}

package kelo

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// DBStats is a point-in-time snapshot of a database's ambient metrics,
// exported for diagnostics and monitoring; not part of the core
// read/write path.
type DBStats struct {
	OccupiedBytes     uint64 `json:"occupied_bytes"`
	PopulatedPrefixes int    `json:"populated_prefixes"`
	CollidedPrefixes  int    `json:"collided_prefixes"`
	JournalEras       int    `json:"journal_eras"`
	DataFileSize      int64  `json:"data_file_size"`
	MetaFileSize      int64  `json:"meta_file_size"`
}

// Stats gathers a DBStats snapshot under the database's lock.
func (db *DB) Stats() (DBStats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return DBStats{}, ErrClosed
	}

	dataInfo, err := os.Stat(filepath.Join(db.dir, dataFileName))
	if err != nil {
		return DBStats{}, &IoError{Cause: err}
	}
	metaInfo, err := os.Stat(filepath.Join(db.dir, metaFileName))
	if err != nil {
		return DBStats{}, &IoError{Cause: err}
	}

	return DBStats{
		OccupiedBytes:     db.meta.OccupiedBytes,
		PopulatedPrefixes: len(db.meta.Prefixes.Iter()),
		CollidedPrefixes:  len(db.meta.Collided.Iter()),
		JournalEras:       db.journal.Len(),
		DataFileSize:      dataInfo.Size(),
		MetaFileSize:      metaInfo.Size(),
	}, nil
}

// MarshalJSON-friendly encode/decode helpers for external tooling that
// wants to log or ship a DBStats snapshot.
func (s DBStats) Encode() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	return b, nil
}

func decodeDBStats(b []byte) (DBStats, error) {
	var s DBStats
	if err := json.Unmarshal(b, &s); err != nil {
		return DBStats{}, &IoError{Cause: err}
	}
	return s, nil
}

package kelo

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
)

const dataFileName = "data.db"
const metaFileName = "meta.db"

// DB is a handle on one database directory. All public operations are
// sequential under a single mutex (spec.md §5): one handle, one
// goroutine's worth of work at a time.
type DB struct {
	dir  string
	lock *fileLock

	dataFile *os.File
	metaFile *os.File
	dataMap  mmapHandle
	metaMap  mmapHandle

	journal    *Journal
	meta       *Metadata
	cfg        resolvedConfig
	collisions map[uint32]*collisionSidecar

	mu     sync.Mutex
	closed bool
}

// Create makes a brand-new database directory and returns an open
// handle to it.
func Create(dir string, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IoError{Cause: err}
	}
	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}

	cfg := resolveConfig(opts)

	if err := createZeroFile(filepath.Join(dir, dataFileName), cfg.initialDBSize); err != nil {
		lock.release()
		return nil, err
	}
	meta := newMetadata(cfg.numPrefixes)
	if err := createZeroFile(filepath.Join(dir, metaFileName), cfg.metadataLen); err != nil {
		lock.release()
		return nil, err
	}
	if err := writeMetaFile(dir, meta); err != nil {
		lock.release()
		return nil, err
	}

	db, err := openInternal(dir, cfg, lock)
	if err != nil {
		lock.release()
		return nil, err
	}
	return db, nil
}

// Open opens an existing database directory.
func Open(dir string, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}
	cfg := resolveConfig(opts)
	db, err := openInternal(dir, cfg, lock)
	if err != nil {
		lock.release()
		return nil, err
	}
	return db, nil
}

func createZeroFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &IoError{Cause: err}
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return &IoError{Cause: err}
	}
	return nil
}

func writeMetaFile(dir string, meta *Metadata) error {
	f, err := os.OpenFile(filepath.Join(dir, metaFileName), os.O_RDWR, 0o644)
	if err != nil {
		return &IoError{Cause: err}
	}
	defer f.Close()
	if _, err := f.WriteAt(meta.Encode(), 0); err != nil {
		return &IoError{Cause: err}
	}
	return nil
}

// openInternal maps data.db and meta.db, replays any pending flush file
// (I5), opens the journal, and opens any collision sidecars the
// metadata's collided bitmap already references.
func openInternal(dir string, cfg resolvedConfig, lock *fileLock) (*DB, error) {
	dataFile, err := os.OpenFile(filepath.Join(dir, dataFileName), os.O_RDWR, 0o644)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	dataMap, err := mmapFile(int(dataFile.Fd()), cfg.initialDBSize, true)
	if err != nil {
		dataFile.Close()
		return nil, err
	}

	metaFile, err := os.OpenFile(filepath.Join(dir, metaFileName), os.O_RDWR, 0o644)
	if err != nil {
		dataMap.unmap()
		dataFile.Close()
		return nil, &IoError{Cause: err}
	}
	metaMap, err := mmapFile(int(metaFile.Fd()), cfg.metadataLen, true)
	if err != nil {
		metaFile.Close()
		dataMap.unmap()
		dataFile.Close()
		return nil, err
	}

	var meta *Metadata
	if hasFlushFile(dir) {
		cfg.logger.Warn("replaying pending flush file found on open", "dir", dir)
		meta, err = applyFlushFile(dir, dataMap, metaMap, cfg.numPrefixes)
	} else {
		meta, err = decodeMetadata(metaMap.data, cfg.numPrefixes)
	}
	if err != nil {
		metaMap.unmap()
		metaFile.Close()
		dataMap.unmap()
		dataFile.Close()
		return nil, err
	}

	journal, err := openJournal(dir)
	if err != nil {
		metaMap.unmap()
		metaFile.Close()
		dataMap.unmap()
		dataFile.Close()
		return nil, err
	}
	cfg.logger.Debug("journal opened", "dir", dir, "eras", journal.Len())

	collisions := make(map[uint32]*collisionSidecar)
	for _, p := range meta.Collided.Iter() {
		cfg.logger.Debug("reopening collision sidecar", "prefix", p)
		sc, err := openCollisionSidecar(dir, p)
		if err != nil {
			journal.close()
			metaMap.unmap()
			metaFile.Close()
			dataMap.unmap()
			dataFile.Close()
			return nil, err
		}
		if sc != nil {
			collisions[p] = sc
		}
	}

	return &DB{
		dir:        dir,
		lock:       lock,
		dataFile:   dataFile,
		metaFile:   metaFile,
		dataMap:    dataMap,
		metaMap:    metaMap,
		journal:    journal,
		meta:       meta,
		cfg:        cfg,
		collisions: collisions,
	}, nil
}

// CreateTransaction returns a fresh, empty transaction sized to this
// database's configured key length.
func (db *DB) CreateTransaction() *Transaction {
	return newTransaction(db.cfg.opts.KeyLen)
}

// Commit validates a staged transaction's value lengths (under
// Constant policy) and durably appends it as a new journal era.
func (db *DB) Commit(tx *Transaction) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if !db.cfg.varLen {
		n := db.cfg.opts.ValueLenPolicy.N
		for _, op := range tx.ops {
			if op.tag == OpInsert && len(op.value) != n {
				return &InvalidValueLenError{Expected: n, Got: len(op.value)}
			}
		}
	}
	return db.journal.Push(tx)
}

// FlushJournal folds up to max (nil = unbounded) of the oldest eras
// into storage, but only once the journal holds more than
// journal_eras unflushed eras (the retention window, spec.md §4.8).
func (db *DB) FlushJournal(max *int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	retained := db.cfg.opts.JournalEras
	if db.journal.Len() <= retained {
		return nil
	}
	toFlush := db.journal.Len() - retained
	if max != nil && *max < toFlush {
		toFlush = *max
	}
	if toFlush <= 0 {
		return nil
	}

	db.cfg.logger.Debug("flushing journal eras into storage", "count", toFlush, "retained", retained)
	eras := db.journal.DrainFront(toFlush)
	for _, e := range eras {
		if err := db.flushEra(e); err != nil {
			return err
		}
		if err := e.delete(); err != nil {
			return err
		}
	}
	return nil
}

// flushEra partitions one era's operations by whether their prefix has
// collided, routes collided operations directly to their sidecars, and
// plans+applies a single flush file for everything else.
func (db *DB) flushEra(e *era) error {
	db.cfg.logger.Debug("flushing era", "index", e.index, "ops", len(e.ops))
	ops := sortOpsByKeyLastWriteWins(e.sortedOps())

	var direct, planned []stagedOp
	for _, op := range ops {
		p := prefixOf(op.key, db.cfg.opts.KeyIndexBits)
		if db.meta.Collided.Has(p) {
			direct = append(direct, op)
		} else {
			planned = append(planned, op)
		}
	}

	for _, op := range direct {
		p := prefixOf(op.key, db.cfg.opts.KeyIndexBits)
		sc, err := db.sidecarFor(p)
		if err != nil {
			return err
		}
		if op.tag == OpDelete {
			if err := sc.delete(op.key); err != nil {
				return err
			}
		} else {
			if err := sc.put(op.key, op.value); err != nil {
				return err
			}
		}
	}

	if len(planned) == 0 {
		return nil
	}

	overwrites, err := planOperations(db.dataMap.data, db.meta, planned, &db.cfg)
	if err != nil {
		return err
	}
	if err := writeFlushFile(db.dir, overwrites, db.meta); err != nil {
		return err
	}
	meta, err := applyFlushFile(db.dir, db.dataMap, db.metaMap, db.cfg.numPrefixes)
	if err != nil {
		return err
	}
	db.meta = meta
	return nil
}

func (db *DB) sidecarFor(p uint32) (*collisionSidecar, error) {
	if sc, ok := db.collisions[p]; ok {
		return sc, nil
	}
	sc, err := createCollisionSidecar(db.dir, p)
	if err != nil {
		return nil, err
	}
	db.collisions[p] = sc
	return sc, nil
}

// Get looks up key: journal first, then the prefix tree / collided
// bitmap, then either the collision sidecar or a storage bucket scan.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if len(key) != db.cfg.opts.KeyLen {
		return nil, &InvalidKeyLenError{Expected: db.cfg.opts.KeyLen, Got: len(key)}
	}

	if lookup := db.journal.Get(key); lookup.found {
		if lookup.tombstone {
			return nil, ErrNotFound
		}
		return lookup.value, nil
	}

	p := prefixOf(key, db.cfg.opts.KeyIndexBits)
	if db.meta.Collided.Has(p) {
		sc, ok := db.collisions[p]
		if !ok {
			return nil, ErrNotFound
		}
		value, tombstoned, found, err := sc.get(key)
		if err != nil {
			return nil, err
		}
		if !found || tombstoned {
			return nil, ErrNotFound
		}
		return value, nil
	}

	if !db.meta.Prefixes.Has(p) {
		return nil, ErrNotFound
	}
	return db.bucketGet(key, p)
}

// bucketGet walks bucket p's region of data.db directly, stopping at
// the first Uninitialized field (true end of bucket) or the first live
// record whose key sorts after the target (I1: ascending order means
// nothing further in the bucket can match). Deleted runs are skipped,
// not treated as a stopping condition, since a bucket may spill live
// records past a reclaimed slot.
func (db *DB) bucketGet(key []byte, prefix uint32) ([]byte, error) {
	fs := int64(fieldSize(db.cfg.fieldBodySize))
	data := db.dataMap.data
	offset := bucketOffset(key, db.cfg.opts.KeyIndexBits, db.cfg.recordOffset)

	for offset+fs <= int64(len(data)) {
		switch data[offset] {
		case headerUninitialized:
			return nil, ErrNotFound

		case headerDeleted:
			end := offset + fs
			for end+fs <= int64(len(data)) && data[end] == headerContinued {
				end += fs
			}
			offset = end

		case headerInserted:
			end := offset + fs
			for end+fs <= int64(len(data)) && data[end] == headerContinued {
				end += fs
			}
			raw := data[offset:end]
			k := extractKey(raw, db.cfg.fieldBodySize, db.cfg.opts.KeyLen)
			switch bytes.Compare(k, key) {
			case 0:
				rec, err := decodeRecord(raw, &db.cfg)
				if err != nil {
					return nil, err
				}
				return rec.Value, nil
			case 1:
				return nil, ErrNotFound
			default:
				offset = end
			}

		default:
			return nil, &InvalidFieldError{Offset: offset, Detail: "invalid field header byte"}
		}
	}
	return nil, ErrNotFound
}

// Close releases the database's file maps and its advisory lock. Safe
// to call once; a closed handle rejects further operations.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, sc := range db.collisions {
		record(sc.close())
	}
	record(db.journal.close())
	record(db.dataMap.sync())
	record(db.dataMap.unmap())
	if err := db.dataFile.Close(); err != nil {
		record(&IoError{Cause: err})
	}
	record(db.metaMap.sync())
	record(db.metaMap.unmap())
	if err := db.metaFile.Close(); err != nil {
		record(&IoError{Cause: err})
	}
	db.lock.release()
	return firstErr
}

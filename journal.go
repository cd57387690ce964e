package kelo

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

// eraOperation is the deduped, per-key view a journal era's in-memory
// map holds: either an insert carrying a value or a tombstone.
type eraOperation struct {
	tombstone bool
	value     []byte
}

// era is one immutable, checksummed transaction log file, memory-mapped
// read-only for its lifetime. For an era opened from disk, its
// in-memory map holds values that alias the mmap directly; an era
// created by Push holds the committed transaction's own value copies.
// Map keys are plain Go string copies (see DESIGN.md for why that
// departs from the original's raw pointer aliasing).
type era struct {
	index int64
	path  string
	file  *os.File
	mmap  mmapHandle
	ops   map[string]eraOperation
	keys  []string // ascending, for flush planning
}

func eraPath(dir string, index int64) string {
	return filepath.Join(dir, strconv.FormatInt(index, 10)+".era")
}

// openEra opens and mmaps an existing era file, verifying its checksum
// and building its per-key map.
func openEra(dir string, index int64) (*era, error) {
	path := eraPath(dir, index)
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IoError{Cause: err}
	}
	if info.Size() == 0 {
		f.Close()
		return nil, &CorruptedJournalError{Path: path, Detail: "empty era file"}
	}
	mm, err := mmapFile(int(f.Fd()), info.Size(), false)
	if err != nil {
		f.Close()
		return nil, err
	}
	payload, ok := verifyFramed(mm.data)
	if !ok {
		mm.unmap()
		f.Close()
		return nil, &CorruptedJournalError{Path: path, Detail: "checksum mismatch"}
	}
	stagedOps, err := decodeOperationLog(payload)
	if err != nil {
		mm.unmap()
		f.Close()
		return nil, err
	}
	e := &era{index: index, path: path, file: f, mmap: mm}
	e.buildMap(stagedOps)
	return e, nil
}

// createEra writes, fsyncs, and mmaps a brand-new era file for tx.
func createEra(dir string, index int64, tx *Transaction) (*era, error) {
	path := eraPath(dir, index)
	payload := tx.encode()
	full := framed(payload)
	if err := atomic.WriteFile(path, bytes.NewReader(full)); err != nil {
		return nil, &IoError{Cause: err}
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	mm, err := mmapFile(int(f.Fd()), int64(len(full)), false)
	if err != nil {
		f.Close()
		return nil, err
	}
	e := &era{index: index, path: path, file: f, mmap: mm}
	e.buildMap(tx.ops)
	return e, nil
}

func (e *era) buildMap(ops []stagedOp) {
	e.ops = make(map[string]eraOperation, len(ops))
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		k := string(op.key)
		if !seen[k] {
			e.keys = append(e.keys, k)
			seen[k] = true
		}
		if op.tag == OpDelete {
			e.ops[k] = eraOperation{tombstone: true}
		} else {
			e.ops[k] = eraOperation{value: op.value}
		}
	}
	sort.Strings(e.keys)
}

func (e *era) get(key []byte) (eraOperation, bool) {
	op, ok := e.ops[string(key)]
	return op, ok
}

// sortedOps returns this era's deduped operations sorted by key, the
// form the flush planner consumes.
func (e *era) sortedOps() []stagedOp {
	out := make([]stagedOp, 0, len(e.keys))
	for _, k := range e.keys {
		op := e.ops[k]
		if op.tombstone {
			out = append(out, stagedOp{tag: OpDelete, key: []byte(k)})
		} else {
			out = append(out, stagedOp{tag: OpInsert, key: []byte(k), value: op.value})
		}
	}
	return out
}

func (e *era) close() error {
	var firstErr error
	if err := e.mmap.unmap(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.file != nil {
		if err := e.file.Close(); err != nil && firstErr == nil {
			firstErr = &IoError{Cause: err}
		}
	}
	return firstErr
}

func (e *era) delete() error {
	if err := e.close(); err != nil {
		return err
	}
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return &IoError{Cause: err}
	}
	return nil
}

// Journal is the append-only ordered sequence of era files. It answers
// point reads from the in-memory per-era maps and hands flush() the
// oldest eras to fold into storage.
type Journal struct {
	dir       string
	eras      []*era // ascending by index, front = oldest
	nextIndex int64
}

// openJournal lists, sorts, and verifies every *.era file in dir.
func openJournal(dir string) (*Journal, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	var indices []int64
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasSuffix(name, ".era") {
			continue
		}
		numPart := strings.TrimSuffix(name, ".era")
		n, err := strconv.ParseInt(numPart, 10, 64)
		if err != nil {
			return nil, &ParseIntError{Cause: err}
		}
		indices = append(indices, n)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	j := &Journal{dir: dir}
	for _, n := range indices {
		e, err := openEra(dir, n)
		if err != nil {
			j.closeAll()
			return nil, err
		}
		j.eras = append(j.eras, e)
		if n+1 > j.nextIndex {
			j.nextIndex = n + 1
		}
	}
	return j, nil
}

func (j *Journal) closeAll() {
	for _, e := range j.eras {
		e.close()
	}
}

// Push durably appends tx as a new era and enqueues it.
func (j *Journal) Push(tx *Transaction) error {
	e, err := createEra(j.dir, j.nextIndex, tx)
	if err != nil {
		return err
	}
	j.eras = append(j.eras, e)
	j.nextIndex++
	return nil
}

// journalLookup is the outcome of a Get against the journal.
type journalLookup struct {
	found     bool
	tombstone bool
	value     []byte
}

// Get searches eras from newest to oldest; the first hit wins.
func (j *Journal) Get(key []byte) journalLookup {
	for i := len(j.eras) - 1; i >= 0; i-- {
		if op, ok := j.eras[i].get(key); ok {
			return journalLookup{found: true, tombstone: op.tombstone, value: op.value}
		}
	}
	return journalLookup{}
}

// Len returns the number of eras currently queued.
func (j *Journal) Len() int { return len(j.eras) }

// DrainFront removes and returns the k oldest eras.
func (j *Journal) DrainFront(k int) []*era {
	if k > len(j.eras) {
		k = len(j.eras)
	}
	out := j.eras[:k]
	j.eras = j.eras[k:]
	return out
}

// mergedSortedKeys returns the union of keys across all current eras,
// ascending, with newest-era-wins dedup, for the merged iterator.
func (j *Journal) mergedSortedKeys() []string {
	latest := make(map[string]eraOperation)
	for _, e := range j.eras { // oldest to newest: later overwrites win
		for _, k := range e.keys {
			latest[k] = e.ops[k]
		}
	}
	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (j *Journal) mergedGet(key string) (eraOperation, bool) {
	var found eraOperation
	ok := false
	for _, e := range j.eras {
		if op, present := e.ops[key]; present {
			found = op
			ok = true
		}
	}
	return found, ok
}

func (j *Journal) close() error {
	var firstErr error
	for _, e := range j.eras {
		if err := e.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

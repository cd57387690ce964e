package kelo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFlushFileEncodeDecodeRoundTrip(t *testing.T) {
	meta := newMetadata(256)
	meta.InsertRecord(3, 10)

	overwrites := []overwriteEntry{
		{offset: 0, data: []byte("hello")},
		{offset: 100, data: []byte("world!")},
	}

	body := encodeFlushBody(overwrites, meta)
	gotEntries, gotMeta, err := decodeFlushBody(body, 256)
	if err != nil {
		t.Fatalf("decodeFlushBody: %v", err)
	}
	if len(gotEntries) != 2 || gotEntries[0].offset != 0 || string(gotEntries[0].data) != "hello" {
		t.Fatalf("entries = %+v", gotEntries)
	}
	if gotMeta.OccupiedBytes != 10 {
		t.Fatalf("OccupiedBytes = %d, want 10", gotMeta.OccupiedBytes)
	}
}

func TestWriteAndApplyFlushFileIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	numPrefixes := uint64(256)
	dataPath := filepath.Join(dir, "data.db")
	if err := os.WriteFile(dataPath, make([]byte, 64), 0o644); err != nil {
		t.Fatalf("seed data.db: %v", err)
	}
	metaLen := metadataLen(8)
	metaPath := filepath.Join(dir, "meta.db")
	if err := os.WriteFile(metaPath, make([]byte, metaLen), 0o644); err != nil {
		t.Fatalf("seed meta.db: %v", err)
	}

	dataFile, err := os.OpenFile(dataPath, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open data.db: %v", err)
	}
	defer dataFile.Close()
	dataMap, err := mmapFile(int(dataFile.Fd()), 64, true)
	if err != nil {
		t.Fatalf("mmap data.db: %v", err)
	}
	defer dataMap.unmap()

	metaFile, err := os.OpenFile(metaPath, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open meta.db: %v", err)
	}
	defer metaFile.Close()
	metaMap, err := mmapFile(int(metaFile.Fd()), metaLen, true)
	if err != nil {
		t.Fatalf("mmap meta.db: %v", err)
	}
	defer metaMap.unmap()

	meta := newMetadata(numPrefixes)
	meta.InsertRecord(0, 5)
	overwrites := []overwriteEntry{{offset: 0, data: []byte("abcde")}}

	if err := writeFlushFile(dir, overwrites, meta); err != nil {
		t.Fatalf("writeFlushFile: %v", err)
	}
	if !hasFlushFile(dir) {
		t.Fatalf("expected db.flush to exist")
	}

	if _, err := applyFlushFile(dir, dataMap, metaMap, numPrefixes); err != nil {
		t.Fatalf("applyFlushFile: %v", err)
	}
	if hasFlushFile(dir) {
		t.Fatalf("expected db.flush to be deleted after apply")
	}
	if string(dataMap.data[:5]) != "abcde" {
		t.Fatalf("data.db = %q, want abcde prefix", dataMap.data[:5])
	}

	// Re-stage and re-apply the identical flush file: memcpy application
	// must be idempotent (P4).
	if err := writeFlushFile(dir, overwrites, meta); err != nil {
		t.Fatalf("writeFlushFile (second): %v", err)
	}
	if _, err := applyFlushFile(dir, dataMap, metaMap, numPrefixes); err != nil {
		t.Fatalf("applyFlushFile (second): %v", err)
	}
	if string(dataMap.data[:5]) != "abcde" {
		t.Fatalf("data.db after second apply = %q, want unchanged abcde prefix", dataMap.data[:5])
	}
}

func TestApplyFlushFileRejectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, flushFileName)
	if err := os.WriteFile(path, []byte("not a valid checksum frame"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := applyFlushFile(dir, mmapHandle{data: make([]byte, 64)}, mmapHandle{data: make([]byte, 64)}, 256); err == nil {
		t.Fatalf("expected CorruptedFlushError")
	}
}

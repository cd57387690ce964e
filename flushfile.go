package kelo

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

const flushFileName = "db.flush"

// encodeFlushBody serializes the planner's overwrite entries as a
// sequence of (offset: u64 LE, len: u32 LE, bytes[len]) instructions,
// followed by the new serialized Metadata (spec.md §4.5, §3).
func encodeFlushBody(overwrites []overwriteEntry, meta *Metadata) []byte {
	var buf bytes.Buffer
	var u64 [8]byte
	var u32 [4]byte
	for _, e := range overwrites {
		binary.LittleEndian.PutUint64(u64[:], uint64(e.offset))
		buf.Write(u64[:])
		binary.LittleEndian.PutUint32(u32[:], uint32(len(e.data)))
		buf.Write(u32[:])
		buf.Write(e.data)
	}
	buf.Write(meta.Encode())
	return buf.Bytes()
}

// decodeFlushBody parses a flush file's body back into its overwrite
// entries and trailing metadata bytes.
func decodeFlushBody(body []byte, numPrefixes uint64) ([]overwriteEntry, *Metadata, error) {
	metaLen := int(metadataLen64(numPrefixes))
	if len(body) < metaLen {
		return nil, nil, &CorruptedFlushError{Detail: "flush body shorter than one metadata record"}
	}
	instrBytes := body[:len(body)-metaLen]
	metaBytes := body[len(body)-metaLen:]

	meta, err := decodeMetadata(metaBytes, numPrefixes)
	if err != nil {
		return nil, nil, err
	}

	var entries []overwriteEntry
	for len(instrBytes) > 0 {
		if len(instrBytes) < 12 {
			return nil, nil, &CorruptedFlushError{Detail: "truncated overwrite instruction header"}
		}
		offset := int64(binary.LittleEndian.Uint64(instrBytes[:8]))
		length := binary.LittleEndian.Uint32(instrBytes[8:12])
		instrBytes = instrBytes[12:]
		if uint32(len(instrBytes)) < length {
			return nil, nil, &CorruptedFlushError{Detail: "truncated overwrite instruction body"}
		}
		entries = append(entries, overwriteEntry{offset: offset, data: instrBytes[:length]})
		instrBytes = instrBytes[length:]
	}
	return entries, meta, nil
}

func metadataLen64(numPrefixes uint64) int64 {
	bitmapLen := int64(bitsetByteLen(numPrefixes))
	return 2 + 8 + 2*bitmapLen
}

// writeFlushFile stages overwrites+meta as SHA3-256(body)‖body in
// db.flush, durably (write-to-temp, fsync, rename), before any byte of
// data.db is touched.
func writeFlushFile(dir string, overwrites []overwriteEntry, meta *Metadata) error {
	body := encodeFlushBody(overwrites, meta)
	full := framed(body)
	path := filepath.Join(dir, flushFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(full)); err != nil {
		return &IoError{Cause: err}
	}
	return nil
}

// hasFlushFile reports whether a pending flush file exists.
func hasFlushFile(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, flushFileName))
	return err == nil
}

// applyFlushFile reads, verifies, and applies a pending db.flush into
// dataMap/metaMap, fsyncs both, then deletes the flush file. Idempotent:
// each overwrite is a plain memcpy, so repeated application (e.g. after
// a crash mid-apply) yields the same result (P4, P9, P10).
func applyFlushFile(dir string, dataMap, metaMap mmapHandle, numPrefixes uint64) (*Metadata, error) {
	path := filepath.Join(dir, flushFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	body, ok := verifyFramed(raw)
	if !ok {
		return nil, &CorruptedFlushError{Path: path, Detail: "checksum mismatch"}
	}
	entries, meta, err := decodeFlushBody(body, numPrefixes)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.offset < 0 || e.offset+int64(len(e.data)) > int64(len(dataMap.data)) {
			return nil, &IoError{Cause: &InvalidFieldError{Offset: e.offset, Detail: "overwrite instruction exceeds data file bounds"}}
		}
		copy(dataMap.data[e.offset:], e.data)
	}
	metaBytes := meta.Encode()
	copy(metaMap.data[:len(metaBytes)], metaBytes)

	if err := dataMap.sync(); err != nil {
		return nil, err
	}
	if err := metaMap.sync(); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, &IoError{Cause: err}
	}
	return meta, nil
}

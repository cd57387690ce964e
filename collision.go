package kelo

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// collisionTombstoneLen marks a deleted key in the append-only
// collision sidecar: a zero-length value. Since value_len is always
// recorded, a zero-length value is an unambiguous, self-describing
// tombstone distinct from any real value (spec.md §4.5's "empty/
// tombstone value" convention).
const collisionTombstoneLen = 0

func collisionFilePath(dir string, prefix uint32) string {
	return filepath.Join(dir, fmt.Sprintf("collision-%d.db", prefix))
}

// collisionSidecar is the append-only (key_len, key, value_len, value)
// log backing one collided prefix, grounded directly on
// original_source/paritydb/src/collision.rs.
type collisionSidecar struct {
	prefix uint32
	path   string
	file   *os.File
	bloom  *collisionBloom
}

func createCollisionSidecar(dir string, prefix uint32) (*collisionSidecar, error) {
	path := collisionFilePath(dir, prefix)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	return &collisionSidecar{prefix: prefix, path: path, file: f, bloom: newCollisionBloom()}, nil
}

func openCollisionSidecar(dir string, prefix uint32) (*collisionSidecar, error) {
	path := collisionFilePath(dir, prefix)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	c := &collisionSidecar{prefix: prefix, path: path, file: f, bloom: newCollisionBloom()}
	if err := c.rebuildBloom(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *collisionSidecar) rebuildBloom() error {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return &IoError{Cause: err}
	}
	for {
		key, _, err := readCollisionRecord(c.file)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		c.bloom.add(key)
	}
	return nil
}

// put appends key/value (or a tombstone, if value is nil) to the
// sidecar. Collision files are append-only and never rewritten.
func (c *collisionSidecar) put(key, value []byte) error {
	if _, err := c.file.Seek(0, io.SeekEnd); err != nil {
		return &IoError{Cause: err}
	}
	var buf []byte
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(key)))
	buf = append(buf, u32[:]...)
	buf = append(buf, key...)
	binary.LittleEndian.PutUint32(u32[:], uint32(len(value)))
	buf = append(buf, u32[:]...)
	buf = append(buf, value...)
	if _, err := c.file.Write(buf); err != nil {
		return &IoError{Cause: err}
	}
	c.bloom.add(key)
	return nil
}

func (c *collisionSidecar) delete(key []byte) error {
	return c.put(key, nil)
}

// get scans the sidecar sequentially; the last match wins because the
// file is append-only (newer writes shadow older ones). found reports
// any match; tombstoned reports that the last match is a tombstone, in
// which case value is empty.
func (c *collisionSidecar) get(key []byte) (value []byte, tombstoned bool, found bool, err error) {
	if !c.bloom.mayContain(key) {
		return nil, false, false, nil
	}
	if _, serr := c.file.Seek(0, io.SeekStart); serr != nil {
		return nil, false, false, &IoError{Cause: serr}
	}
	for {
		k, v, rerr := readCollisionRecord(c.file)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, false, false, rerr
		}
		if string(k) == string(key) {
			found = true
			tombstoned = len(v) == collisionTombstoneLen
			value = v
		}
	}
	return value, tombstoned, found, nil
}

// all returns every live (key, value) pair in the sidecar, last write
// per key wins, for compaction bookkeeping and diagnostics.
func (c *collisionSidecar) all() (map[string][]byte, error) {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return nil, &IoError{Cause: err}
	}
	out := make(map[string][]byte)
	for {
		k, v, err := readCollisionRecord(c.file)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(v) == collisionTombstoneLen {
			delete(out, string(k))
			continue
		}
		out[string(k)] = v
	}
	return out, nil
}

func readCollisionRecord(f *os.File) (key, value []byte, err error) {
	var u32 [4]byte
	if _, err = io.ReadFull(f, u32[:]); err != nil {
		return nil, nil, err
	}
	keyLen := binary.LittleEndian.Uint32(u32[:])
	key = make([]byte, keyLen)
	if _, err = io.ReadFull(f, key); err != nil {
		return nil, nil, io.ErrUnexpectedEOF
	}
	if _, err = io.ReadFull(f, u32[:]); err != nil {
		return nil, nil, io.ErrUnexpectedEOF
	}
	valueLen := binary.LittleEndian.Uint32(u32[:])
	value = make([]byte, valueLen)
	if _, err = io.ReadFull(f, value); err != nil {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return key, value, nil
}

func (c *collisionSidecar) close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return &IoError{Cause: err}
	}
	return nil
}

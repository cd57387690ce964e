package kelo

import "encoding/binary"

const metadataDBVersion uint16 = 1

// Metadata is the database-wide header: version, the running
// occupied-byte counter, the prefix-populated bitmap, and the
// collided-prefix bitmap. It is persisted to meta.db, normally via the
// flush file (I5); Compact writes it to meta.db directly when a
// migrated prefix has nothing to reclaim in storage.
type Metadata struct {
	DBVersion     uint16
	OccupiedBytes uint64
	Prefixes      *bitset
	Collided      *bitset
}

func newMetadata(numPrefixes uint64) *Metadata {
	return &Metadata{
		DBVersion: metadataDBVersion,
		Prefixes:  newBitset(numPrefixes),
		Collided:  newBitset(numPrefixes),
	}
}

// metadataLen returns the fixed length, in bytes, of the serialized
// Metadata for a database with the given key_index_bits. Implemented
// symmetrically (ceil on both bitmaps) rather than spec.md's literally
// asymmetric formula; see DESIGN.md Open Question resolution 6.
func metadataLen(keyIndexBits uint) int64 {
	numPrefixes := uint64(1) << keyIndexBits
	bitmapLen := int64(bitsetByteLen(numPrefixes))
	return 2 + 8 + 2*bitmapLen
}

// Encode serializes Metadata to its fixed-length on-disk form.
func (m *Metadata) Encode() []byte {
	out := make([]byte, 0, 10+len(m.Prefixes.Bytes())+len(m.Collided.Bytes()))
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], m.DBVersion)
	out = append(out, u16[:]...)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], m.OccupiedBytes)
	out = append(out, u64[:]...)
	out = append(out, m.Prefixes.Bytes()...)
	out = append(out, m.Collided.Bytes()...)
	return out
}

// decodeMetadata parses Metadata out of data, sized for numPrefixes
// prefixes.
func decodeMetadata(data []byte, numPrefixes uint64) (*Metadata, error) {
	bitmapLen := bitsetByteLen(numPrefixes)
	want := 10 + 2*bitmapLen
	if len(data) < want {
		return nil, &InvalidFieldError{Detail: "metadata file shorter than expected length"}
	}
	m := &Metadata{
		DBVersion:     binary.LittleEndian.Uint16(data[0:2]),
		OccupiedBytes: binary.LittleEndian.Uint64(data[2:10]),
	}
	m.Prefixes = bitsetFromBytes(data[10:10+bitmapLen], numPrefixes)
	m.Collided = bitsetFromBytes(data[10+bitmapLen:10+2*bitmapLen], numPrefixes)
	return m, nil
}

// InsertRecord accounts for a brand-new live record of payloadBytes
// (key+value) in prefix p.
func (m *Metadata) InsertRecord(p uint32, payloadBytes int) {
	m.Prefixes.Set(p)
	m.OccupiedBytes += uint64(payloadBytes)
}

// UpdateRecordLen accounts for an overwrite that changes a live
// record's payload length from oldBytes to newBytes.
func (m *Metadata) UpdateRecordLen(oldBytes, newBytes int) {
	m.OccupiedBytes -= uint64(oldBytes)
	m.OccupiedBytes += uint64(newBytes)
}

// RemoveRecord accounts for a deleted live record of oldBytes.
func (m *Metadata) RemoveRecord(oldBytes int) {
	m.OccupiedBytes -= uint64(oldBytes)
}

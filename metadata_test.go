package kelo

import "testing"

func TestMetadataEncodeDecodeRoundTrip(t *testing.T) {
	numPrefixes := uint64(256)
	m := newMetadata(numPrefixes)
	m.InsertRecord(3, 10)
	m.InsertRecord(200, 20)
	m.Collided.Set(3)

	encoded := m.Encode()
	got, err := decodeMetadata(encoded, numPrefixes)
	if err != nil {
		t.Fatalf("decodeMetadata: %v", err)
	}
	if got.OccupiedBytes != 30 {
		t.Fatalf("OccupiedBytes = %d, want 30", got.OccupiedBytes)
	}
	if !got.Prefixes.Has(3) || !got.Prefixes.Has(200) {
		t.Fatalf("expected prefixes 3 and 200 to be set")
	}
	if !got.Collided.Has(3) {
		t.Fatalf("expected prefix 3 to be collided")
	}
	if got.Collided.Has(200) {
		t.Fatalf("prefix 200 should not be collided")
	}
}

func TestMetadataAccounting(t *testing.T) {
	m := newMetadata(8)
	m.InsertRecord(0, 10)
	m.UpdateRecordLen(10, 15)
	if m.OccupiedBytes != 15 {
		t.Fatalf("OccupiedBytes after update = %d, want 15", m.OccupiedBytes)
	}
	m.RemoveRecord(15)
	if m.OccupiedBytes != 0 {
		t.Fatalf("OccupiedBytes after remove = %d, want 0", m.OccupiedBytes)
	}
}

func TestMetadataLenSymmetric(t *testing.T) {
	got := metadataLen(8)
	want := int64(2 + 8 + 2*32) // 256 prefixes -> 32-byte bitmap, two bitmaps
	if got != want {
		t.Fatalf("metadataLen(8) = %d, want %d", got, want)
	}
}

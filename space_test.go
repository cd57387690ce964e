package kelo

import "testing"

func TestSpaceIteratorUninitializedRun(t *testing.T) {
	bodySize := 4
	fs := fieldSize(bodySize)
	data := make([]byte, fs*3)

	it := newSpaceIterator(data, fs, 0)
	sp, err := it.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if sp.Kind != SpaceEmpty || sp.Len != fs*3 {
		t.Fatalf("got %+v, want one Empty run spanning the whole buffer", sp)
	}
}

func TestSpaceIteratorOccupiedThenEmpty(t *testing.T) {
	bodySize := 4
	fs := fieldSize(bodySize)
	var buf []byte
	writePayload(&buf, []byte("abcdefgh"), bodySize) // 2 fields, Inserted+Continued
	buf = append(buf, make([]byte, fs)...)            // 1 uninitialized field

	it := newSpaceIterator(buf, fs, 0)
	sp1, err := it.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if sp1.Kind != SpaceOccupied || sp1.Len != 2*fs {
		t.Fatalf("got %+v, want Occupied spanning 2 fields", sp1)
	}

	sp2, err := it.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if sp2.Kind != SpaceEmpty || sp2.Len != fs {
		t.Fatalf("got %+v, want Empty spanning 1 field", sp2)
	}
}

func TestSpaceIteratorDeletedRunFoldsToEmpty(t *testing.T) {
	bodySize := 4
	fs := fieldSize(bodySize)
	var buf []byte
	writePayload(&buf, []byte("abcdefgh"), bodySize)
	writeDeleted(&buf, 2*fs, bodySize)

	it := newSpaceIterator(buf, fs, int64(2*fs))
	sp, err := it.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if sp.Kind != SpaceEmpty || sp.Len != 2*fs {
		t.Fatalf("got %+v, want Deleted run folded into Empty", sp)
	}
}

func TestSpaceIteratorInvalidHeaderByte(t *testing.T) {
	bodySize := 4
	fs := fieldSize(bodySize)
	buf := make([]byte, fs)
	buf[0] = 7 // not a valid header

	it := newSpaceIterator(buf, fs, 0)
	if _, err := it.next(); err == nil {
		t.Fatalf("expected InvalidFieldError on invalid header byte")
	}
}

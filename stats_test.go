package kelo

import "testing"

func TestStatsReflectsCommittedData(t *testing.T) {
	dir := t.TempDir()
	db, err := Create(dir, scenarioOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	mustCommit(t, db, map[string]string{"abc": "xyz"}, nil)
	one := 1
	if err := db.FlushJournal(&one); err != nil {
		t.Fatalf("FlushJournal: %v", err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.OccupiedBytes != 6 {
		t.Fatalf("OccupiedBytes = %d, want 6", stats.OccupiedBytes)
	}
	if stats.PopulatedPrefixes != 1 {
		t.Fatalf("PopulatedPrefixes = %d, want 1", stats.PopulatedPrefixes)
	}
	if stats.JournalEras != 0 {
		t.Fatalf("JournalEras = %d, want 0 after flush", stats.JournalEras)
	}

	encoded, err := stats.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := decodeDBStats(encoded)
	if err != nil {
		t.Fatalf("decodeDBStats: %v", err)
	}
	if decoded != stats {
		t.Fatalf("decodeDBStats round trip = %+v, want %+v", decoded, stats)
	}
}

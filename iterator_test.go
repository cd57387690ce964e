package kelo

import "testing"

func TestIterateStrictlyAscending(t *testing.T) {
	dir := t.TempDir()
	db, err := Create(dir, scenarioOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	mustCommit(t, db, map[string]string{"ddd": "004", "bbb": "002", "aaa": "001"}, nil)
	one := 1
	if err := db.FlushJournal(&one); err != nil {
		t.Fatalf("FlushJournal: %v", err)
	}
	mustCommit(t, db, map[string]string{"ccc": "003"}, nil) // stays in the journal, unflushed

	var keys []string
	for kv, err := range db.Iterate() {
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		keys = append(keys, string(kv.Key))
	}

	want := []string{"aaa", "bbb", "ccc", "ddd"}
	if len(keys) != len(want) {
		t.Fatalf("Iterate() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Iterate()[%d] = %q, want %q (full: %v)", i, keys[i], want[i], keys)
		}
	}
}

func TestIterateJournalDeleteSuppressesStorageValue(t *testing.T) {
	dir := t.TempDir()
	db, err := Create(dir, scenarioOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	mustCommit(t, db, map[string]string{"aaa": "001"}, nil)
	one := 1
	if err := db.FlushJournal(&one); err != nil {
		t.Fatalf("FlushJournal: %v", err)
	}
	mustCommit(t, db, nil, []string{"aaa"}) // tombstone still only in the journal

	count := 0
	for kv, err := range db.Iterate() {
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		count++
		_ = kv
	}
	if count != 0 {
		t.Fatalf("expected an unflushed journal delete to suppress the storage value, got %d entries", count)
	}
}

func TestIterateEarlyStop(t *testing.T) {
	dir := t.TempDir()
	db, err := Create(dir, scenarioOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	mustCommit(t, db, map[string]string{"aaa": "001", "bbb": "002", "ccc": "003"}, nil)
	one := 1
	if err := db.FlushJournal(&one); err != nil {
		t.Fatalf("FlushJournal: %v", err)
	}

	seen := 0
	for range db.Iterate() {
		seen++
		if seen == 1 {
			break
		}
	}
	if seen != 1 {
		t.Fatalf("expected iteration to stop after the consumer broke out, got %d", seen)
	}
}

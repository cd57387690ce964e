package kelo

import "testing"

func newTx(t *testing.T, keyLen int, ins map[string]string, del []string) *Transaction {
	t.Helper()
	tx := newTransaction(keyLen)
	for k, v := range ins {
		if err := tx.Insert([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	for _, k := range del {
		if err := tx.Delete([]byte(k)); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}
	return tx
}

func TestJournalPushAndGet(t *testing.T) {
	dir := t.TempDir()
	j, err := openJournal(dir)
	if err != nil {
		t.Fatalf("openJournal: %v", err)
	}
	defer j.close()

	tx := newTx(t, 3, map[string]string{"abc": "xyz"}, nil)
	if err := j.Push(tx); err != nil {
		t.Fatalf("Push: %v", err)
	}

	lookup := j.Get([]byte("abc"))
	if !lookup.found || lookup.tombstone || string(lookup.value) != "xyz" {
		t.Fatalf("Get = %+v, want found with value xyz", lookup)
	}

	if lookup := j.Get([]byte("zzz")); lookup.found {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestJournalNewestEraWins(t *testing.T) {
	dir := t.TempDir()
	j, err := openJournal(dir)
	if err != nil {
		t.Fatalf("openJournal: %v", err)
	}
	defer j.close()

	if err := j.Push(newTx(t, 3, map[string]string{"abc": "111"}, nil)); err != nil {
		t.Fatalf("Push 1: %v", err)
	}
	if err := j.Push(newTx(t, 3, map[string]string{"abc": "222"}, nil)); err != nil {
		t.Fatalf("Push 2: %v", err)
	}

	lookup := j.Get([]byte("abc"))
	if string(lookup.value) != "222" {
		t.Fatalf("Get = %+v, want value 222 (newest era wins)", lookup)
	}
}

func TestJournalReopenReplaysEras(t *testing.T) {
	dir := t.TempDir()
	j, err := openJournal(dir)
	if err != nil {
		t.Fatalf("openJournal: %v", err)
	}
	if err := j.Push(newTx(t, 3, map[string]string{"abc": "xyz"}, nil)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := j.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j2, err := openJournal(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.close()

	if j2.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", j2.Len())
	}
	lookup := j2.Get([]byte("abc"))
	if !lookup.found || string(lookup.value) != "xyz" {
		t.Fatalf("Get after reopen = %+v", lookup)
	}
}

func TestJournalDrainFront(t *testing.T) {
	dir := t.TempDir()
	j, err := openJournal(dir)
	if err != nil {
		t.Fatalf("openJournal: %v", err)
	}
	defer j.close()

	for i := 0; i < 3; i++ {
		if err := j.Push(newTx(t, 3, map[string]string{"abc": "xyz"}, nil)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	drained := j.DrainFront(2)
	if len(drained) != 2 {
		t.Fatalf("drained %d eras, want 2", len(drained))
	}
	if j.Len() != 1 {
		t.Fatalf("remaining Len() = %d, want 1", j.Len())
	}
	for _, e := range drained {
		e.close()
	}
}

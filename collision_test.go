package kelo

import "testing"

func TestCollisionSidecarPutGet(t *testing.T) {
	dir := t.TempDir()
	sc, err := createCollisionSidecar(dir, 3)
	if err != nil {
		t.Fatalf("createCollisionSidecar: %v", err)
	}
	defer sc.close()

	if err := sc.put([]byte("abc"), []byte("xyz")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, tombstoned, found, err := sc.get([]byte("abc"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || tombstoned || string(value) != "xyz" {
		t.Fatalf("get = value=%q tombstoned=%v found=%v", value, tombstoned, found)
	}
}

func TestCollisionSidecarLastWriteWins(t *testing.T) {
	dir := t.TempDir()
	sc, err := createCollisionSidecar(dir, 3)
	if err != nil {
		t.Fatalf("createCollisionSidecar: %v", err)
	}
	defer sc.close()

	sc.put([]byte("abc"), []byte("111"))
	sc.put([]byte("abc"), []byte("222"))

	value, _, found, err := sc.get([]byte("abc"))
	if err != nil || !found || string(value) != "222" {
		t.Fatalf("get = value=%q found=%v err=%v, want 222", value, found, err)
	}
}

func TestCollisionSidecarDeleteTombstones(t *testing.T) {
	dir := t.TempDir()
	sc, err := createCollisionSidecar(dir, 3)
	if err != nil {
		t.Fatalf("createCollisionSidecar: %v", err)
	}
	defer sc.close()

	sc.put([]byte("abc"), []byte("xyz"))
	sc.delete([]byte("abc"))

	_, tombstoned, found, err := sc.get([]byte("abc"))
	if err != nil || !found || !tombstoned {
		t.Fatalf("get after delete: tombstoned=%v found=%v err=%v", tombstoned, found, err)
	}
}

func TestCollisionSidecarReopenRebuildsBloom(t *testing.T) {
	dir := t.TempDir()
	sc, err := createCollisionSidecar(dir, 7)
	if err != nil {
		t.Fatalf("createCollisionSidecar: %v", err)
	}
	sc.put([]byte("abc"), []byte("xyz"))
	sc.close()

	sc2, err := openCollisionSidecar(dir, 7)
	if err != nil {
		t.Fatalf("openCollisionSidecar: %v", err)
	}
	defer sc2.close()

	value, _, found, err := sc2.get([]byte("abc"))
	if err != nil || !found || string(value) != "xyz" {
		t.Fatalf("get after reopen: value=%q found=%v err=%v", value, found, err)
	}
}

func TestOpenCollisionSidecarMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	sc, err := openCollisionSidecar(dir, 42)
	if err != nil {
		t.Fatalf("openCollisionSidecar: %v", err)
	}
	if sc != nil {
		t.Fatalf("expected nil sidecar for a prefix with no collision file")
	}
}

func TestCollisionBloomNeverFalseNegative(t *testing.T) {
	b := newCollisionBloom()
	keys := [][]byte{[]byte("abc"), []byte("def"), []byte("ghi")}
	for _, k := range keys {
		b.add(k)
	}
	for _, k := range keys {
		if !b.mayContain(k) {
			t.Fatalf("mayContain(%q) = false, want true (no false negatives)", k)
		}
	}
}

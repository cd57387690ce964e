package kelo

import (
	"bytes"
	"iter"
)

// KV is one emitted pair from the merged iterator.
type KV struct {
	Key   []byte
	Value []byte
}

// storageRecords scans data.db from offset 0 to its end, yielding
// every live (Inserted) record in file order. A single linear scan
// happens to yield global ascending key order: within a bucket records
// are kept ascending by construction (I1), and a bucket's spillover
// past its own nominal region is always key-less-than the bucket whose
// nominal region it spilled into (the planner only ever inserts a
// prefix's own records starting from that prefix's own nominal offset,
// seeking past any smaller-keyed spillover first), so file order and
// key order coincide across the whole file.
func storageRecords(data []byte, cfg *resolvedConfig) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		it := newSpaceIterator(data, fieldSize(cfg.fieldBodySize), 0)
		for {
			sp, err := it.next()
			if err != nil {
				return
			}
			if sp.Kind != SpaceOccupied {
				continue
			}
			rec, err := decodeRecord(sp.Data, cfg)
			if err != nil {
				if !yield(Record{}, err) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Iterate streams the merged logical view (storage ⊕ journal) in
// ascending key order, per spec.md §4.7. Collision sidecars are not
// traversed (the gap spec.md explicitly permits leaving open).
func (db *DB) Iterate() iter.Seq2[KV, error] {
	return func(yield func(KV, error) bool) {
		db.mu.Lock()
		defer db.mu.Unlock()
		if db.closed {
			yield(KV{}, ErrClosed)
			return
		}
		db.iterateLocked(yield)
	}
}

// iterateLocked is Iterate's body, factored out so Compact can reuse it
// while already holding db.mu.
func (db *DB) iterateLocked(yield func(KV, error) bool) {
	{
		journalKeys := db.journal.mergedSortedKeys()
		ji := 0

		next, stop := iter.Pull2(storageRecords(db.dataMap.data, &db.cfg))
		defer stop()

		storRec, storErr, storOK := next()

		for {
			if !storOK && ji >= len(journalKeys) {
				return
			}
			if storErr != nil {
				yield(KV{}, storErr)
				return
			}

			switch {
			case !storOK:
				if !db.emitJournalKey(journalKeys[ji], yield) {
					return
				}
				ji++

			case ji >= len(journalKeys):
				if !yield(KV{Key: storRec.Key, Value: storRec.Value}, nil) {
					return
				}
				storRec, storErr, storOK = next()

			default:
				cmp := bytes.Compare([]byte(journalKeys[ji]), storRec.Key)
				switch {
				case cmp < 0:
					if !db.emitJournalKey(journalKeys[ji], yield) {
						return
					}
					ji++
				case cmp == 0:
					op, _ := db.journal.mergedGet(journalKeys[ji])
					if !op.tombstone {
						if !yield(KV{Key: storRec.Key, Value: op.value}, nil) {
							return
						}
					}
					ji++
					storRec, storErr, storOK = next()
				default:
					if !yield(KV{Key: storRec.Key, Value: storRec.Value}, nil) {
						return
					}
					storRec, storErr, storOK = next()
				}
			}
		}
	}
}

func (db *DB) emitJournalKey(key string, yield func(KV, error) bool) bool {
	op, _ := db.journal.mergedGet(key)
	if op.tombstone {
		return true
	}
	return yield(KV{Key: []byte(key), Value: op.value}, nil)
}

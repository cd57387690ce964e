package kelo

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// OpTag distinguishes an insert from a delete in a transaction's
// operation log.
type OpTag uint8

const (
	OpInsert OpTag = 0
	OpDelete OpTag = 1
)

type stagedOp struct {
	tag   OpTag
	key   []byte
	value []byte // nil for delete
}

// Transaction stages a batch of inserts/deletes for one Commit. Keys
// are validated against the database's configured key length as they
// are staged.
type Transaction struct {
	keyLen int
	ops    []stagedOp
}

func newTransaction(keyLen int) *Transaction {
	return &Transaction{keyLen: keyLen}
}

// Insert stages an insert of key/value. Returns InvalidKeyLenError if
// key does not match the database's configured key length.
func (t *Transaction) Insert(key, value []byte) error {
	if len(key) != t.keyLen {
		return &InvalidKeyLenError{Expected: t.keyLen, Got: len(key)}
	}
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	t.ops = append(t.ops, stagedOp{tag: OpInsert, key: k, value: v})
	return nil
}

// Delete stages a delete of key.
func (t *Transaction) Delete(key []byte) error {
	if len(key) != t.keyLen {
		return &InvalidKeyLenError{Expected: t.keyLen, Got: len(key)}
	}
	k := append([]byte(nil), key...)
	t.ops = append(t.ops, stagedOp{tag: OpDelete, key: k})
	return nil
}

// encode serializes the transaction's operation log in insertion
// order, per spec.md §3: (tag: u8, key_len: u32 LE, [value_len: u32
// LE if Insert], key bytes, [value bytes if Insert]).
func (t *Transaction) encode() []byte {
	var buf bytes.Buffer
	var u32 [4]byte
	for _, op := range t.ops {
		buf.WriteByte(byte(op.tag))
		binary.LittleEndian.PutUint32(u32[:], uint32(len(op.key)))
		buf.Write(u32[:])
		if op.tag == OpInsert {
			binary.LittleEndian.PutUint32(u32[:], uint32(len(op.value)))
			buf.Write(u32[:])
		}
		buf.Write(op.key)
		if op.tag == OpInsert {
			buf.Write(op.value)
		}
	}
	return buf.Bytes()
}

// decodeOperationLog parses a transaction's on-wire operation log in
// insertion order.
func decodeOperationLog(data []byte) ([]stagedOp, error) {
	var ops []stagedOp
	for len(data) > 0 {
		if len(data) < 5 {
			return nil, &CorruptedJournalError{Detail: "truncated operation header"}
		}
		tag := OpTag(data[0])
		keyLen := binary.LittleEndian.Uint32(data[1:5])
		data = data[5:]
		var valueLen uint32
		if tag == OpInsert {
			if len(data) < 4 {
				return nil, &CorruptedJournalError{Detail: "truncated value length"}
			}
			valueLen = binary.LittleEndian.Uint32(data[:4])
			data = data[4:]
		}
		if uint32(len(data)) < keyLen {
			return nil, &CorruptedJournalError{Detail: "truncated key"}
		}
		key := data[:keyLen]
		data = data[keyLen:]
		var value []byte
		if tag == OpInsert {
			if uint32(len(data)) < valueLen {
				return nil, &CorruptedJournalError{Detail: "truncated value"}
			}
			value = data[:valueLen]
			data = data[valueLen:]
		}
		ops = append(ops, stagedOp{tag: tag, key: key, value: value})
	}
	return ops, nil
}

// sortOpsByKeyLastWriteWins stable-sorts ops by key, after first
// collapsing duplicate keys to their last (insertion-order) write —
// see spec.md §4.3.
func sortOpsByKeyLastWriteWins(ops []stagedOp) []stagedOp {
	last := make(map[string]stagedOp, len(ops))
	order := make([]string, 0, len(ops))
	for _, op := range ops {
		k := string(op.key)
		if _, ok := last[k]; !ok {
			order = append(order, k)
		}
		last[k] = op
	}
	out := make([]stagedOp, 0, len(order))
	for _, k := range order {
		out = append(out, last[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return bytes.Compare(out[i].key, out[j].key) < 0
	})
	return out
}

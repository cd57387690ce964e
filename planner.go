package kelo

// overwriteEntry is one (offset, bytes) instruction the flush file
// will stage and the apply step will memcpy into data.db.
type overwriteEntry struct {
	offset int64
	data   []byte
}

// operationBuffer accumulates the bytes for the overwrite entry
// currently being built, mirroring the original's OperationBuffer
// denote/finish pattern (ported to Go without a backpatched length
// slot, since we only learn the final length when we close the entry
// and nothing downstream needs the in-progress length).
type operationBuffer struct {
	entries []overwriteEntry
	open    *overwriteEntry
}

func (b *operationBuffer) denote(offset int64) {
	if b.open == nil {
		b.open = &overwriteEntry{offset: offset}
	}
}

func (b *operationBuffer) append(data []byte) {
	b.open.data = append(b.open.data, data...)
}

func (b *operationBuffer) finish() {
	if b.open != nil {
		b.entries = append(b.entries, *b.open)
		b.open = nil
	}
}

func (b *operationBuffer) isFinished() bool { return b.open == nil }

// planOperations runs the central flush algorithm (spec.md §4.5) over
// ops (already sorted by key, non-collided) against data (a read-only
// view of data.db), mutating meta in place and returning the overwrite
// entries to stage into a flush file.
func planOperations(data []byte, meta *Metadata, ops []stagedOp, cfg *resolvedConfig) ([]overwriteEntry, error) {
	spaces := newSpaceIterator(data, fieldSize(cfg.fieldBodySize), 0)
	buf := &operationBuffer{}
	debt := 0
	i := 0

	for {
		if i >= len(ops) {
			for debt > 0 {
				sp, err := spaces.next()
				if err != nil {
					return nil, err
				}
				switch sp.Kind {
				case SpaceEmpty:
					debt -= sp.Len
					if debt < 0 {
						debt = 0
					}
				case SpaceOccupied:
					buf.append(sp.Data)
				}
			}
			buf.finish()
			return buf.entries, nil
		}

		op := ops[i]
		isNew := debt <= 0
		if isNew {
			buf.finish()
			// Ops are sorted by key, so the iterator only ever moves
			// forward: a later op in the same bucket must not revisit
			// space an earlier op has already planned into.
			if off := bucketOffset(op.key, cfg.opts.KeyIndexBits, cfg.recordOffset); off > spaces.offset {
				spaces.moveTo(off)
			}
		}

		sp, err := spaces.peek()
		if err != nil {
			return nil, err
		}

		switch decide(op, sp, isNew, cfg) {
		case decInsertIntoEmpty:
			buf.denote(sp.Offset)
			written := writeRecord(&buf.open.data, op.key, op.value, cfg)
			if written > sp.Len {
				debt += written - sp.Len
			}
			// Only the part of an uninitialized run the record fills is
			// consumed; the rest stays available to the next op.
			if written < sp.Len && data[sp.Offset] == headerUninitialized {
				spaces.moveTo(sp.Offset + int64(written))
			} else {
				spaces.next()
			}
			meta.InsertRecord(prefixOf(op.key, cfg.opts.KeyIndexBits), len(op.key)+len(op.value))
			i++

		case decInsertBeforeOccupied:
			buf.denote(sp.Offset)
			written := writeRecord(&buf.open.data, op.key, op.value, cfg)
			debt += written
			meta.InsertRecord(prefixOf(op.key, cfg.opts.KeyIndexBits), len(op.key)+len(op.value))
			i++

		case decOverwrite:
			spaces.next()
			buf.denote(sp.Offset)
			oldPayload, err := payloadLen(sp.Data, cfg)
			if err != nil {
				return nil, err
			}
			before := len(buf.open.data)
			written := writeRecord(&buf.open.data, op.key, op.value, cfg)
			if written < sp.Len {
				writeDeleted(&buf.open.data, sp.Len-written, cfg.fieldBodySize)
				written = len(buf.open.data) - before
			}
			if written > sp.Len {
				debt += written - sp.Len
			}
			meta.UpdateRecordLen(oldPayload, len(op.key)+len(op.value))
			i++

		case decSeek:
			spaces.next()

		case decRewriteOccupied:
			spaces.next()
			buf.append(sp.Data)

		case decConsumeEmpty:
			spaces.next()
			debt -= sp.Len
			if debt < 0 {
				debt = 0
			}

		case decDeleteOp:
			spaces.next()
			buf.denote(sp.Offset)
			oldPayload, err := payloadLen(sp.Data, cfg)
			if err != nil {
				return nil, err
			}
			writeDeleted(&buf.open.data, sp.Len, cfg.fieldBodySize)
			meta.RemoveRecord(oldPayload)
			i++

		case decIgnore:
			i++
		}
	}
}

package kelo

// Field header bytes. A well-formed data file is an integer number of
// fields, each field_size = 1 + field_body_size bytes.
const (
	headerUninitialized byte = 0
	headerInserted      byte = 1
	headerContinued     byte = 2
	headerDeleted       byte = 3
)

func fieldSize(bodySize int) int { return bodySize + 1 }

// fieldsFor returns the number of fields needed to hold payloadLen
// bytes of logical payload, always at least 1.
func fieldsFor(payloadLen, bodySize int) int {
	if payloadLen <= 0 {
		return 1
	}
	return (payloadLen + bodySize - 1) / bodySize
}

// projectPayload strips header bytes from a raw run of fields,
// returning the logical payload bytes it encodes. raw must be a
// multiple of fieldSize(bodySize).
func projectPayload(raw []byte, bodySize int) []byte {
	fs := fieldSize(bodySize)
	n := len(raw) / fs
	out := make([]byte, 0, n*bodySize)
	for i := 0; i < n; i++ {
		start := i*fs + 1
		out = append(out, raw[start:start+bodySize]...)
	}
	return out
}

// extractKey returns the first keyLen logical payload bytes of raw,
// the fast path avoiding an allocation when the key fits entirely in
// the first field's body.
func extractKey(raw []byte, bodySize, keyLen int) []byte {
	if bodySize >= keyLen && len(raw) >= 1+keyLen {
		return raw[1 : 1+keyLen]
	}
	payload := projectPayload(raw, bodySize)
	if len(payload) < keyLen {
		return payload
	}
	return payload[:keyLen]
}

// writePayload appends payload as a run of fields into *buf: the first
// field tagged Inserted, subsequent fields Continued, the final field
// zero-padded to a full body. Returns the number of raw bytes written
// (always a multiple of fieldSize(bodySize)).
func writePayload(buf *[]byte, payload []byte, bodySize int) int {
	fields := fieldsFor(len(payload), bodySize)
	start := len(*buf)
	for i := 0; i < fields; i++ {
		header := headerContinued
		if i == 0 {
			header = headerInserted
		}
		lo := i * bodySize
		hi := lo + bodySize
		if hi > len(payload) {
			hi = len(payload)
		}
		*buf = append(*buf, header)
		*buf = append(*buf, payload[lo:hi]...)
		if pad := bodySize - (hi - lo); pad > 0 {
			*buf = append(*buf, make([]byte, pad)...)
		}
	}
	return len(*buf) - start
}

// writeDeleted appends rawLen bytes (a multiple of fieldSize(bodySize))
// of Deleted-then-Continued fields with zeroed bodies, marking that
// span as reclaimable space.
func writeDeleted(buf *[]byte, rawLen, bodySize int) {
	fs := fieldSize(bodySize)
	fields := rawLen / fs
	for i := 0; i < fields; i++ {
		header := headerContinued
		if i == 0 {
			header = headerDeleted
		}
		*buf = append(*buf, header)
		*buf = append(*buf, make([]byte, bodySize)...)
	}
}

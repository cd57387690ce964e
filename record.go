package kelo

import "encoding/binary"

// Record is a decoded logical key/value view projected out of a run of
// fields. Key and Value are slices of a freshly allocated copy of the
// payload; they do not alias the underlying raw bytes.
type Record struct {
	Key   []byte
	Value []byte
}

// decodeRecord projects payload out of raw (a run of fields belonging
// to one record, headers included) and splits it into key and value
// according to the database's value-length policy.
func decodeRecord(raw []byte, cfg *resolvedConfig) (Record, error) {
	payload := projectPayload(raw, cfg.fieldBodySize)
	if len(payload) < cfg.opts.KeyLen {
		return Record{}, &InvalidFieldError{Detail: "record payload shorter than key length"}
	}
	key := payload[:cfg.opts.KeyLen]
	rest := payload[cfg.opts.KeyLen:]

	if !cfg.varLen {
		n := cfg.opts.ValueLenPolicy.N
		if len(rest) < n {
			return Record{}, &InvalidFieldError{Detail: "record payload shorter than constant value length"}
		}
		return Record{Key: key, Value: rest[:n]}, nil
	}

	if len(rest) < 4 {
		return Record{}, &InvalidFieldError{Detail: "record payload missing value length prefix"}
	}
	vlen := int(binary.LittleEndian.Uint32(rest[:4]))
	rest = rest[4:]
	if len(rest) < vlen {
		return Record{}, &InvalidFieldError{Detail: "record payload shorter than its declared value length"}
	}
	return Record{Key: key, Value: rest[:vlen]}, nil
}

// writeRecord appends key‖[value_len]‖value as a run of fields into
// *buf, returning the number of raw bytes written.
func writeRecord(buf *[]byte, key, value []byte, cfg *resolvedConfig) int {
	payload := make([]byte, 0, len(key)+4+len(value))
	payload = append(payload, key...)
	if cfg.varLen {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(value)))
		payload = append(payload, lenBuf[:]...)
	}
	payload = append(payload, value...)
	return writePayload(buf, payload, cfg.fieldBodySize)
}

// payloadLen returns the key+value byte length (excluding headers and
// any length prefix) a raw occupied-space run encodes, for occupied_bytes
// accounting per invariant I4.
func payloadLen(raw []byte, cfg *resolvedConfig) (int, error) {
	rec, err := decodeRecord(raw, cfg)
	if err != nil {
		return 0, err
	}
	return len(rec.Key) + len(rec.Value), nil
}

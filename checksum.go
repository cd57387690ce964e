package kelo

import "golang.org/x/crypto/sha3"

const checksumSize = 32

// sum256 computes the SHA3-256 (Keccak-f[1600], SHA-3 padding) digest
// of payload, the one checksum algorithm spec.md §6 fixes.
func sum256(payload []byte) [checksumSize]byte {
	var out [checksumSize]byte
	sum := sha3.Sum256(payload)
	copy(out[:], sum[:])
	return out
}

// framed prepends SHA3-256(payload) to payload.
func framed(payload []byte) []byte {
	sum := sum256(payload)
	out := make([]byte, 0, checksumSize+len(payload))
	out = append(out, sum[:]...)
	out = append(out, payload...)
	return out
}

// verifyFramed splits a checksum‖payload buffer, returning the payload
// if the checksum matches.
func verifyFramed(data []byte) (payload []byte, ok bool) {
	if len(data) < checksumSize {
		return nil, false
	}
	want := data[:checksumSize]
	payload = data[checksumSize:]
	got := sum256(payload)
	for i := range got {
		if got[i] != want[i] {
			return payload, false
		}
	}
	return payload, true
}

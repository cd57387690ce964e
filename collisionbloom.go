// In-memory bloom filter accelerating collision sidecar lookups.
//
// A collided prefix's sidecar is a plain append-only scan (see
// collision.go); most Get misses against a hot prefix are for keys
// that were never written there at all, so a cheap negative-membership
// check avoids the scan entirely. Probe positions use double hashing,
// with the low and high 32-bit halves of one xxh3 64-bit hash as the
// two base hashes.
package kelo

import "github.com/zeebo/xxh3"

const (
	collisionBloomSize = 512 // bytes, ~4k bits: sized for one collided prefix's handful of keys
	collisionBloomK    = 7
)

type collisionBloom struct {
	bits []byte
}

func newCollisionBloom() *collisionBloom {
	return &collisionBloom{bits: make([]byte, collisionBloomSize)}
}

func (b *collisionBloom) add(key []byte) {
	for _, pos := range collisionBloomPositions(key) {
		b.bits[pos/8] |= 1 << (pos % 8)
	}
}

func (b *collisionBloom) mayContain(key []byte) bool {
	for _, pos := range collisionBloomPositions(key) {
		if b.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func collisionBloomPositions(key []byte) [collisionBloomK]uint {
	h := xxh3.Hash(key)
	a := uint(uint32(h))
	b := uint(uint32(h >> 32))
	if b == 0 {
		b = 1
	}

	nbits := uint(collisionBloomSize * 8)
	var pos [collisionBloomK]uint
	for i := range collisionBloomK {
		pos[i] = (a + uint(i)*b) % nbits
	}
	return pos
}

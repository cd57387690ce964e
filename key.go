package kelo

// prefixOf returns the leading indexBits bits of key, interpreted as
// an unsigned integer (big-endian, high bits of the first key byte).
func prefixOf(key []byte, indexBits uint) uint32 {
	nbytes := (indexBits + 7) / 8
	var v uint32
	for i := uint(0); i < nbytes; i++ {
		var b byte
		if int(i) < len(key) {
			b = key[i]
		}
		v = v<<8 | uint32(b)
	}
	shift := nbytes*8 - indexBits
	return v >> shift
}

// bucketOffset returns the byte offset of the nominal start of the
// prefix bucket that key's prefix falls in.
func bucketOffset(key []byte, indexBits uint, recordOffset int) int64 {
	return int64(prefixOf(key, indexBits)) * int64(recordOffset)
}

package frame

// Conversion helpers for the two historical endianness conventions on
// the wire (spec §4.1, §6): frame headers/checksums and a handful of
// payload fields are little-endian ("target endian" for this
// platform), while bulk download/upload data and upload's returned
// address are big-endian. Every call site names which convention it
// wants explicitly, rather than relying on a single ambient default.

// LE32 decodes a 4-byte little-endian address, as used by opcode 1
// (jump) and opcode 37 (download) payloads.
func LE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// PutLE32 encodes addr as 4 little-endian bytes into b (which must have
// length >= 4).
func PutLE32(b []byte, addr uint32) {
	b[0] = byte(addr)
	b[1] = byte(addr >> 8)
	b[2] = byte(addr >> 16)
	b[3] = byte(addr >> 24)
}

// BE32 decodes a 4-byte big-endian address, as used in an opcode 38
// (upload) reply.
func BE32(b []byte) uint32 {
	return uint32(b[3]) | uint32(b[2])<<8 | uint32(b[1])<<16 | uint32(b[0])<<24
}

// PutBE32 encodes addr as 4 big-endian bytes into b (which must have
// length >= 4).
func PutBE32(b []byte, addr uint32) {
	b[0] = byte(addr >> 24)
	b[1] = byte(addr >> 16)
	b[2] = byte(addr >> 8)
	b[3] = byte(addr)
}

// PackWordsBE packs 16-bit flash words into their wire representation,
// high byte first (spec §4.1: "download endianness is always
// big-endian regardless of target endianness").
func PackWordsBE(words []uint16) []byte {
	out := make([]byte, len(words)*2)
	for i, w := range words {
		out[2*i] = byte(w >> 8)
		out[2*i+1] = byte(w)
	}
	return out
}

// UnpackWordsBE is the inverse of PackWordsBE. len(b) must be even.
func UnpackWordsBE(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}

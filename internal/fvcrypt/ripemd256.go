package fvcrypt

import (
	"encoding/binary"
	"hash"
	"math/bits"
)

// RIPEMD-256 as specified by the RIPEMD-160 AB designers: the RIPEMD-128
// compression function widened to eight chaining words, two parallel lines
// with a register swap after every round. The FlipViewer key derivation
// truncates its digest to the SAFER key length; there is no Go ecosystem
// implementation (golang.org/x/crypto stops at ripemd160), so the function
// lives here next to the cipher it feeds.

// Ripemd256Size is the digest length in bytes.
const Ripemd256Size = 32

const ripemd256BlockSize = 64

type ripemd256 struct {
	s   [8]uint32
	x   [ripemd256BlockSize]byte
	nx  int
	len uint64
}

// NewRipemd256 returns a new hash.Hash computing the RIPEMD-256 checksum.
func NewRipemd256() hash.Hash {
	d := new(ripemd256)
	d.Reset()
	return d
}

// Ripemd256Sum returns the RIPEMD-256 digest of data.
func Ripemd256Sum(data []byte) [Ripemd256Size]byte {
	d := new(ripemd256)
	d.Reset()
	d.Write(data)
	var out [Ripemd256Size]byte
	copy(out[:], d.checkSum())
	return out
}

func (d *ripemd256) Reset() {
	d.s = [8]uint32{
		0x67452301, 0xEFCDAB89, 0x98BADCFE, 0x10325476,
		0x76543210, 0xFEDCBA98, 0x89ABCDEF, 0x01234567,
	}
	d.nx = 0
	d.len = 0
}

func (d *ripemd256) Size() int { return Ripemd256Size }

func (d *ripemd256) BlockSize() int { return ripemd256BlockSize }

func (d *ripemd256) Write(p []byte) (n int, err error) {
	n = len(p)
	d.len += uint64(n)
	if d.nx > 0 {
		c := copy(d.x[d.nx:], p)
		d.nx += c
		if d.nx == ripemd256BlockSize {
			d.block(d.x[:])
			d.nx = 0
		}
		p = p[c:]
	}
	for len(p) >= ripemd256BlockSize {
		d.block(p[:ripemd256BlockSize])
		p = p[ripemd256BlockSize:]
	}
	if len(p) > 0 {
		d.nx = copy(d.x[:], p)
	}
	return n, nil
}

func (d *ripemd256) Sum(in []byte) []byte {
	// Make a copy so the caller can keep writing.
	d0 := *d
	return append(in, d0.checkSum()...)
}

func (d *ripemd256) checkSum() []byte {
	length := d.len
	var pad [64 + 8]byte
	pad[0] = 0x80
	padLen := 56 - int(length%64)
	if padLen <= 0 {
		padLen += 64
	}
	binary.LittleEndian.PutUint64(pad[padLen:], length<<3)
	d.Write(pad[:padLen+8])

	out := make([]byte, Ripemd256Size)
	for i, v := range d.s {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// Message word selection and rotation amounts for the four rounds, left and
// right lines (shared with RIPEMD-128).
var (
	rhoL = [64]uint{
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
		7, 4, 13, 1, 10, 6, 15, 3, 12, 0, 9, 5, 2, 14, 11, 8,
		3, 10, 14, 4, 9, 15, 8, 1, 2, 7, 0, 6, 13, 11, 5, 12,
		1, 9, 11, 10, 0, 8, 12, 4, 13, 3, 7, 15, 14, 5, 6, 2,
	}
	rhoR = [64]uint{
		5, 14, 7, 0, 9, 2, 11, 4, 13, 6, 15, 8, 1, 10, 3, 12,
		6, 11, 3, 7, 0, 13, 5, 10, 14, 15, 8, 12, 4, 9, 1, 2,
		15, 5, 1, 3, 7, 14, 6, 9, 11, 8, 12, 2, 10, 0, 4, 13,
		8, 6, 4, 1, 3, 11, 15, 0, 5, 12, 2, 13, 9, 7, 10, 14,
	}
	shiftL = [64]uint{
		11, 14, 15, 12, 5, 8, 7, 9, 11, 13, 14, 15, 6, 7, 9, 8,
		7, 6, 8, 13, 11, 9, 7, 15, 7, 12, 15, 9, 11, 7, 13, 12,
		11, 13, 6, 7, 14, 9, 13, 15, 14, 8, 13, 6, 5, 12, 7, 5,
		11, 12, 14, 15, 14, 15, 9, 8, 9, 14, 5, 6, 8, 6, 5, 12,
	}
	shiftR = [64]uint{
		8, 9, 9, 11, 13, 15, 15, 5, 7, 7, 8, 11, 14, 14, 12, 6,
		9, 13, 15, 7, 12, 8, 9, 11, 7, 7, 12, 7, 6, 15, 13, 11,
		9, 7, 15, 11, 8, 6, 6, 14, 12, 13, 5, 14, 13, 13, 7, 5,
		15, 5, 8, 11, 14, 14, 6, 14, 6, 9, 12, 9, 12, 5, 15, 8,
	}
	kL = [4]uint32{0x00000000, 0x5A827999, 0x6ED9EBA1, 0x8F1BBCDC}
	kR = [4]uint32{0x50A28BE6, 0x5C4DD124, 0x6D703EF3, 0x00000000}
)

func (d *ripemd256) block(p []byte) {
	var x [16]uint32
	for i := 0; i < 16; i++ {
		x[i] = binary.LittleEndian.Uint32(p[i*4:])
	}

	a, b, c, dd := d.s[0], d.s[1], d.s[2], d.s[3]
	aa, bb, cc, ddd := d.s[4], d.s[5], d.s[6], d.s[7]

	for round := 0; round < 4; round++ {
		for i := round * 16; i < (round+1)*16; i++ {
			// Left line uses f1..f4 in order; right line in reverse.
			t := a + boolFn(round, b, c, dd) + x[rhoL[i]] + kL[round]
			a = bits.RotateLeft32(t, int(shiftL[i]))
			a, b, c, dd = dd, a, b, c

			t = aa + boolFn(3-round, bb, cc, ddd) + x[rhoR[i]] + kR[round]
			aa = bits.RotateLeft32(t, int(shiftR[i]))
			aa, bb, cc, ddd = ddd, aa, bb, cc
		}
		// Exchange one register between the lines after each round.
		switch round {
		case 0:
			a, aa = aa, a
		case 1:
			b, bb = bb, b
		case 2:
			c, cc = cc, c
		case 3:
			dd, ddd = ddd, dd
		}
	}

	d.s[0] += a
	d.s[1] += b
	d.s[2] += c
	d.s[3] += dd
	d.s[4] += aa
	d.s[5] += bb
	d.s[6] += cc
	d.s[7] += ddd
}

func boolFn(n int, x, y, z uint32) uint32 {
	switch n {
	case 0:
		return x ^ y ^ z
	case 1:
		return (x & y) | (^x & z)
	case 2:
		return (x | ^y) ^ z
	default:
		return (x & z) | (y & ^z)
	}
}

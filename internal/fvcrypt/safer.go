package fvcrypt

import (
	"fmt"
	"math/bits"
)

// SAFER SK-128 block cipher, the primitive underneath the FlipViewer content
// protection. 64-bit block, 128-bit key, strengthened key schedule, 10 rounds,
// matching the libmcrypt build the viewer links against.

const (
	// SaferBlockSize is the cipher block length in bytes.
	SaferBlockSize = 8
	// SaferKeySize is the user key length in bytes.
	SaferKeySize = 16

	saferRounds    = 10
	saferMaxRounds = 13
	scheduleLen    = 1 + SaferBlockSize*(1+2*saferMaxRounds)
)

// expTab[i] = 45^i mod 257 (with 256 stored as 0); logTab is its inverse.
var expTab, logTab [256]byte

func init() {
	exp := 1
	for i := 0; i < 256; i++ {
		expTab[i] = byte(exp & 0xFF)
		logTab[expTab[i]] = byte(i)
		exp = exp * 45 % 257
	}
}

// Safer holds an expanded key schedule.
type Safer struct {
	key [scheduleLen]byte
}

// NewSafer expands a 16-byte user key into an SK-128 schedule.
func NewSafer(key []byte) (*Safer, error) {
	if len(key) != SaferKeySize {
		return nil, fmt.Errorf("safer: key must be %d bytes, got %d", SaferKeySize, len(key))
	}
	s := &Safer{}
	s.expandKey(key[:SaferBlockSize], key[SaferBlockSize:])
	return s, nil
}

// expandKey implements the strengthened (SK) schedule with two independent
// key halves. Each half carries a ninth parity byte that enters the rotation.
func (s *Safer) expandKey(userkey1, userkey2 []byte) {
	var ka, kb [SaferBlockSize + 1]byte

	s.key[0] = saferRounds
	for j := 0; j < SaferBlockSize; j++ {
		ka[j] = bits.RotateLeft8(userkey1[j], 5)
		ka[SaferBlockSize] ^= ka[j]
		kb[j] = userkey2[j]
		kb[SaferBlockSize] ^= kb[j]
		s.key[1+j] = kb[j]
	}

	idx := 1 + SaferBlockSize
	for i := 1; i <= saferRounds; i++ {
		for j := 0; j < SaferBlockSize+1; j++ {
			ka[j] = bits.RotateLeft8(ka[j], 6)
			kb[j] = bits.RotateLeft8(kb[j], 6)
		}
		for j := 0; j < SaferBlockSize; j++ {
			s.key[idx] = ka[(j+2*i-1)%(SaferBlockSize+1)] + expTab[expTab[18*i+j+1]]
			idx++
		}
		for j := 0; j < SaferBlockSize; j++ {
			s.key[idx] = kb[(j+2*i)%(SaferBlockSize+1)] + expTab[expTab[18*i+j+10]]
			idx++
		}
	}
}

// BlockSize returns the cipher block size in bytes.
func (s *Safer) BlockSize() int { return SaferBlockSize }

func checkBlock(dst, src []byte) {
	if len(src) < SaferBlockSize {
		panic(fmt.Sprintf("fvcrypt: input block must be %d bytes, got %d", SaferBlockSize, len(src)))
	}
	if len(dst) < SaferBlockSize {
		panic(fmt.Sprintf("fvcrypt: output block must be %d bytes, got %d", SaferBlockSize, len(dst)))
	}
}

// EncryptBlock encrypts exactly one block from src into dst. The slices may
// overlap.
func (s *Safer) EncryptBlock(dst, src []byte) {
	checkBlock(dst, src)
	a, b, c, d := src[0], src[1], src[2], src[3]
	e, f, g, h := src[4], src[5], src[6], src[7]

	k := s.key[:]
	rounds := int(k[0])
	base := 0
	for r := 0; r < rounds; r++ {
		a ^= k[base+1]
		b += k[base+2]
		c += k[base+3]
		d ^= k[base+4]
		e ^= k[base+5]
		f += k[base+6]
		g += k[base+7]
		h ^= k[base+8]
		a = expTab[a] + k[base+9]
		b = logTab[b] ^ k[base+10]
		c = logTab[c] ^ k[base+11]
		d = expTab[d] + k[base+12]
		e = expTab[e] + k[base+13]
		f = logTab[f] ^ k[base+14]
		g = logTab[g] ^ k[base+15]
		h = expTab[h] + k[base+16]
		base += 16
		pht(&a, &b)
		pht(&c, &d)
		pht(&e, &f)
		pht(&g, &h)
		pht(&a, &c)
		pht(&e, &g)
		pht(&b, &d)
		pht(&f, &h)
		pht(&a, &e)
		pht(&b, &f)
		pht(&c, &g)
		pht(&d, &h)
		b, c, d, e, f, g = e, b, f, c, g, d
	}
	a ^= k[base+1]
	b += k[base+2]
	c += k[base+3]
	d ^= k[base+4]
	e ^= k[base+5]
	f += k[base+6]
	g += k[base+7]
	h ^= k[base+8]

	dst[0], dst[1], dst[2], dst[3] = a, b, c, d
	dst[4], dst[5], dst[6], dst[7] = e, f, g, h
}

// DecryptBlock decrypts exactly one block from src into dst. The slices may
// overlap.
func (s *Safer) DecryptBlock(dst, src []byte) {
	checkBlock(dst, src)
	a, b, c, d := src[0], src[1], src[2], src[3]
	e, f, g, h := src[4], src[5], src[6], src[7]

	k := s.key[:]
	rounds := int(k[0])
	base := 2 * SaferBlockSize * rounds

	h ^= k[base+8]
	g -= k[base+7]
	f -= k[base+6]
	e ^= k[base+5]
	d ^= k[base+4]
	c -= k[base+3]
	b -= k[base+2]
	a ^= k[base+1]
	for r := 0; r < rounds; r++ {
		base -= 16
		b, c, d, e, f, g = c, e, g, b, d, f
		ipht(&a, &e)
		ipht(&b, &f)
		ipht(&c, &g)
		ipht(&d, &h)
		ipht(&a, &c)
		ipht(&e, &g)
		ipht(&b, &d)
		ipht(&f, &h)
		ipht(&a, &b)
		ipht(&c, &d)
		ipht(&e, &f)
		ipht(&g, &h)
		h -= k[base+16]
		g ^= k[base+15]
		f ^= k[base+14]
		e -= k[base+13]
		d -= k[base+12]
		c ^= k[base+11]
		b ^= k[base+10]
		a -= k[base+9]
		h = logTab[h] ^ k[base+8]
		g = expTab[g] - k[base+7]
		f = expTab[f] - k[base+6]
		e = logTab[e] ^ k[base+5]
		d = logTab[d] ^ k[base+4]
		c = expTab[c] - k[base+3]
		b = expTab[b] - k[base+2]
		a = logTab[a] ^ k[base+1]
	}

	dst[0], dst[1], dst[2], dst[3] = a, b, c, d
	dst[4], dst[5], dst[6], dst[7] = e, f, g, h
}

// pht is the two-point pseudo-Hadamard transform modulo 256.
func pht(x, y *byte) {
	*y += *x
	*x += *y
}

// ipht inverts pht.
func ipht(x, y *byte) {
	*x -= *y
	*y -= *x
}

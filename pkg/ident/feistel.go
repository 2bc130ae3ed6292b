package ident

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const feistelRounds = 4

// Obfuscator is a keyed balanced Feistel network over the 64-bit ID space.
// It hides the timestamp/worker/sequence structure of ordinal IDs from
// anyone holding only the public token while staying perfectly invertible,
// with no stored mapping table. This is obfuscation against casual
// correlation, not encryption; do not rely on it as a security boundary.
type Obfuscator struct {
	roundKeys [feistelRounds]uint32
}

// NewObfuscator derives the per-round keys from the server-held secret.
// Changing the secret changes every mapping, so the original secret must
// be retained if ordinal IDs ever need to be recovered from old tokens.
func NewObfuscator(key []byte) (*Obfuscator, error) {
	if len(key) == 0 {
		return nil, errors.New("obfuscation key must not be empty")
	}
	sum := blake2b.Sum256(key)
	o := &Obfuscator{}
	for i := 0; i < feistelRounds; i++ {
		o.roundKeys[i] = binary.BigEndian.Uint32(sum[i*4 : i*4+4])
	}
	return o, nil
}

// Obfuscate maps an ordinal-space ID to its opaque counterpart.
// Total bijection over uint64 for a fixed key.
func (o *Obfuscator) Obfuscate(id uint64) uint64 {
	l := uint32(id >> 32)
	r := uint32(id)
	for i := 0; i < feistelRounds; i++ {
		l, r = r, l^o.round(r, i)
	}
	return uint64(l)<<32 | uint64(r)
}

// Deobfuscate inverts Obfuscate. The read path never calls this; it
// exists for audit tooling that needs the ordinal ID back.
func (o *Obfuscator) Deobfuscate(id uint64) uint64 {
	l := uint32(id >> 32)
	r := uint32(id)
	for i := feistelRounds - 1; i >= 0; i-- {
		l, r = r^o.round(l, i), l
	}
	return uint64(l)<<32 | uint64(r)
}

// round mixes half a word under the round key. fmix32-style finalizer,
// chosen for diffusion, not cryptographic strength.
func (o *Obfuscator) round(half uint32, i int) uint32 {
	x := half ^ o.roundKeys[i]
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

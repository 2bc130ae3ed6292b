package ident

import (
	"snipbin/pkg/domain"

	"github.com/pkg/errors"
)

// TokenLength is the fixed width of every public token. 62^11 > 2^64, so
// 11 base62 digits cover the whole ID space with zero left padding.
const TokenLength = 11

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var alphabetIndex = func() [128]int8 {
	var idx [128]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		idx[alphabet[i]] = int8(i)
	}
	return idx
}()

// EncodeToken renders a 64-bit ID as an 11-character base62 string.
func EncodeToken(id uint64) string {
	var buf [TokenLength]byte
	for i := TokenLength - 1; i >= 0; i-- {
		buf[i] = alphabet[id%62]
		id /= 62
	}
	return string(buf[:])
}

// ParseToken validates token shape and returns the encoded 64-bit value.
// It rejects anything that is not exactly 11 alphabet characters before
// any storage lookup happens, so obviously bogus tokens are cheap to
// refuse and never reach the repository.
func ParseToken(s string) (uint64, error) {
	if len(s) != TokenLength {
		return 0, errors.Wrapf(domain.ErrMalformedToken, "length %d", len(s))
	}
	var id uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 128 || alphabetIndex[c] < 0 {
			return 0, errors.Wrapf(domain.ErrMalformedToken, "character %q", c)
		}
		v := uint64(alphabetIndex[c])
		if id > (^uint64(0)-v)/62 {
			// 11 base62 digits can exceed 2^64; such strings were
			// never issued.
			return 0, errors.Wrap(domain.ErrMalformedToken, "value overflows 64 bits")
		}
		id = id*62 + v
	}
	return id, nil
}

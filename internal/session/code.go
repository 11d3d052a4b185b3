package session

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CodeAlphabet excludes the look-alike characters I, O, 0 and 1.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a room code.
const CodeLength = 6

// RandomSource yields uniformly distributed integers.
type RandomSource interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// cryptoSource implements RandomSource using crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns a RandomSource backed by crypto/rand.
func NewCryptoSource() RandomSource {
	return cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics if crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("session: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("session: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// NewCode draws a room code from src.
//
// Postcondition: the result has CodeLength characters, all from CodeAlphabet.
func NewCode(src RandomSource) string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[src.Intn(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode upper-cases a client-supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

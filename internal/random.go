package internal

import (
	"crypto/rand"
	"math/big"
)

// RandomIndex returns a uniformly distributed index in [0, max) using
// crypto/rand. max must be positive.
func RandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// RandomBytes returns n bytes of cryptographically secure random data.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

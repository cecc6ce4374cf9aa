package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"math/big"
)

const (
	numericCodeMin = 100000
	numericCodeMax = 999999
)

// NewNumericCode returns a uniformly random six-digit code in
// [100000, 999999]. The range never produces a leading zero, so the string
// length is always six.
func NewNumericCode() (string, error) {
	span := big.NewInt(numericCodeMax - numericCodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}

	value := numericCodeMin + n.Int64()
	digits := [6]byte{}
	for i := 5; i >= 0; i-- {
		digits[i] = byte('0' + value%10)
		value /= 10
	}
	if value != 0 {
		return "", errors.New("invalid code generation range")
	}
	return string(digits[:]), nil
}

// HashCode hashes a one-time code for storage. Plaintext codes are never kept
// after issuance.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// CodesEqual compares a candidate against a stored code hash in constant
// time.
func CodesEqual(stored [32]byte, candidate string) bool {
	h := HashCode(candidate)
	return subtle.ConstantTimeCompare(stored[:], h[:]) == 1
}

// SecretsEqual compares two secrets in constant time without retaining
// either.
func SecretsEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

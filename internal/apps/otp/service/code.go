package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator produces numeric one-time codes of a fixed length
type CodeGenerator func(digits int) (string, error)

// RandomCode draws a uniformly distributed numeric code from crypto/rand
func RandomCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil) // 10^digits
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinCost is the lowest accepted bcrypt cost factor. Below this a
	// modern GPU rig makes offline guessing practical.
	MinCost = 12
	// MaxCost caps single-hash latency so login stays interactive.
	MaxCost = 16

	// bcrypt silently truncates input beyond 72 bytes; the policy turns
	// that silent truncation into an explicit rejection.
	maxPasswordBytes = 72
)

// ErrWeakPassword reports a password that fails the strength policy.
// The wrapped message names the violated rule.
var ErrWeakPassword = errors.New("password policy violation")

// ErrMalformedHash reports a stored hash that does not parse as bcrypt.
var ErrMalformedHash = errors.New("malformed password hash")

// commonPasswords is a small deny-list of the passwords that dominate
// credential-stuffing dictionaries. Comparison is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password":      {},
	"password1":     {},
	"password123":   {},
	"passw0rd":      {},
	"123456":        {},
	"12345678":      {},
	"123456789":     {},
	"1234567890":    {},
	"qwerty":        {},
	"qwerty123":     {},
	"qwertyuiop":    {},
	"letmein":       {},
	"welcome":       {},
	"welcome1":      {},
	"iloveyou":      {},
	"admin":         {},
	"administrator": {},
	"abc123":        {},
	"monkey":        {},
	"dragon":        {},
	"sunshine":      {},
	"princess":      {},
	"football":      {},
	"baseball":      {},
	"trustno1":      {},
}

// Config controls hashing cost and the strength policy applied by Hash.
type Config struct {
	// Cost is the bcrypt cost factor, clamped by validation to
	// [MinCost, MaxCost].
	Cost int
	// MinLength is the minimum password length in bytes.
	MinLength int
	// RejectCommon enables the common-password deny-list.
	RejectCommon bool
	// MinCharClasses is the minimum number of distinct character classes
	// (lower, upper, digit, symbol) the password must span. Zero disables
	// the check.
	MinCharClasses int
}

// Hasher hashes and verifies passwords with bcrypt under a fixed policy.
// A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a [Hasher].
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Cost < MinCost || cfg.Cost > MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be in [%d, %d]", MinCost, MaxCost)
	}
	if cfg.MinLength <= 0 {
		return nil, errors.New("minimum password length must be positive")
	}
	if cfg.MinLength > maxPasswordBytes {
		return nil, fmt.Errorf("minimum password length exceeds bcrypt input limit of %d bytes", maxPasswordBytes)
	}
	if cfg.MinCharClasses < 0 || cfg.MinCharClasses > 4 {
		return nil, errors.New("character class requirement must be in [0, 4]")
	}

	return &Hasher{config: cfg}, nil
}

// Hash derives a salted bcrypt hash of password. The salt is generated
// fresh inside bcrypt on every call, so hashing the same password twice
// yields different encodings that both verify.
//
// Hash fails with [ErrWeakPassword] when the input violates the strength
// policy; the plaintext never appears in the error.
func (h *Hasher) Hash(password string) (string, error) {
	if err := h.checkPolicy(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.config.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches encodedHash. A well-formed
// mismatch is (false, nil); only a hash that does not parse as bcrypt
// produces [ErrMalformedHash]. Comparison time depends on the cost factor,
// not on where the inputs diverge.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if _, err := bcrypt.Cost([]byte(encodedHash)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// NeedsUpgrade reports whether encodedHash was produced at a lower cost
// than the configured one and should be re-hashed on next successful login.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return cost < h.config.Cost, nil
}

func (h *Hasher) checkPolicy(password string) error {
	if password == "" {
		return fmt.Errorf("%w: empty password", ErrWeakPassword)
	}
	if len(password) < h.config.MinLength {
		return fmt.Errorf("%w: shorter than %d bytes", ErrWeakPassword, h.config.MinLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: longer than %d bytes", ErrWeakPassword, maxPasswordBytes)
	}
	if h.config.RejectCommon {
		if _, hit := commonPasswords[strings.ToLower(password)]; hit {
			return fmt.Errorf("%w: common password", ErrWeakPassword)
		}
	}
	if h.config.MinCharClasses > 0 {
		if classes := charClasses(password); classes < h.config.MinCharClasses {
			return fmt.Errorf("%w: requires %d character classes, has %d", ErrWeakPassword, h.config.MinCharClasses, classes)
		}
	}
	return nil
}

func charClasses(password string) int {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	classes := 0
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			classes++
		}
	}
	return classes
}

package totp

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// MinSecretBytes is the smallest accepted secret entropy (RFC 4226
	// recommends at least 128 bits).
	MinSecretBytes = 16
	// MaxSecretBytes bounds secret size; anything larger buys nothing.
	MaxSecretBytes = 64
	// DefaultSecretBytes is the entropy used when the caller does not care.
	DefaultSecretBytes = 20

	// minDecodedSecret is the floor applied when validating externally
	// supplied secrets.
	minDecodedSecret = 10
)

var (
	// ErrSecretEntropy reports a secret entropy request outside
	// [MinSecretBytes, MaxSecretBytes].
	ErrSecretEntropy = errors.New("totp secret entropy out of range")
	// ErrInvalidSecret reports a secret that is empty, not base32, or too
	// short once decoded.
	ErrInvalidSecret = errors.New("invalid totp secret")
	// ErrInvalidCode reports a code rejected on shape alone (wrong length
	// or non-numeric) before any cryptographic work.
	ErrInvalidCode = errors.New("invalid totp code format")
	// ErrInvalidAccount reports an empty account name in a provisioning
	// request.
	ErrInvalidAccount = errors.New("empty totp account name")
	// ErrInvalidIssuer reports an empty issuer in a provisioning request.
	ErrInvalidIssuer = errors.New("empty totp issuer")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Options carries the TOTP parameters shared by generation, verification,
// and provisioning. The zero value means RFC defaults: 30 second period,
// 6 digits, SHA1, one step of skew on verification.
type Options struct {
	Period    uint
	Skew      uint
	Digits    int
	Algorithm string
}

func (o Options) normalized() Options {
	if o.Period == 0 {
		o.Period = 30
	}
	if o.Digits == 0 {
		o.Digits = 6
	}
	if o.Algorithm == "" {
		o.Algorithm = "SHA1"
	}
	return o
}

func (o Options) validate() error {
	if o.Digits < 6 || o.Digits > 8 {
		return errors.New("totp digits must be in [6, 8]")
	}
	if o.Skew > 2 {
		return errors.New("totp skew must be in [0, 2]")
	}
	if _, err := algorithm(o.Algorithm); err != nil {
		return err
	}
	return nil
}

func algorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, errors.New("unsupported totp algorithm")
	}
}

// GenerateSecret returns a fresh base32-encoded secret with entropyBytes of
// cryptographic randomness. entropyBytes outside [MinSecretBytes,
// MaxSecretBytes] fails with [ErrSecretEntropy].
func GenerateSecret(entropyBytes int) (string, error) {
	if entropyBytes < MinSecretBytes || entropyBytes > MaxSecretBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrSecretEntropy, entropyBytes)
	}

	raw := make([]byte, entropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ValidateSecret checks that secret is well-formed base32 of at least
// 10 decoded bytes. Failures are [ErrInvalidSecret].
func ValidateSecret(secret string) error {
	trimmed := strings.TrimRight(strings.ToUpper(strings.TrimSpace(secret)), "=")
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSecret)
	}

	decoded, err := b32.DecodeString(trimmed)
	if err != nil {
		return fmt.Errorf("%w: not base32", ErrInvalidSecret)
	}
	if len(decoded) < minDecodedSecret {
		return fmt.Errorf("%w: %d decoded bytes, need %d", ErrInvalidSecret, len(decoded), minDecodedSecret)
	}
	return nil
}

// GenerateCode returns the code for secret at the time step containing at.
// The result is a pure function of (secret, floor(at/period)): any two
// instants inside the same step yield the same code.
func GenerateCode(secret string, at time.Time, opts Options) (string, error) {
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return "", err
	}
	if err := ValidateSecret(secret); err != nil {
		return "", err
	}

	alg, err := algorithm(opts.Algorithm)
	if err != nil {
		return "", err
	}

	code, err := totp.GenerateCodeCustom(strings.ToUpper(secret), at, totp.ValidateOpts{
		Period:    opts.Period,
		Skew:      0,
		Digits:    otp.Digits(opts.Digits),
		Algorithm: alg,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return code, nil
}

// IsCodeShape reports whether code looks like a TOTP code of the given
// digit count: exact length, numeric only. Shape checking is cheap and
// always precedes cryptographic verification.
func IsCodeShape(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// VerifyCode reports whether code is valid for secret within ±Skew time
// steps of at. A code with the wrong shape fails with [ErrInvalidCode]
// before any cryptographic work; a well-formed wrong code is (false, nil).
func VerifyCode(secret, code string, at time.Time, opts Options) (bool, error) {
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return false, err
	}

	trimmed := strings.TrimSpace(code)
	if !IsCodeShape(trimmed, opts.Digits) {
		return false, fmt.Errorf("%w: want %d digits", ErrInvalidCode, opts.Digits)
	}
	if err := ValidateSecret(secret); err != nil {
		return false, err
	}

	alg, err := algorithm(opts.Algorithm)
	if err != nil {
		return false, err
	}

	ok, err := totp.ValidateCustom(trimmed, strings.ToUpper(secret), at, totp.ValidateOpts{
		Period:    opts.Period,
		Skew:      opts.Skew,
		Digits:    otp.Digits(opts.Digits),
		Algorithm: alg,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return ok, nil
}

// ProvisioningURI builds the otpauth://totp/ URI an authenticator app
// enrolls from. Issuer and account are URL-escaped into the label; both
// must be non-empty.
func ProvisioningURI(secret, account, issuer string, opts Options) (string, error) {
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(account) == "" {
		return "", ErrInvalidAccount
	}
	if strings.TrimSpace(issuer) == "" {
		return "", ErrInvalidIssuer
	}
	if err := ValidateSecret(secret); err != nil {
		return "", err
	}

	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", strings.ToUpper(secret))
	v.Set("issuer", issuer)
	v.Set("period", strconv.FormatUint(uint64(opts.Period), 10))
	v.Set("digits", strconv.Itoa(opts.Digits))
	v.Set("algorithm", strings.ToUpper(opts.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode(), nil
}

// QRCode renders the provisioning URI for (secret, account, issuer) as a
// size×size PNG.
func QRCode(secret, account, issuer string, opts Options, size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("qr size must be positive")
	}

	uri, err := ProvisioningURI(secret, account, issuer, opts)
	if err != nil {
		return nil, err
	}

	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, err
	}
	img, err := key.Image(size, size)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

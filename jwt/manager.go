package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the single algorithm a [Manager] signs and accepts.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
)

// Token type discriminators carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrTokenExpired reports a structurally valid, correctly signed token
	// past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed reports input that is not a three-part signed token.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenInvalid reports a bad signature, a disallowed algorithm, a
	// wrong type discriminator, or otherwise unacceptable claims.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEmptyClaims reports a mint request without a subject or user id.
	ErrEmptyClaims = errors.New("token claims require subject and user id")
)

// Config fixes the Manager's algorithm, keys, lifetimes, and issuer.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Claims is the claim set minted into every vaultauth token. Subject holds
// the username; UserID the stable account id; Family is set on refresh
// tokens only.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"typ"`
	Family string `json:"fam,omitempty"`
	jwt.RegisteredClaims
}

// Manager mints and parses tokens. Immutable and safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// WithClock replaces the Manager's time source. Test hook; returns the
// receiver for chaining.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// CreateAccess mints a short-lived access token for the given identity.
func (m *Manager) CreateAccess(subject, userID, role string) (string, error) {
	return m.create(TypeAccess, subject, userID, role, "", m.config.AccessTTL)
}

// CreateRefresh mints a refresh token bound to familyID.
func (m *Manager) CreateRefresh(subject, userID, role, familyID string) (string, error) {
	if strings.TrimSpace(familyID) == "" {
		return "", errors.New("refresh token requires a family id")
	}
	return m.create(TypeRefresh, subject, userID, role, familyID, m.config.RefreshTTL)
}

func (m *Manager) create(typ, subject, userID, role, familyID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(userID) == "" {
		return "", ErrEmptyClaims
	}

	now := m.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		Type:   typ,
		Family: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// ParseAccess verifies token and returns its claims; a refresh token fails
// with [ErrTokenInvalid] even when correctly signed.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.parse(token, TypeAccess)
}

// ParseRefresh verifies token and returns its claims; an access token fails
// with [ErrTokenInvalid] even when correctly signed.
func (m *Manager) ParseRefresh(token string) (*Claims, error) {
	return m.parse(token, TypeRefresh)
}

// Verify reports whether token is a currently valid token of either type.
func (m *Manager) Verify(token string) bool {
	if _, err := m.parse(token, TypeAccess); err == nil {
		return true
	}
	_, err := m.parse(token, TypeRefresh)
	return err == nil
}

func (m *Manager) parse(tokenStr, wantType string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != wantType {
		return nil, fmt.Errorf("%w: wrong token type", ErrTokenInvalid)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}
	if wantType == TypeRefresh && claims.Family == "" {
		return nil, fmt.Errorf("%w: refresh token without family", ErrTokenInvalid)
	}

	return claims, nil
}

// DecodeUnverified extracts claims WITHOUT verifying the signature or
// expiry. It exists for audit and diagnostic call sites that need to record
// what an invalid token claimed to be; its output must never gate access.
func (m *Manager) DecodeUnverified(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, mapParseError(err)
	}
	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(m.config.PrivateKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(m.config.PublicKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

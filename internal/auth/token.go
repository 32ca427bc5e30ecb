package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const (
	DefaultIssuer     = "employee-management-system"
	DefaultAudience   = "employee-management-users"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Payload is the identity carried by every token.
type Payload struct {
	UserID      string        `json:"id"`
	Email       string        `json:"email"`
	Role        string        `json:"role"`
	Permissions PermissionSet `json:"permissions"`
}

// HasPermission reports whether the payload grants action on resource.
func (p *Payload) HasPermission(resource Resource, action Action) bool {
	if p == nil {
		return false
	}
	return p.Permissions.Has(resource, action)
}

// Claims represents the full decoded token.
type Claims struct {
	Payload
	Kind TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// CodecConfig carries the secrets and lifetimes for a Codec.
type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Codec signs and verifies access and refresh tokens. It holds no mutable state.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewCodec validates cfg and creates a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	access := strings.TrimSpace(cfg.AccessSecret)
	refresh := strings.TrimSpace(cfg.RefreshSecret)
	if access == "" || refresh == "" {
		return nil, errors.New("jwt secrets must not be empty")
	}
	if access == refresh {
		return nil, errors.New("access and refresh secrets must differ")
	}
	c := &Codec{
		accessSecret:  []byte(access),
		refreshSecret: []byte(refresh),
		issuer:        strings.TrimSpace(cfg.Issuer),
		audience:      strings.TrimSpace(cfg.Audience),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           cfg.Now,
	}
	if c.issuer == "" {
		c.issuer = DefaultIssuer
	}
	if c.audience == "" {
		c.audience = DefaultAudience
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken signs a short-lived access token for payload.
func (c *Codec) IssueAccessToken(payload Payload) (string, time.Time, error) {
	return c.issue(KindAccess, payload)
}

// IssueRefreshToken signs a long-lived refresh token for payload.
func (c *Codec) IssueRefreshToken(payload Payload) (string, time.Time, error) {
	return c.issue(KindRefresh, payload)
}

// IssuePair mints an access and a refresh token for the same payload.
func (c *Codec) IssuePair(payload Payload) (TokenPair, error) {
	access, accessExp, err := c.IssueAccessToken(payload)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := c.IssueRefreshToken(payload)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (c *Codec) issue(kind TokenKind, payload Payload) (string, time.Time, error) {
	if c == nil {
		return "", time.Time{}, errors.New("token codec is nil")
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return "", time.Time{}, errors.New("invalid payload for token generation")
	}
	secret, ttl := c.secretFor(kind)
	if secret == nil {
		return "", time.Time{}, fmt.Errorf("unknown token kind %q", kind)
	}

	now := c.now().UTC()
	expiry := now.Add(ttl)
	if payload.Permissions == nil {
		payload.Permissions = PermissionSet{}
	}

	claims := Claims{
		Payload: payload,
		Kind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   payload.UserID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// Verify checks signature, issuer, audience, expiry and kind, and returns the decoded claims.
func (c *Codec) Verify(tokenString string, expected TokenKind) (*Claims, error) {
	if c == nil {
		return nil, errors.New("token codec is nil")
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	secret, _ := c.secretFor(expected)
	if secret == nil {
		return nil, fmt.Errorf("unknown token kind %q", expected)
	}

	claims, err := c.parse(tokenString, secret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) && c.signedAsOtherKind(tokenString, expected) {
			return nil, ErrWrongTokenKind
		}
		return nil, classify(err)
	}
	if claims.Kind != expected {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

func (c *Codec) parse(tokenString string, secret []byte) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// signedAsOtherKind reports whether the token verifies under the secret of the opposite kind.
func (c *Codec) signedAsOtherKind(tokenString string, expected TokenKind) bool {
	other := KindRefresh
	if expected == KindRefresh {
		other = KindAccess
	}
	secret, _ := c.secretFor(other)
	_, err := c.parse(tokenString, secret)
	return err == nil || errors.Is(err, jwt.ErrTokenExpired)
}

func (c *Codec) secretFor(kind TokenKind) ([]byte, time.Duration) {
	switch kind {
	case KindAccess:
		return c.accessSecret, c.accessTTL
	case KindRefresh:
		return c.refreshSecret, c.refreshTTL
	default:
		return nil, 0
	}
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

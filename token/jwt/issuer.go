// Package jwt mints and inspects the internal tokens handed out by the
// backend in exchange for provider credentials.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the verified user an internal token is minted for.
type Identity struct {
	Subject  string
	Email    string
	Name     string
	Provider string
}

// Claims are the fields read back out of an internal token.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Provider  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Issuer mints internal tokens.
type Issuer struct {
	signer  Signer
	issuer  string
	ttl     time.Duration
	buffer  time.Duration
	nowTime func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

// WithSafetyBuffer shortens the expiresIn reported to clients.
func WithSafetyBuffer(buffer time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.buffer = buffer
	}
}

// NewIssuer creates an issuer for tokens that live for ttl.
func NewIssuer(signer Signer, issuer string, ttl time.Duration, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("[NewIssuer] ttl must be positive")
	}
	i := &Issuer{
		signer:  signer,
		issuer:  issuer,
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	if i.buffer >= i.ttl {
		return nil, fmt.Errorf("[NewIssuer] safety buffer %s must be shorter than ttl %s", i.buffer, i.ttl)
	}
	return i, nil
}

// Issue signs a token for id and returns it with the lifetime in seconds the
// client should assume (ttl minus the safety buffer).
func (i *Issuer) Issue(id Identity) (string, int64, error) {
	if id.Subject == "" || id.Provider == "" {
		return "", 0, errors.New("subject and provider are required")
	}
	now := i.nowTime()
	claims := jwtlib.MapClaims{
		"iss":      i.issuer,
		"sub":      id.Provider + "|" + id.Subject,
		"uid":      id.Subject,
		"email":    id.Email,
		"provider": id.Provider,
		"iat":      now.Unix(),
		"exp":      now.Add(i.ttl).Unix(),
		"jti":      uuid.New().String(),
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign internal token: %w", err)
	}
	return signed, int64((i.ttl - i.buffer) / time.Second), nil
}

// Verify checks the signature, issuer and expiry of raw.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty token")
	}
	token, err := jwtlib.ParseWithClaims(raw, jwtlib.MapClaims{}, i.signer.GetVerificationKey,
		jwtlib.WithIssuer(i.issuer),
		jwtlib.WithTimeFunc(i.nowTime),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid internal token: %w", err)
	}
	return claimsFrom(token)
}

// Peek decodes raw without verifying its signature. Clients use it to show
// who a token belongs to and when it expires.
func Peek(raw string) (*Claims, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, err
	}
	return claimsFrom(token)
}

func claimsFrom(token *jwtlib.Token) (*Claims, error) {
	mc, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}
	c := &Claims{}
	c.Email, _ = mc["email"].(string)
	c.Name, _ = mc["name"].(string)
	c.Provider, _ = mc["provider"].(string)
	c.ID, _ = mc["jti"].(string)
	c.Subject, _ = mc["uid"].(string)
	if c.Subject == "" {
		c.Subject, _ = mc.GetSubject()
	}
	c.Issuer, _ = mc.GetIssuer()
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, _ := mc.GetExpirationTime(); exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

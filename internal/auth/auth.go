package auth

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"group-decision/internal/config"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrMissingSubject  = errors.New("token has no user")
	ErrSigningDisabled = errors.New("token signing requires a private key")
)

// JWTClaims represents the claims in a JWT token
type JWTClaims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// User returns the member ID carried by the token, falling back to the subject
func (c *JWTClaims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Service verifies member tokens. Tokens are normally issued upstream;
// GenerateToken exists for tooling and tests.
//
// JWT_SECRET may hold a PEM EC private key (ES256, sign and verify), a PEM
// public key (ES256, verify only) or a shared secret (HS256).
type Service struct {
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	issuer     string
	expiration time.Duration
}

// NewService creates a new authentication service
func NewService(cfg *config.JWTConfig) (*Service, error) {
	s := &Service{
		issuer:     cfg.Issuer,
		expiration: cfg.Expiration,
	}

	block, _ := pem.Decode([]byte(cfg.Secret))
	switch {
	case block == nil:
		if cfg.Secret == "" {
			return nil, errors.New("JWT secret is empty")
		}
		s.method = jwt.SigningMethodHS256
		s.signKey = []byte(cfg.Secret)
		s.verifyKey = []byte(cfg.Secret)
	case block.Type == "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		s.method = jwt.SigningMethodES256
		s.signKey = key
		s.verifyKey = &key.PublicKey
	case block.Type == "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		key, ok := parsed.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported public key type %T", parsed)
		}
		s.method = jwt.SigningMethodES256
		s.verifyKey = key
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}

	return s, nil
}

// GenerateToken signs an access token for a member
func (s *Service) GenerateToken(userID, email string) (string, error) {
	if s.signKey == nil {
		return "", ErrSigningDisabled
	}

	now := time.Now()
	claims := JWTClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{s.method.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.verifyKey, nil
	}, opts...)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.User() == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}

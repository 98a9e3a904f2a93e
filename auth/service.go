package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken signals a token that fails signature, expiry or claim checks.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrForbidden signals a valid caller asking for data outside its scope.
	ErrForbidden = errors.New("auth: forbidden")
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = 24 * time.Hour

// Service verifies and issues HMAC-signed bearer tokens. Credential checks
// happen upstream; this service only trusts what it signed.
type Service struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue signs a token for npn with the given role.
func (s *Service) Issue(npn string, role Role, ttl time.Duration) (string, error) {
	if !isValidRole(role) {
		return "", fmt.Errorf("auth: invalid role %q", role)
	}
	if npn == "" {
		return "", fmt.Errorf("auth: npn is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := s.now()
	claims := jwt.MapClaims{
		"npn":  npn,
		"role": string(role),
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns the caller it names.
func (s *Service) VerifyToken(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	npn, ok := claims["npn"].(string)
	if !ok || npn == "" {
		return Principal{}, fmt.Errorf("%w: missing npn", ErrInvalidToken)
	}
	roleStr, ok := claims["role"].(string)
	if !ok || !isValidRole(Role(roleStr)) {
		return Principal{}, fmt.Errorf("%w: invalid role %q", ErrInvalidToken, roleStr)
	}

	p := Principal{NPN: npn, Role: Role(roleStr)}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.ExpiresAt = exp.Time
	}
	return p, nil
}

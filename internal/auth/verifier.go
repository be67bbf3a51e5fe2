package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrNoKey        = errors.New("no verification key configured")
)

type VerifierService struct {
	key     interface{}
	methods []string
	leeway  time.Duration
}

// NewVerifier checks RS256/RS384/RS512 tokens against the identity provider's public key.
func NewVerifier(key interface{}) *VerifierService {
	return &VerifierService{
		key:     key,
		methods: []string{"RS256", "RS384", "RS512"},
		leeway:  30 * time.Second,
	}
}

// NewHMACVerifier checks HS256 tokens signed with a shared secret. It is meant
// for local development where no identity provider is running.
func NewHMACVerifier(secret []byte) *VerifierService {
	return &VerifierService{
		key:     secret,
		methods: []string{"HS256"},
		leeway:  30 * time.Second,
	}
}

// NewVerifierFromFile reads a PEM encoded RSA public key.
func NewVerifierFromFile(path string) (*VerifierService, error) {
	if path == "" {
		return nil, ErrNoKey
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("can't parse public key: %w", err)
	}
	return NewVerifier(key), nil
}

func (v *VerifierService) Verify(token string) (*UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods(v.methods), jwt.WithLeeway(v.leeway))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}
	return claims, nil
}

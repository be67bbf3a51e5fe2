package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signRS256(t *testing.T, key *rsa.PrivateKey, claims *UserClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err, "token should be signed")
	return token
}

func writePublicKey(t *testing.T, key *rsa.PrivateKey) string {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwt.pub")
	err = os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0600)
	require.NoError(t, err)
	return path
}

func TestVerifierFromFile_AcceptsValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier, err := NewVerifierFromFile(writePublicKey(t, key))
	require.NoError(t, err, "public key should be loaded")

	token := signRS256(t, key, &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: "alice",
		Name:     "Alice",
	})

	claims, err := verifier.Verify(token)
	require.NoError(t, err, "token should be accepted")
	assert.Equal(t, "u1", claims.UserID())
	assert.True(t, claims.HasProfile())
	assert.Equal(t, "alice", claims.Profile().Username)
	assert.Equal(t, "Alice", claims.Profile().DisplayName)
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := NewVerifier(&key.PublicKey)

	token := signRS256(t, key, &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_RejectsForeignKeyAndMethod(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := NewVerifier(&key.PublicKey)

	_, err = verifier.Verify(signRS256(t, other, &UserClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}))
	assert.ErrorIs(t, err, ErrInvalidToken, "token signed by another key must be rejected")

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = verifier.Verify(hmacToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "HS256 token must be rejected by RSA verifier")
}

func TestHMACVerifier_RequiresSubject(t *testing.T) {
	secret := []byte("dev-secret")
	verifier := NewHMACVerifier(secret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &UserClaims{Username: "nobody"}).SignedString(secret)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifierFromFile_EmptyPath(t *testing.T) {
	_, err := NewVerifierFromFile("")
	assert.ErrorIs(t, err, ErrNoKey)
}

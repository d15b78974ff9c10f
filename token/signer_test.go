package token

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-token-auth/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *RSASigner {
	t.Helper()
	key := rsaKey(t)
	s, err := NewRSASigner(key, &key.PublicKey)
	require.NoError(t, err)
	return s
}

func TestRSASigner_SignAndVerify(t *testing.T) {
	signer := newTestSigner(t)
	codec := NewCodec("iss", "aud")

	claims, err := codec.EncodeClaims("1", nil, model.KindAccess, nil, time.Now(), time.Minute)
	require.NoError(t, err)

	tokenString, err := signer.Sign(claims)
	require.NoError(t, err)

	verified, err := signer.Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, claims["jti"], verified["jti"])
	assert.Equal(t, "RS256", signer.Algorithm())
}

func TestRSASigner_VerifyAcceptsExpiredTokens(t *testing.T) {
	signer := newTestSigner(t)
	codec := NewCodec("iss", "aud")

	claims, err := codec.EncodeClaims("1", nil, model.KindAccess, nil, time.Now().Add(-2*time.Hour), time.Minute)
	require.NoError(t, err)
	tokenString, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = signer.Verify(tokenString)
	assert.NoError(t, err, "time claims are checked by the token service")
}

func TestRSASigner_VerifyFailures(t *testing.T) {
	signer := newTestSigner(t)
	claims := jwt.MapClaims{"sub": "1"}

	good, err := signer.Sign(claims)
	require.NoError(t, err)

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	cases := []struct {
		name  string
		token string
		kind  VerificationKind
	}{
		{"garbage", "stolen-token-format-garbage", VerifyMalformed},
		{"empty", "", VerifyMalformed},
		{"hs256", hs, VerifyAlgorithmMismatch},
		{"alg none", none, VerifyAlgorithmMismatch},
		{"tampered signature", tampered, VerifySignatureInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := signer.Verify(tc.token)
			var ve *VerificationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.kind, ve.Kind)
		})
	}
}

func TestRSASigner_VerifyOnly(t *testing.T) {
	key := rsaKey(t)
	s, err := NewRSASigner(nil, &key.PublicKey)
	require.NoError(t, err)

	_, err = s.Sign(jwt.MapClaims{"sub": "1"})
	assert.Error(t, err)

	_, err = NewRSASigner(nil, nil)
	assert.Error(t, err)
}

func TestLoadRSAKeys(t *testing.T) {
	key := rsaKey(t)
	dir := t.TempDir()

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o600))

	priv, pub, err := LoadRSAKeys(privPath, pubPath)
	require.NoError(t, err)
	assert.Equal(t, key.N, priv.N)
	assert.Equal(t, key.N, pub.N)

	_, _, err = LoadRSAKeys(filepath.Join(dir, "missing.pem"), pubPath)
	assert.ErrorContains(t, err, "failed to read private key")

	_, _, err = LoadRSAKeys(pubPath, pubPath)
	assert.ErrorContains(t, err, "failed to parse private key")
}

func TestHashToken(t *testing.T) {
	h := HashToken("refresh-token")
	assert.Len(t, h, 64)
	assert.NotContains(t, h, "refresh-token")
	assert.True(t, HashMatches("refresh-token", h))
	assert.False(t, HashMatches("other", h))
}

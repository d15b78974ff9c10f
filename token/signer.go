package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Signer turns claim sets into compact tokens and back.
// Verify checks integrity only (format, algorithm, signature); claim policy is left to the caller.
type Signer interface {
	Sign(claims jwt.MapClaims) (string, error)
	Verify(tokenString string) (jwt.MapClaims, error)
	Algorithm() string
}

// VerificationKind classifies why Verify rejected a token.
type VerificationKind string

const (
	VerifyMalformed         VerificationKind = "malformed"
	VerifySignatureInvalid  VerificationKind = "signature_invalid"
	VerifyAlgorithmMismatch VerificationKind = "algorithm_mismatch"
)

// VerificationError is returned by Signer.Verify.
type VerificationError struct {
	Kind VerificationKind
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("token verification failed (%s): %v", e.Kind, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

var errAlgorithmMismatch = errors.New("unexpected signing algorithm")

// RSASigner signs with RS256.
type RSASigner struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	parser  *jwt.Parser
}

// NewRSASigner creates a signer. A nil private key gives a verify-only signer.
func NewRSASigner(private *rsa.PrivateKey, public *rsa.PublicKey) (*RSASigner, error) {
	if public == nil {
		if private == nil {
			return nil, errors.New("rsa signer requires a public key")
		}
		public = &private.PublicKey
	}
	return &RSASigner{
		private: private,
		public:  public,
		// Time-based claims are validated by the token service so that expired tokens
		// can still be inspected and revoked.
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}, nil
}

// LoadRSAKeys reads PEM encoded key material from disk.
func LoadRSAKeys(privatePath, publicPath string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}
	private, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key: %w", err)
	}
	public, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return private, public, nil
}

func (s *RSASigner) Algorithm() string { return jwt.SigningMethodRS256.Alg() }

func (s *RSASigner) Sign(claims jwt.MapClaims) (string, error) {
	if s.private == nil {
		return "", errors.New("signer has no private key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(s.private)
	if err != nil {
		return "", fmt.Errorf("failed to sign token string: %w", err)
	}
	return tokenString, nil
}

func (s *RSASigner) Verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("%w: %s", errAlgorithmMismatch, t.Method.Alg())
		}
		return s.public, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, &VerificationError{Kind: VerifySignatureInvalid, Err: jwt.ErrTokenSignatureInvalid}
	}
	return claims, nil
}

func classify(err error) *VerificationError {
	switch {
	case errors.Is(err, errAlgorithmMismatch):
		return &VerificationError{Kind: VerifyAlgorithmMismatch, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &VerificationError{Kind: VerifyMalformed, Err: err}
	default:
		return &VerificationError{Kind: VerifySignatureInvalid, Err: err}
	}
}

package jwt

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrBodyMismatch  = errors.New("signed body digest does not match payload")
	ErrMissingSecret = errors.New("callback secret is empty")
)

// CallbackClaims binds a payment callback body to the payment provider's shared secret.
type CallbackClaims struct {
	BodySHA256 string `json:"body_sha256"`
	jwt.RegisteredClaims
}

type Service struct {
	secretKey []byte
	maxSkew   time.Duration
	now       func() time.Time
}

func NewService(secretKey string, maxSkew time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		maxSkew:   maxSkew,
		now:       time.Now,
	}
}

// Sign is used by the payment provider side; tests use it to build valid callbacks.
func (s *Service) Sign(body []byte) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrMissingSecret
	}
	now := s.now()
	claims := CallbackClaims{
		BodySHA256: digest(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "payment-service",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxSkew)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

func (s *Service) Verify(tokenString string, body []byte) error {
	if len(s.secretKey) == 0 {
		return ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &CallbackClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithLeeway(s.maxSkew))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(*CallbackClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(claims.BodySHA256), []byte(digest(body))) != 1 {
		return ErrBodyMismatch
	}
	return nil
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

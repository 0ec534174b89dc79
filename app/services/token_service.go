package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token error variables
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// TokenService handles JWT generation and validation for merchant sessions
type TokenService interface {
	GenerateToken(merchantID uint, shop string) (string, error)
	ValidateToken(token string) (*TokenClaims, error)
}

// TokenClaims are the validated claims of a merchant token
type TokenClaims struct {
	MerchantID uint
	Shop       string
	TokenID    string
	ExpiresAt  time.Time
}

// TokenServiceImpl implements TokenService with HMAC signing
type TokenServiceImpl struct {
	secretKey []byte
	tokenTTL  time.Duration
	issuer    string
}

func NewTokenService(secretKey string, tokenTTL time.Duration, issuer string) (TokenService, error) {
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("token secret key must be at least 32 characters")
	}
	return &TokenServiceImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
		issuer:    issuer,
	}, nil
}

// GenerateToken issues a signed token bound to the merchant and its shop
func (s *TokenServiceImpl) GenerateToken(merchantID uint, shop string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"merchant_id": merchantID,
		"shop":        shop,
		"jti":         uuid.New().String(),
		"iss":         s.issuer,
		"iat":         now.Unix(),
		"exp":         now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a merchant token
func (s *TokenServiceImpl) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	merchantID, ok := claims["merchant_id"].(float64)
	if !ok || merchantID <= 0 {
		return nil, ErrTokenInvalid
	}
	shop, _ := claims["shop"].(string)
	tokenID, _ := claims["jti"].(string)

	result := &TokenClaims{
		MerchantID: uint(merchantID),
		Shop:       shop,
		TokenID:    tokenID,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
	}
	return result, nil
}

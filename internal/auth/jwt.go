package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleOperator = "operator"
	issuer       = "payflow"
)

var ErrNotOperator = errors.New("token does not carry the operator role")

type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// GenerateOperatorToken signs a token that may settle payments and refunds.
func GenerateOperatorToken(subject, secret string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("GenerateOperatorToken: subject is required")
	}
	if secret == "" {
		return "", errors.New("GenerateOperatorToken: secret is required")
	}

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: RoleOperator,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateOperatorToken: %w", err)
	}
	return signed, nil
}

func ValidateOperatorToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("ValidateOperatorToken: %w", err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateOperatorToken: invalid token claims")
	}
	if tc.Role != RoleOperator {
		return nil, fmt.Errorf("ValidateOperatorToken: %w", ErrNotOperator)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("ValidateOperatorToken: missing subject")
	}

	return &Claims{
		Subject:   tc.Subject,
		Role:      tc.Role,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// Token roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// TokenClaims is what the API trusts from a bearer token
type TokenClaims struct {
	UserID uint
	Role   string
}

// GenerateToken creates a signed HS256 token for userID
func GenerateToken(secret string, userID uint, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret not configured")
	}
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["user_id"] = userID
	claims["role"] = role
	claims["exp"] = time.Now().Add(ttl).Unix()

	return token.SignedString([]byte(secret))
}

// ParseToken validates tokenString and returns its claims
func ParseToken(secret, tokenString string) (*TokenClaims, error) {
	if secret == "" {
		return nil, errors.New("JWT secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, errors.New("invalid user ID in token")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleUser
	}
	return &TokenClaims{UserID: uint(userID), Role: role}, nil
}

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the admin identity inside the JWT.
type Claims struct {
	AdminID string `json:"admin_id"`
	Name    string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed HS256 token for an admin console.
func GenerateToken(secret []byte, adminID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		AdminID: adminID,
		Name:    name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "aramistech-website",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and checks signature and expiry.
func ValidateToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

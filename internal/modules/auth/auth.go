package auth

import (
	"context"

	"github.com/dgrijalva/jwt-go"

	"github.com/georgemunganga/shop-backend/internal/modules/customer"
)

// Service defines the interface for authentication-related business logic.
type Service interface {
	Login(ctx context.Context, email, password string) (string, error)
	Parse(tokenString string) (*Claims, error)
}

// Claims are carried in every issued token. Subject holds the customer ID.
type Claims struct {
	jwt.StandardClaims
	Email string        `json:"email"`
	Role  customer.Role `json:"role"`
}

package auth

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/georgemunganga/shop-backend/internal/modules/customer"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type service struct {
	customerRepo customer.Repository
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewService creates a new auth service signing HS256 tokens with secret.
func NewService(customerRepo customer.Repository, secret string, ttl time.Duration) Service {
	return &service{customerRepo: customerRepo, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	c, err := s.customerRepo.GetCustomerByEmail(ctx, customer.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	if !c.IsActive() {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   c.ID.String(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Email: c.Email,
		Role:  c.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}

	return tokenString, nil
}

func (s *service) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

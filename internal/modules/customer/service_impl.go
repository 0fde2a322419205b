package customer

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidRegistration is returned for malformed registration data.
var ErrInvalidRegistration = errors.New("invalid registration")

const minPasswordLength = 8

type service struct {
	repo Repository
}

// NewService creates a new customer service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Customer, error) {
	return s.create(ctx, req, RoleCustomer)
}

func (s *service) CreateAdmin(ctx context.Context, email, password string) (*Customer, error) {
	return s.create(ctx, RegisterRequest{Email: email, Password: password}, RoleAdmin)
}

func (s *service) create(ctx context.Context, req RegisterRequest, role Role) (*Customer, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.Wrap(ErrInvalidRegistration, "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, errors.Wrapf(ErrInvalidRegistration, "password must be at least %d characters", minPasswordLength)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	c := &Customer{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   string(hashedPassword),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Phone:          strings.TrimSpace(req.Phone),
		Role:           role,
		Status:         StatusActive,
		DefaultAddress: req.DefaultAddress,
	}

	if err := s.repo.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetCustomerByID(ctx, uid)
}

func (s *service) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	return s.repo.GetCustomerByEmail(ctx, NormalizeEmail(email))
}

package customer

import "context"

// Service defines the interface for customer-related business logic.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Customer, error)
	CreateAdmin(ctx context.Context, email, password string) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetByEmail(ctx context.Context, email string) (*Customer, error)
}

// RegisterRequest holds the data for registering a customer.
type RegisterRequest struct {
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Phone          string   `json:"phone"`
	DefaultAddress *Address `json:"default_address,omitempty"`
}

package customer

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/georgemunganga/shop-backend/internal/infra/postgres"
)

type postgresRepository struct {
	db *postgres.DB
}

// NewPostgresRepository creates a new PostgreSQL customer repository.
func NewPostgresRepository(db *postgres.DB) Repository {
	return &postgresRepository{db: db}
}

const customerColumns = `id, email, password_hash, first_name, last_name, phone, role, status, default_address, created_at, updated_at`

func (r *postgresRepository) CreateCustomer(ctx context.Context, c *Customer) error {
	query := `
		INSERT INTO customers (id, email, password_hash, first_name, last_name, phone, role, status, default_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		c.ID, c.Email, c.PasswordHash, c.FirstName, c.LastName, c.Phone, c.Role, c.Status, c.DefaultAddress,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return errors.Wrap(err, "insert customer")
}

func (r *postgresRepository) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	c := &Customer{}
	query := `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`
	if err := sqlx.GetContext(ctx, r.db.Conn(ctx), c, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select customer by email")
	}
	return c, nil
}

func (r *postgresRepository) GetCustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	c := &Customer{}
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db.Conn(ctx), c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select customer by id")
	}
	return c, nil
}

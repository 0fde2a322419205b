package inventory

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/georgemunganga/shop-backend/internal/infra/postgres"
)

const productColumns = `id,name,description,sku,price,currency,stock_quantity,reorder_point,status,created_at,updated_at`

type postgresRepository struct {
	db *postgres.DB
}

// NewPostgresRepository creates a new PostgreSQL product repository.
func NewPostgresRepository(db *postgres.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateProduct(ctx context.Context, p *Product) error {
	err := sqlx.GetContext(ctx, r.db.Conn(ctx), p, `
INSERT INTO products (id,name,description,sku,price,currency,stock_quantity,reorder_point,status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.SKU, p.Price, p.Currency, p.StockQuantity, p.ReorderPoint, p.Status)
	if postgres.IsUniqueViolation(err) {
		return ErrSKUTaken
	}
	return errors.Wrap(err, "insert product")
}

func (r *postgresRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p := &Product{}
	err := sqlx.GetContext(ctx, r.db.Conn(ctx), p, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select product")
	}
	return p, nil
}

func (r *postgresRepository) ListProducts(ctx context.Context) ([]*Product, error) {
	var products []*Product
	err := sqlx.SelectContext(ctx, r.db.Conn(ctx), &products,
		`SELECT `+productColumns+` FROM products ORDER BY name, id`)
	return products, errors.Wrap(err, "list products")
}

func (r *postgresRepository) ListLowStock(ctx context.Context) ([]*Product, error) {
	var products []*Product
	err := sqlx.SelectContext(ctx, r.db.Conn(ctx), &products, `
SELECT `+productColumns+` FROM products
WHERE stock_quantity <= reorder_point
ORDER BY stock_quantity, name`)
	return products, errors.Wrap(err, "list low stock")
}

func (r *postgresRepository) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE products SET price=$1, updated_at=NOW() WHERE id=$2`, price, id)
	return affectedOne(res, err, "update price")
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status ProductStatus) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE products SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	return affectedOne(res, err, "update status")
}

// DecrementIfAvailable is a single conditional UPDATE. A missing RETURNING row
// is the zero-rows-affected case: the product lacks stock or does not exist.
func (r *postgresRepository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, qty int) (int, bool, error) {
	var after int
	err := sqlx.GetContext(ctx, r.db.Conn(ctx), &after, `
UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = NOW()
WHERE id = $2 AND stock_quantity >= $1
RETURNING stock_quantity`, qty, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "decrement stock")
	}
	return after, true, nil
}

func (r *postgresRepository) Increment(ctx context.Context, id uuid.UUID, qty int) (int, error) {
	var after int
	err := sqlx.GetContext(ctx, r.db.Conn(ctx), &after, `
UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW()
WHERE id = $2
RETURNING stock_quantity`, qty, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "increment stock")
	}
	return after, nil
}

func (r *postgresRepository) RecordAdjustment(ctx context.Context, a *StockAdjustment) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
INSERT INTO stock_adjustments (id,product_id,delta,quantity_before,quantity_after,reason,reference,created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.ProductID, a.Delta, a.QuantityBefore, a.QuantityAfter, a.Reason, a.Reference, a.CreatedAt)
	return errors.Wrap(err, "insert stock adjustment")
}

func (r *postgresRepository) ListAdjustments(ctx context.Context, productID uuid.UUID) ([]*StockAdjustment, error) {
	var adjustments []*StockAdjustment
	err := sqlx.SelectContext(ctx, r.db.Conn(ctx), &adjustments, `
SELECT id,product_id,delta,quantity_before,quantity_after,reason,reference,created_at
FROM stock_adjustments WHERE product_id=$1 ORDER BY created_at, id`, productID)
	return adjustments, errors.Wrap(err, "list stock adjustments")
}

func affectedOne(res sql.Result, err error, op string) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

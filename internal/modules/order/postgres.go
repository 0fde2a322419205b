package order

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/georgemunganga/shop-backend/internal/infra/postgres"
)

const (
	orderColumns = `id,order_number,customer_id,status,shipping_address,billing_address,total_amount,currency,notes,created_at,updated_at`
	itemColumns  = `id,order_id,position,product_id,product_name,sku,quantity,unit_price,line_total,status,created_at,updated_at`
)

type postgresRepo struct{ db *postgres.DB }

func NewPostgresRepository(db *postgres.DB) Repository { return &postgresRepo{db: db} }

// CreateOrder inserts the order and all its items. It relies on the caller's
// transaction for atomicity.
func (r *postgresRepo) CreateOrder(ctx context.Context, o *Order) error {
	conn := r.db.Conn(ctx)
	err := sqlx.GetContext(ctx, conn, o, `
		INSERT INTO orders
		  (id, order_number, customer_id, status, shipping_address, billing_address,
		   total_amount, currency, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+orderColumns,
		o.ID, o.OrderNumber, o.CustomerID, o.Status, o.ShippingAddress, o.BillingAddress,
		o.TotalAmount, o.Currency, o.Notes)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for _, item := range o.Items {
		err = sqlx.GetContext(ctx, conn, item, `
			INSERT INTO order_items
			  (id, order_id, position, product_id, product_name, sku, quantity, unit_price, line_total, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING `+itemColumns,
			item.ID, o.ID, item.Position, item.ProductID, item.ProductName, item.SKU,
			item.Quantity, item.UnitPrice, item.LineTotal, item.Status)
		if err != nil {
			return errors.Wrap(err, "insert order_item")
		}
	}
	return nil
}

func (r *postgresRepo) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, "", id)
}

func (r *postgresRepo) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, " FOR UPDATE", id)
}

func (r *postgresRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	return r.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`, "", orderNumber)
}

func (r *postgresRepo) getOrder(ctx context.Context, query, itemLock string, arg interface{}) (*Order, error) {
	o := &Order{}
	err := sqlx.GetContext(ctx, r.db.Conn(ctx), o, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	err = sqlx.SelectContext(ctx, r.db.Conn(ctx), &o.Items,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id=$1 ORDER BY position`+itemLock, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "select order items")
	}
	return o, nil
}

func (r *postgresRepo) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Order, error) {
	var orders []*Order
	err := sqlx.SelectContext(ctx, r.db.Conn(ctx), &orders,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC, id`, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *postgresRepo) ListOrders(ctx context.Context, q ListQuery) ([]*Order, error) {
	orders := []*Order{}
	err := sqlx.SelectContext(ctx, r.db.Conn(ctx), &orders, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, q.Status, q.Limit, q.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of every order in one query.
func (r *postgresRepo) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM order_items WHERE order_id IN (?) ORDER BY order_id, position`, ids)
	if err != nil {
		return errors.Wrap(err, "build items query")
	}
	var items []*Item
	conn := r.db.Conn(ctx)
	if err := sqlx.SelectContext(ctx, conn, &items, conn.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "list order items")
	}
	for _, it := range items {
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return nil
}

func (r *postgresRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	return affectedOne(res, err, ErrOrderNotFound)
}

func (r *postgresRepo) UpdateItemStatus(ctx context.Context, orderID, itemID uuid.UUID, status ItemStatus) error {
	res, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE order_items SET status=$1, updated_at=NOW() WHERE id=$2 AND order_id=$3`, status, itemID, orderID)
	return affectedOne(res, err, ErrItemNotFound)
}

func (r *postgresRepo) AppendHistory(ctx context.Context, changes ...*StatusChange) error {
	for _, c := range changes {
		_, err := r.db.Conn(ctx).ExecContext(ctx, `
			INSERT INTO order_status_history (id, order_id, item_id, from_status, to_status, reason, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			c.ID, c.OrderID, c.ItemID, c.From, c.To, c.Reason, c.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "insert status history")
		}
	}
	return nil
}

func (r *postgresRepo) ListHistory(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	var changes []*StatusChange
	err := sqlx.SelectContext(ctx, r.db.Conn(ctx), &changes, `
		SELECT id, order_id, item_id, from_status, to_status, reason, created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY seq`, orderID)
	return changes, errors.Wrap(err, "list status history")
}

func affectedOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return errors.Wrap(err, "update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/georgemunganga/shop-backend/internal/events"
)

// Service defines product catalog and stock administration.
type Service interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)
	ChangePrice(ctx context.Context, id string, price decimal.Decimal) (*Product, error)
	SetAvailability(ctx context.Context, id string, available bool) (*Product, error)
	Restock(ctx context.Context, id string, qty int, reference string) (*StockAdjustment, error)
	Adjustments(ctx context.Context, id string) ([]*StockAdjustment, error)
	LowStock(ctx context.Context) ([]*Product, error)
}

// CreateProductRequest holds data for creating a product.
type CreateProductRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	StockQuantity int             `json:"stock_quantity"`
	ReorderPoint  *int            `json:"reorder_point,omitempty"`
}

type service struct {
	repo            Repository
	stock           *Stock
	tx              Transactor
	dispatcher      events.Dispatcher
	log             logrus.FieldLogger
	defaultCurrency string
}

// NewService creates a new inventory service.
func NewService(repo Repository, stock *Stock, tx Transactor, dispatcher events.Dispatcher, log logrus.FieldLogger, defaultCurrency string) Service {
	return &service{
		repo:            repo,
		stock:           stock,
		tx:              tx,
		dispatcher:      dispatcher,
		log:             log,
		defaultCurrency: defaultCurrency,
	}
}

func (s *service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	name := strings.TrimSpace(req.Name)
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if name == "" || sku == "" {
		return nil, errors.Wrap(ErrInvalidProduct, "name and sku are required")
	}
	if req.Price.IsNegative() {
		return nil, errors.Wrap(ErrInvalidProduct, "price must not be negative")
	}
	if req.StockQuantity < 0 {
		return nil, errors.Wrap(ErrInvalidQuantity, "stock_quantity must not be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if len(currency) != 3 {
		return nil, errors.Wrapf(ErrInvalidProduct, "currency %q", currency)
	}
	reorderPoint := DefaultReorderPoint
	if req.ReorderPoint != nil {
		reorderPoint = *req.ReorderPoint
	}

	p := &Product{
		ID:            uuid.New(),
		Name:          name,
		Description:   req.Description,
		SKU:           sku,
		Price:         req.Price.Round(2),
		Currency:      currency,
		StockQuantity: req.StockQuantity,
		ReorderPoint:  reorderPoint,
		Status:        ProductActive,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.log.WithField("product_id", p.ID).WithField("sku", p.SKU).Info("product created")
	return p, nil
}

func (s *service) GetProduct(ctx context.Context, id string) (*Product, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetProductByID(ctx, pid)
}

func (s *service) ListProducts(ctx context.Context) ([]*Product, error) {
	return s.repo.ListProducts(ctx)
}

// ChangePrice affects future orders only; placed orders keep their frozen price.
func (s *service) ChangePrice(ctx context.Context, id string, price decimal.Decimal) (*Product, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if price.IsNegative() {
		return nil, errors.Wrap(ErrInvalidProduct, "price must not be negative")
	}
	if err := s.repo.UpdatePrice(ctx, pid, price.Round(2)); err != nil {
		return nil, err
	}
	return s.repo.GetProductByID(ctx, pid)
}

func (s *service) SetAvailability(ctx context.Context, id string, available bool) (*Product, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	status := ProductInactive
	if available {
		status = ProductActive
	}
	if err := s.repo.UpdateStatus(ctx, pid, status); err != nil {
		return nil, err
	}
	return s.repo.GetProductByID(ctx, pid)
}

func (s *service) Restock(ctx context.Context, id string, qty int, reference string) (*StockAdjustment, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, errors.Wrapf(ErrInvalidQuantity, "restock %d units", qty)
	}

	var adj *StockAdjustment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		adj, err = s.stock.Release(ctx, pid, qty, ReasonRestock, reference)
		return err
	})
	if err != nil {
		return nil, err
	}

	events.DispatchAll(ctx, s.dispatcher, s.log, []events.Event{adj.Event()})
	return adj, nil
}

func (s *service) Adjustments(ctx context.Context, id string) ([]*StockAdjustment, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProductByID(ctx, pid); err != nil {
		return nil, err
	}
	return s.repo.ListAdjustments(ctx, pid)
}

func (s *service) LowStock(ctx context.Context) ([]*Product, error) {
	return s.repo.ListLowStock(ctx)
}

func parseID(id string) (uuid.UUID, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrProductNotFound
	}
	return pid, nil
}

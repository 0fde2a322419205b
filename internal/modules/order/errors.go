package order

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/georgemunganga/shop-backend/internal/modules/customer"
	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrOrderNotFound       = errors.New("order not found")
	ErrItemNotFound        = errors.New("order item not found")
	ErrIllegalTransition   = errors.New("illegal transition")
	ErrPlacementInProgress = errors.New("placement with this idempotency key is in progress")
)

// IllegalTransitionError rejects a status change that has no edge in the
// transition table, or that the order's items cannot follow. ItemID names
// the offending item, if any.
type IllegalTransitionError struct {
	OrderID uuid.UUID  `json:"order_id"`
	ItemID  *uuid.UUID `json:"item_id,omitempty"`
	From    string     `json:"from"`
	To      string     `json:"to"`
	Detail  string     `json:"detail,omitempty"`
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
	if e.ItemID != nil {
		msg = fmt.Sprintf("order %s item %s: illegal transition %s -> %s", e.OrderID, *e.ItemID, e.From, e.To)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// PersistenceError is an infrastructure failure. Any stock the operation
// touched was rolled back, unless Err wraps postgres.ErrRollbackFailed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind is the closed set of failures an engine operation can return.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInvalidRequest      ErrorKind = "INVALID_REQUEST"
	KindCustomerNotFound    ErrorKind = "CUSTOMER_NOT_FOUND"
	KindProductNotFound     ErrorKind = "PRODUCT_NOT_FOUND"
	KindProductUnavailable  ErrorKind = "PRODUCT_UNAVAILABLE"
	KindInsufficientStock   ErrorKind = "INSUFFICIENT_STOCK"
	KindOrderNotFound       ErrorKind = "ORDER_NOT_FOUND"
	KindItemNotFound        ErrorKind = "ITEM_NOT_FOUND"
	KindIllegalTransition   ErrorKind = "ILLEGAL_TRANSITION"
	KindPlacementInProgress ErrorKind = "PLACEMENT_IN_PROGRESS"
	KindPersistence         ErrorKind = "PERSISTENCE_FAILURE"
)

// KindOf maps err onto the closed set. Anything unrecognised is a
// persistence failure.
func KindOf(err error) ErrorKind {
	var pe *PersistenceError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &pe):
		return KindPersistence
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, inventory.ErrInvalidQuantity):
		return KindInvalidRequest
	case errors.Is(err, customer.ErrNotFound):
		return KindCustomerNotFound
	case errors.Is(err, inventory.ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, inventory.ErrProductUnavailable):
		return KindProductUnavailable
	case errors.Is(err, inventory.ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrOrderNotFound):
		return KindOrderNotFound
	case errors.Is(err, ErrItemNotFound):
		return KindItemNotFound
	case errors.Is(err, ErrIllegalTransition):
		return KindIllegalTransition
	case errors.Is(err, ErrPlacementInProgress):
		return KindPlacementInProgress
	default:
		return KindPersistence
	}
}

// asPersistence wraps infrastructure failures and passes domain errors through.
func asPersistence(op string, err error) error {
	if err == nil || KindOf(err) != KindPersistence {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

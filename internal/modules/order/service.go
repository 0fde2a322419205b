package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/georgemunganga/shop-backend/internal/events"
	"github.com/georgemunganga/shop-backend/internal/modules/customer"
	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
)

// Service defines the order lifecycle.
type Service interface {
	// PlaceOrder reserves stock, freezes prices and persists the order in one
	// transaction. Either everything happens or nothing does.
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (*Order, error)

	// Transition moves an order to a new status, cascading to its items and
	// releasing the stock of every item that stops holding it.
	Transition(ctx context.Context, cmd TransitionCommand) (*Order, error)

	// TransitionItem moves a single item and rolls the order status up.
	TransitionItem(ctx context.Context, cmd ItemTransitionCommand) (*Order, error)

	// Cancel is Transition to CANCELLED.
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*Order, error)

	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID) ([]*Order, error)
	// ListOrders pages through all orders, newest first, for administration.
	ListOrders(ctx context.Context, q ListQuery) ([]*Order, error)
	History(ctx context.Context, id uuid.UUID) ([]*StatusChange, error)
	NextStatuses(ctx context.Context, id uuid.UUID) ([]Status, error)
}

// Dependencies wires the service. Idempotency, Dispatcher, machines and
// Clock are optional.
type Dependencies struct {
	Orders          Repository
	Customers       Customers
	Stock           Inventory
	Tx              Transactor
	Dispatcher      events.Dispatcher
	Idempotency     IdempotencyStore
	Log             logrus.FieldLogger
	OrderMachine    *Machine[Status]
	ItemMachine     *Machine[ItemStatus]
	Clock           func() time.Time
	DefaultCurrency string
}

type service struct {
	orders      Repository
	customers   Customers
	stock       Inventory
	tx          Transactor
	dispatcher  events.Dispatcher
	idempotency IdempotencyStore
	log         logrus.FieldLogger
	orderFSM    *Machine[Status]
	itemFSM     *Machine[ItemStatus]
	now         func() time.Time
	currency    string
}

// NewService creates a new order service.
func NewService(deps Dependencies) Service {
	s := &service{
		orders:      deps.Orders,
		customers:   deps.Customers,
		stock:       deps.Stock,
		tx:          deps.Tx,
		dispatcher:  deps.Dispatcher,
		idempotency: deps.Idempotency,
		log:         deps.Log,
		orderFSM:    deps.OrderMachine,
		itemFSM:     deps.ItemMachine,
		now:         deps.Clock,
		currency:    strings.ToUpper(deps.DefaultCurrency),
	}
	if s.orderFSM == nil {
		s.orderFSM = NewOrderMachine()
	}
	if s.itemFSM == nil {
		s.itemFSM = NewItemMachine()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

// ── placement ────────────────────────────────────────────────────────────────

func (s *service) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (o *Order, err error) {
	email := customer.NormalizeEmail(cmd.CustomerEmail)
	if email == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "customer email is required")
	}
	lines, err := mergeLines(cmd.Lines)
	if err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" && s.idempotency != nil {
		key := email + ":" + cmd.IdempotencyKey
		var (
			ref     string
			claimed bool
		)
		ref, claimed, err = s.idempotency.Claim(ctx, key)
		if err != nil {
			return nil, asPersistence("claim idempotency key", err)
		}
		if !claimed {
			return s.replay(ctx, ref)
		}
		defer func() {
			if err != nil {
				// The transaction has already rolled back at this point.
				if ferr := s.idempotency.Forget(ctx, key); ferr != nil {
					s.log.WithError(ferr).WithField("idempotency_key", cmd.IdempotencyKey).Warn("failed to free idempotency key")
				}
				return
			}
			if cerr := s.idempotency.Complete(ctx, key, o.ID.String()); cerr != nil {
				s.log.WithError(cerr).WithField("order_id", o.ID).Warn("failed to record idempotency key")
			}
		}()
	}

	var adjustments []*inventory.StockAdjustment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, adjustments, err = s.place(ctx, email, cmd, lines)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("customer", email).Info("order placement rejected")
		return nil, asPersistence("place order", err)
	}

	evts := []events.Event{s.statusEvent(o, "", string(o.Status), "order placed")}
	for _, adj := range adjustments {
		evts = append(evts, adj.Event())
	}
	events.DispatchAll(ctx, s.dispatcher, s.log, evts)

	s.log.WithFields(logrus.Fields{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"total":        o.TotalAmount.StringFixed(2),
		"items":        len(o.Items),
	}).Info("order placed")
	return o, nil
}

func (s *service) place(ctx context.Context, email string, cmd PlaceOrderCommand, lines []Line) (*Order, []*inventory.StockAdjustment, error) {
	cust, err := s.customers.GetCustomerByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if !cust.IsActive() {
		return nil, nil, errors.Wrapf(ErrInvalidRequest, "customer %s is not active", cust.ID)
	}

	shipping := cmd.ShippingAddress
	if shipping == nil || shipping.IsZero() {
		shipping = cust.DefaultAddress
	}
	if shipping == nil || shipping.IsZero() {
		return nil, nil, errors.Wrap(ErrInvalidRequest, "a shipping address is required")
	}
	billing := cmd.BillingAddress
	if billing == nil || billing.IsZero() {
		billing = shipping
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	// Validate every line before touching stock.
	products := make(map[uuid.UUID]*inventory.Product, len(lines))
	for _, l := range lines {
		p, err := s.stock.Product(ctx, l.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if !p.IsAvailable() {
			return nil, nil, errors.Wrapf(inventory.ErrProductUnavailable, "product %s", p.ID)
		}
		if p.Currency != currency {
			return nil, nil, errors.Wrapf(ErrInvalidRequest, "product %s is priced in %s, order is in %s", p.ID, p.Currency, currency)
		}
		products[l.ProductID] = p
	}

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.New(),
		OrderNumber:     newOrderNumber(now),
		CustomerID:      cust.ID,
		Status:          StatusPending,
		ShippingAddress: *shipping,
		BillingAddress:  *billing,
		Currency:        currency,
		Notes:           strings.TrimSpace(cmd.Notes),
	}
	if cmd.PaymentVerified {
		o.Status = StatusPaid
	}

	// Reserve in ascending product order so concurrent placements lock rows
	// in the same sequence.
	reserveOrder := append([]Line(nil), lines...)
	sort.Slice(reserveOrder, func(i, j int) bool {
		return productLess(reserveOrder[i].ProductID, reserveOrder[j].ProductID)
	})
	adjustments := make([]*inventory.StockAdjustment, 0, len(lines))
	for _, l := range reserveOrder {
		adj, err := s.stock.Reserve(ctx, l.ProductID, l.Quantity, o.OrderNumber)
		if err != nil {
			return nil, nil, err
		}
		adjustments = append(adjustments, adj)
	}

	total := decimal.Zero
	for i, l := range lines {
		p := products[l.ProductID]
		snap := FreezePrice(p, l.Quantity)
		o.Items = append(o.Items, &Item{
			ID:          uuid.New(),
			OrderID:     o.ID,
			Position:    i + 1,
			ProductID:   p.ID,
			ProductName: p.Name,
			SKU:         p.SKU,
			Quantity:    snap.Quantity,
			UnitPrice:   snap.UnitPrice,
			LineTotal:   snap.LineTotal,
			Status:      ItemPending,
		})
		total = total.Add(snap.LineTotal)
	}
	o.TotalAmount = total
	if err := o.VerifyTotal(); err != nil {
		return nil, nil, err
	}

	if err := s.orders.CreateOrder(ctx, o); err != nil {
		return nil, nil, err
	}
	if err := s.orders.AppendHistory(ctx, s.change(o.ID, nil, "", string(o.Status), "order placed")); err != nil {
		return nil, nil, err
	}
	return o, adjustments, nil
}

func (s *service) replay(ctx context.Context, ref string) (*Order, error) {
	if ref == "" {
		return nil, ErrPlacementInProgress
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, &PersistenceError{Op: "replay idempotent placement", Err: err}
	}
	o, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, asPersistence("replay idempotent placement", err)
	}
	return o, nil
}

// mergeLines sums quantities of repeated products, keeping first-seen order.
func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "order must contain at least one line")
	}
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == uuid.Nil {
			return nil, errors.Wrap(ErrInvalidRequest, "product_id is required")
		}
		if l.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidRequest, "quantity must be > 0 for product %s", l.ProductID)
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

// newOrderNumber creates a human-readable order number: ORD-YYYYMMDD-XXXXXX
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// ── transitions ──────────────────────────────────────────────────────────────

// applied collects what a transaction changed so events go out after commit.
type applied struct {
	events []events.Event
}

func (a *applied) add(e events.Event) { a.events = append(a.events, e) }

func (s *service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	target := Status(strings.ToUpper(string(cmd.Target)))
	if !s.orderFSM.Known(target) {
		return nil, errors.Wrapf(ErrInvalidRequest, "unknown order status %q", cmd.Target)
	}

	var o *Order
	out := &applied{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetOrderForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if o.Status == target {
			return nil
		}
		if !s.orderFSM.CanTransition(o.Status, target) {
			return &IllegalTransitionError{OrderID: o.ID, From: string(o.Status), To: string(target)}
		}

		moves, err := s.cascade(o, target)
		if err != nil {
			return err
		}
		for _, m := range moves {
			if err := s.moveItem(ctx, o, m.item, m.path, cmd.Reason, out); err != nil {
				return err
			}
		}
		if err := s.setStatus(ctx, o, target, cmd.Reason, out); err != nil {
			return err
		}
		return o.VerifyTotal()
	})
	if err != nil {
		return nil, asPersistence("transition order", err)
	}

	events.DispatchAll(ctx, s.dispatcher, s.log, out.events)
	return o, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Order, error) {
	return s.Transition(ctx, TransitionCommand{OrderID: id, Target: StatusCancelled, Reason: reason})
}

func (s *service) TransitionItem(ctx context.Context, cmd ItemTransitionCommand) (*Order, error) {
	target := ItemStatus(strings.ToUpper(string(cmd.Target)))
	if !s.itemFSM.Known(target) {
		return nil, errors.Wrapf(ErrInvalidRequest, "unknown item status %q", cmd.Target)
	}

	var o *Order
	out := &applied{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetOrderForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		it, ok := o.Item(cmd.ItemID)
		if !ok {
			return ErrItemNotFound
		}
		if it.Status == target {
			return nil
		}

		itemID := it.ID
		if !s.itemFSM.CanTransition(it.Status, target) {
			return &IllegalTransitionError{OrderID: o.ID, ItemID: &itemID, From: string(it.Status), To: string(target)}
		}
		if !s.itemAllowed(o.Status, target) {
			return &IllegalTransitionError{
				OrderID: o.ID, ItemID: &itemID, From: string(it.Status), To: string(target),
				Detail: fmt.Sprintf("order is %s", o.Status),
			}
		}

		if err := s.moveItem(ctx, o, it, []ItemStatus{target}, cmd.Reason, out); err != nil {
			return err
		}
		if err := s.rollUp(ctx, o, out); err != nil {
			return err
		}
		return o.VerifyTotal()
	})
	if err != nil {
		return nil, asPersistence("transition order item", err)
	}

	events.DispatchAll(ctx, s.dispatcher, s.log, out.events)
	return o, nil
}

type itemMove struct {
	item *Item
	path []ItemStatus
}

// cascade works out how every item follows an order moving to target. An
// item that cannot follow rejects the whole transition.
func (s *service) cascade(o *Order, target Status) ([]itemMove, error) {
	var moves []itemMove
	for _, it := range byProduct(o.Items) {
		to, ok := itemTargetFor(target, it.Status)
		if ok && to != it.Status {
			var path []ItemStatus
			path, ok = s.itemFSM.Path(it.Status, to)
			if ok {
				moves = append(moves, itemMove{item: it, path: path})
				continue
			}
		}
		if !ok {
			itemID := it.ID
			return nil, &IllegalTransitionError{
				OrderID: o.ID, ItemID: &itemID, From: string(o.Status), To: string(target),
				Detail: fmt.Sprintf("item is %s", it.Status),
			}
		}
	}
	return moves, nil
}

// itemTargetFor returns the status an item moves to when its order moves to
// order. ok is false when the item blocks the order transition.
func itemTargetFor(order Status, item ItemStatus) (ItemStatus, bool) {
	unshipped := item == ItemPending || item == ItemProcessing
	excluded := !holdsStock(item)

	switch order {
	case StatusProcessing:
		if item == ItemPending {
			return ItemProcessing, true
		}
	case StatusShipped:
		if unshipped || item == ItemPartiallyShipped {
			return ItemShipped, true
		}
	case StatusDelivered:
		switch {
		case item == ItemShipped:
			return ItemDelivered, true
		case unshipped, item == ItemPartiallyShipped:
			return item, false
		}
	case StatusCompleted:
		if item != ItemDelivered && !excluded {
			return item, false
		}
	case StatusCancelled:
		switch {
		case unshipped:
			return ItemCancelled, true
		case !excluded:
			return item, false
		}
	case StatusReturned:
		switch {
		case unshipped:
			return ItemCancelled, true
		case item == ItemPartiallyShipped, item == ItemShipped, item == ItemDelivered:
			return ItemReturned, true
		}
	case StatusRefunded:
		switch {
		case unshipped:
			return ItemCancelled, true
		case item == ItemReturned:
			return ItemRefunded, true
		case !excluded:
			return item, false
		}
	}
	return item, true
}

// rollUp advances the order to the most advanced status all its items share.
func (s *service) rollUp(ctx context.Context, o *Order, out *applied) error {
	target, ok := rollUpTarget(o.Items)
	if !ok || target == o.Status {
		return nil
	}
	path, ok := s.orderFSM.Path(o.Status, target)
	if !ok {
		s.log.WithFields(logrus.Fields{"order_id": o.ID, "from": o.Status, "to": target}).
			Warn("item statuses imply an unreachable order status")
		return nil
	}
	for _, st := range path {
		if err := s.setStatus(ctx, o, st, "rolled up from item statuses", out); err != nil {
			return err
		}
	}
	return nil
}

func rollUpTarget(items []*Item) (Status, bool) {
	counts := make(map[ItemStatus]int)
	active := 0
	for _, it := range items {
		counts[it.Status]++
		if holdsStock(it.Status) {
			active++
		}
	}
	n := len(items)
	switch {
	case n == 0:
		return "", false
	case counts[ItemCancelled] == n:
		return StatusCancelled, true
	case counts[ItemCancelled]+counts[ItemRefunded] == n:
		return StatusRefunded, true
	case active == 0:
		return StatusReturned, true
	case counts[ItemDelivered] == active:
		return StatusDelivered, true
	case counts[ItemShipped]+counts[ItemDelivered] == active:
		return StatusShipped, true
	}
	return "", false
}

// itemAllowed reports whether an item may move to target while its order is
// in status. A final order freezes its items.
func (s *service) itemAllowed(status Status, target ItemStatus) bool {
	switch {
	case s.orderFSM.IsFinal(status):
		return false
	case isFulfillment(target):
		return fulfilling(status)
	case target == ItemReturned:
		return status == StatusShipped || status == StatusDelivered
	}
	return true
}

// byProduct orders items by product ID, the order placement reserves in, so
// releases lock product rows in the same sequence.
func byProduct(items []*Item) []*Item {
	out := append([]*Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		return productLess(out[i].ProductID, out[j].ProductID)
	})
	return out
}

func productLess(a, b uuid.UUID) bool {
	return a.String() < b.String()
}

func isFulfillment(s ItemStatus) bool {
	switch s {
	case ItemProcessing, ItemPartiallyShipped, ItemShipped, ItemDelivered:
		return true
	}
	return false
}

func fulfilling(s Status) bool {
	return s == StatusProcessing || s == StatusShipped || s == StatusDelivered
}

// moveItem walks an item along path, releasing its stock when it stops
// holding it.
func (s *service) moveItem(ctx context.Context, o *Order, it *Item, path []ItemStatus, reason string, out *applied) error {
	for _, next := range path {
		from := it.Status
		if holdsStock(from) && !holdsStock(next) {
			why := inventory.ReasonCancellation
			if next != ItemCancelled {
				why = inventory.ReasonReturn
			}
			adj, err := s.stock.Release(ctx, it.ProductID, it.Quantity, why, o.OrderNumber)
			if err != nil {
				return err
			}
			if adj != nil {
				out.add(adj.Event())
			}
		}
		if err := s.orders.UpdateItemStatus(ctx, o.ID, it.ID, next); err != nil {
			return err
		}
		itemID := it.ID
		if err := s.orders.AppendHistory(ctx, s.change(o.ID, &itemID, string(from), string(next), reason)); err != nil {
			return err
		}
		it.Status = next
		out.add(events.ItemStatusChanged{
			OrderID:    o.ID,
			ItemID:     it.ID,
			ProductID:  it.ProductID,
			From:       string(from),
			To:         string(next),
			Reason:     reason,
			OccurredAt: s.now().UTC(),
		})
	}
	return nil
}

func (s *service) setStatus(ctx context.Context, o *Order, to Status, reason string, out *applied) error {
	from := o.Status
	if err := s.orders.UpdateStatus(ctx, o.ID, to); err != nil {
		return err
	}
	if err := s.orders.AppendHistory(ctx, s.change(o.ID, nil, string(from), string(to), reason)); err != nil {
		return err
	}
	o.Status = to
	o.UpdatedAt = s.now().UTC()
	out.add(s.statusEvent(o, string(from), string(to), reason))
	s.log.WithFields(logrus.Fields{"order_id": o.ID, "from": from, "to": to}).Info("order status changed")
	return nil
}

func (s *service) change(orderID uuid.UUID, itemID *uuid.UUID, from, to, reason string) *StatusChange {
	return &StatusChange{
		ID:        uuid.New(),
		OrderID:   orderID,
		ItemID:    itemID,
		From:      from,
		To:        to,
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	}
}

func (s *service) statusEvent(o *Order, from, to, reason string) events.StatusChanged {
	return events.StatusChanged{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		From:        from,
		To:          to,
		Reason:      reason,
		OccurredAt:  s.now().UTC(),
	}
}

// ── queries ──────────────────────────────────────────────────────────────────

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetOrderByID(ctx, id)
	return o, asPersistence("get order", err)
}

func (s *service) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	o, err := s.orders.GetOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(orderNumber)))
	return o, asPersistence("get order by number", err)
}

func (s *service) ListCustomerOrders(ctx context.Context, customerID uuid.UUID) ([]*Order, error) {
	orders, err := s.orders.ListOrdersByCustomer(ctx, customerID)
	return orders, asPersistence("list orders", err)
}

func (s *service) ListOrders(ctx context.Context, q ListQuery) ([]*Order, error) {
	if q.Status != "" {
		q.Status = Status(strings.ToUpper(string(q.Status)))
		if !s.orderFSM.Known(q.Status) {
			return nil, errors.Wrapf(ErrInvalidRequest, "unknown order status %q", q.Status)
		}
	}
	switch {
	case q.Limit < 0 || q.Offset < 0:
		return nil, errors.Wrap(ErrInvalidRequest, "limit and offset must not be negative")
	case q.Limit == 0:
		q.Limit = DefaultPageSize
	case q.Limit > MaxPageSize:
		q.Limit = MaxPageSize
	}
	orders, err := s.orders.ListOrders(ctx, q)
	return orders, asPersistence("list orders", err)
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]*StatusChange, error) {
	if _, err := s.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	changes, err := s.orders.ListHistory(ctx, id)
	return changes, asPersistence("list history", err)
}

func (s *service) NextStatuses(ctx context.Context, id uuid.UUID) ([]Status, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.orderFSM.NextPossible(o.Status), nil
}

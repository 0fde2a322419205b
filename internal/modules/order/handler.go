package order

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/georgemunganga/shop-backend/internal/modules/auth"
	"github.com/georgemunganga/shop-backend/internal/modules/customer"
	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
)

// Handler exposes order HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

// RegisterRoutes mounts the customer-facing endpoints. The caller applies
// auth.Middleware to r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/orders", h.placeOrder)
	r.Get("/api/v1/orders/mine", h.listMyOrders)
	r.Get("/api/v1/orders/number/{number}", h.getOrderByNumber)
	r.Get("/api/v1/orders/{id}", h.getOrder)
	r.Delete("/api/v1/orders/{id}", h.cancelOrder)
}

// RegisterAdminRoutes mounts lifecycle administration. The caller guards r.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/api/v1/orders", h.listOrders)
	r.Patch("/api/v1/orders/{id}/status", h.updateStatus)
	r.Patch("/api/v1/orders/{id}/items/{item_id}/status", h.updateItemStatus)
	r.Get("/api/v1/orders/{id}/history", h.history)
	r.Get("/api/v1/orders/{id}/next-statuses", h.nextStatuses)
}

type placeOrderRequest struct {
	ShippingAddress *customer.Address `json:"shipping_address,omitempty"`
	BillingAddress  *customer.Address `json:"billing_address,omitempty"`
	Lines           []Line            `json:"lines"`
	Currency        string            `json:"currency,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	o, err := h.service.PlaceOrder(r.Context(), PlaceOrderCommand{
		CustomerEmail:   claims.Email,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Lines:           req.Lines,
		Currency:        req.Currency,
		Notes:           req.Notes,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, o)
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := auth.CustomerID(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	orders, err := h.service.ListCustomerOrders(r.Context(), customerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, orders)
}

// listOrders serves ?status=&limit=&offset=.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := ListQuery{Status: Status(r.URL.Query().Get("status"))}
	for param, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := r.URL.Query().Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"error": "invalid " + param})
			return
		}
		*dst = n
	}
	orders, err := h.service.ListOrders(r.Context(), q)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err == nil && !canSee(r, o) {
		err = ErrOrderNotFound
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	reason := "cancelled by customer"
	if auth.IsAdmin(r.Context()) {
		reason = "cancelled by admin"
	}
	o, err := h.service.Cancel(r.Context(), o.ID, reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	o, err := h.service.Transition(r.Context(), TransitionCommand{OrderID: id, Target: Status(req.Status), Reason: req.Reason})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) updateItemStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := urlUUID(w, r, "item_id")
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	o, err := h.service.TransitionItem(r.Context(), ItemTransitionCommand{
		OrderID: id, ItemID: itemID, Target: ItemStatus(req.Status), Reason: req.Reason,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	changes, err := h.service.History(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, changes)
}

func (h *Handler) nextStatuses(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	next, err := h.service.NextStatuses(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"next_statuses": next})
}

// visibleOrder loads the {id} order if the caller owns it or is an admin.
// Anyone else gets a 404.
func (h *Handler) visibleOrder(w http.ResponseWriter, r *http.Request) (*Order, bool) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	o, err := h.service.GetOrder(r.Context(), id)
	if err == nil && !canSee(r, o) {
		err = ErrOrderNotFound
	}
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return o, true
}

func canSee(r *http.Request, o *Order) bool {
	if auth.IsAdmin(r.Context()) {
		return true
	}
	id, ok := auth.CustomerID(r.Context())
	return ok && id == o.CustomerID
}

func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

// respondError renders any engine error with its kind, so clients can tell
// them apart without parsing messages.
func respondError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	code := http.StatusInternalServerError
	switch kind {
	case KindInvalidRequest:
		code = http.StatusBadRequest
	case KindCustomerNotFound, KindOrderNotFound, KindItemNotFound:
		code = http.StatusNotFound
	case KindProductNotFound, KindProductUnavailable, KindInsufficientStock:
		code = http.StatusUnprocessableEntity
	case KindIllegalTransition, KindPlacementInProgress:
		code = http.StatusConflict
	}

	body := map[string]interface{}{"error": err.Error(), "kind": kind}
	var stockErr *inventory.InsufficientStockError
	var transitionErr *IllegalTransitionError
	switch {
	case errors.As(err, &stockErr):
		body["details"] = stockErr
	case errors.As(err, &transitionErr):
		body["details"] = transitionErr
	}
	if kind == KindPersistence {
		body["error"] = "internal error"
	}
	respond(w, code, body)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

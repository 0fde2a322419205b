package payment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/shop-backend/internal/modules/order"
)

type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

// RegisterRoutes mounts the signal intake. The caller guards r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/payments/signals", h.signal)
}

func (h *Handler) signal(w http.ResponseWriter, r *http.Request) {
	var sig Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	o, err := h.service.Apply(r.Context(), sig)
	if err != nil {
		code := http.StatusInternalServerError
		switch kind := order.KindOf(err); kind {
		case order.KindInvalidRequest:
			code = http.StatusBadRequest
		case order.KindOrderNotFound:
			code = http.StatusNotFound
		case order.KindIllegalTransition:
			code = http.StatusConflict
		}
		respond(w, code, map[string]interface{}{"error": err.Error(), "kind": order.KindOf(err)})
		return
	}
	respond(w, http.StatusOK, o)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

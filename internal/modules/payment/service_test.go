package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/shop-backend/internal/modules/order"
)

type fakeOrders struct {
	order.Service
	byNumber map[string]*order.Order
	calls    []order.TransitionCommand
	err      error
}

func (f *fakeOrders) GetOrderByNumber(_ context.Context, n string) (*order.Order, error) {
	if o, ok := f.byNumber[n]; ok {
		return o, nil
	}
	return nil, order.ErrOrderNotFound
}

func (f *fakeOrders) Transition(_ context.Context, cmd order.TransitionCommand) (*order.Order, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return &order.Order{ID: cmd.OrderID, Status: cmd.Target}, nil
}

func TestApplyMapsOutcomes(t *testing.T) {
	cases := map[string]order.Status{
		"CONFIRMED":  order.StatusPaid,
		"successful": order.StatusPaid,
		"declined":   order.StatusPaymentFailed,
		"FAILED":     order.StatusPaymentFailed,
		"refunded":   order.StatusRefunded,
	}
	for outcome, want := range cases {
		t.Run(outcome, func(t *testing.T) {
			log, _ := test.NewNullLogger()
			orders := &fakeOrders{}
			svc := NewService(orders, log)

			id := uuid.New()
			o, err := svc.Apply(context.Background(), Signal{OrderID: id, Outcome: outcome, Provider: "card", ProviderRef: "tx-1"})
			require.NoError(t, err)
			assert.Equal(t, want, o.Status)
			require.Len(t, orders.calls, 1)
			assert.Equal(t, id, orders.calls[0].OrderID)
			assert.Contains(t, orders.calls[0].Reason, "via card (tx-1)")
		})
	}
}

func TestApplyResolvesOrderNumber(t *testing.T) {
	log, _ := test.NewNullLogger()
	id := uuid.New()
	orders := &fakeOrders{byNumber: map[string]*order.Order{"ORD-20260101-ABCDEF": {ID: id}}}
	svc := NewService(orders, log)

	o, err := svc.Apply(context.Background(), Signal{OrderNumber: "ORD-20260101-ABCDEF", Outcome: "CONFIRMED"})
	require.NoError(t, err)
	assert.Equal(t, id, o.ID)

	_, err = svc.Apply(context.Background(), Signal{OrderNumber: "ORD-missing", Outcome: "CONFIRMED"})
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestApplyRejectsBadSignals(t *testing.T) {
	log, _ := test.NewNullLogger()
	orders := &fakeOrders{}
	svc := NewService(orders, log)

	_, err := svc.Apply(context.Background(), Signal{OrderID: uuid.New(), Outcome: "MAYBE"})
	assert.ErrorIs(t, err, order.ErrInvalidRequest)

	_, err = svc.Apply(context.Background(), Signal{Outcome: "CONFIRMED"})
	assert.ErrorIs(t, err, order.ErrInvalidRequest)
	assert.Empty(t, orders.calls)
}

func TestApplyLogsRejectedTransition(t *testing.T) {
	log, hook := test.NewNullLogger()
	orders := &fakeOrders{err: errors.Wrap(order.ErrIllegalTransition, "SHIPPED -> PAID")}
	svc := NewService(orders, log)

	_, err := svc.Apply(context.Background(), Signal{OrderID: uuid.New(), Outcome: "CONFIRMED"})
	assert.ErrorIs(t, err, order.ErrIllegalTransition)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "payment signal rejected", hook.LastEntry().Message)
}

func TestSignalHandler(t *testing.T) {
	log, _ := test.NewNullLogger()
	orders := &fakeOrders{}
	r := chi.NewRouter()
	NewHandler(NewService(orders, log)).RegisterRoutes(r)

	post := func(body interface{}) *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/signals", bytes.NewReader(b)))
		return rec
	}

	rec := post(Signal{OrderID: uuid.New(), Outcome: "CONFIRMED"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(Signal{OrderID: uuid.New(), Outcome: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	orders.err = order.ErrIllegalTransition
	rec = post(Signal{OrderID: uuid.New(), Outcome: "REFUNDED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

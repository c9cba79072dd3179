// Package handler exposes the order price read API over HTTP. Reads funnel
// through the price calculator, so a GET can refresh and persist stale
// prices as a side effect.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-pricing/internal/domain/order"
	"github.com/xenking/order-pricing/internal/pricing"
	"github.com/xenking/order-pricing/internal/repository"
)

// Handler serves the order pricing endpoints.
type Handler struct {
	calc   *pricing.Calculator
	orders order.Repository
}

// New creates a Handler over the calculator and order storage.
func New(calc *pricing.Calculator, orders order.Repository) *Handler {
	return &Handler{calc: calc, orders: orders}
}

// Register mounts the pricing routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/orders/{id}/total", h.getTotal)
	mux.HandleFunc("GET /api/orders/{id}/shipping", h.getShipping)
	mux.HandleFunc("GET /api/orders/{id}/lines", h.getLines)
	mux.HandleFunc("POST /api/orders/{id}/refresh", h.refresh)
}

func (h *Handler) getTotal(w http.ResponseWriter, r *http.Request) {
	h.writeTotals(w, r, false)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.writeTotals(w, r, true)
}

func (h *Handler) writeTotals(w http.ResponseWriter, r *http.Request, force bool) {
	ctx := r.Context()
	o, err := h.orders.GetOrder(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	total, err := h.calc.OrderTotal(ctx, o, nil, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	undiscounted, err := h.calc.OrderUndiscountedTotal(ctx, o, nil, false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderTotalResponse{
		OrderID:           o.ID,
		Currency:          o.Currency,
		Total:             newAmount(total),
		UndiscountedTotal: newAmount(undiscounted),
		ExpiresAt:         o.PriceExpiration,
	})
}

func (h *Handler) getShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.GetOrder(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	price, err := h.calc.OrderShipping(ctx, o, nil, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	taxRate, err := h.calc.OrderShippingTaxRate(ctx, o, nil, false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, shippingResponse{
		OrderID:  o.ID,
		Currency: o.Currency,
		Price:    newAmount(price),
		TaxRate:  taxRate.String(),
	})
}

func (h *Handler) getLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.GetOrder(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, lines, err := h.calc.FetchOrderPricesIfExpired(ctx, o, nil, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if lines == nil {
		if lines, err = h.orders.ListLines(ctx, o.ID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	resp := linesResponse{OrderID: o.ID, Currency: o.Currency}
	for _, line := range lines {
		unit, err := h.calc.OrderLineUnit(ctx, o, line, lines, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		total, err := h.calc.OrderLineTotal(ctx, o, line, lines, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Lines = append(resp.Lines, lineResponse{
			ID:                line.ID,
			Quantity:          line.Quantity,
			UnitPrice:         newAmount(unit.WithDiscounts),
			UndiscountedUnit:  newAmount(unit.Undiscounted),
			TotalPrice:        newAmount(total.WithDiscounts),
			UndiscountedTotal: newAmount(total.Undiscounted),
			TaxRate:           line.TaxRate.String(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: http.StatusNotFound, Message: "order not found"})
		return
	}

	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    http.StatusInternalServerError,
		Message: "internal error",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

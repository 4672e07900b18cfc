package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-storefront/internal/model"
	"github.com/ariefcatur/go-storefront/internal/obs"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type placeOrderReq struct {
	ShippingAddress string `json:"shipping_address"`
	BillingAddress  string `json:"billing_address"`
	PaymentMethod   string `json:"payment_method"`
}

type placeOrderResp struct {
	Order      model.Order `json:"order"`
	Idempotent bool        `json:"idempotent"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req placeOrderReq
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// the key is claimed before checkout; a replay gets the order it produced
	idemKey := r.Header.Get(HeaderIdempotencyKey)
	claimed := false
	if idemKey != "" && h.Idem != nil {
		prev, err := h.Idem.Acquire(ctx, uid, idemKey)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if prev != "" {
			o, err := h.Orders.Order(ctx, uid, prev)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, placeOrderResp{Order: o, Idempotent: true})
			return
		}
		claimed = true
	}

	o, err := h.Orders.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID:          uid,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		TraceID:         middleware.GetReqID(r.Context()),
	})
	if err != nil {
		if claimed {
			if rerr := h.Idem.Release(context.WithoutCancel(ctx), uid, idemKey); rerr != nil {
				obs.Logger.Warn("idempotency release failed", slog.String(obs.KeyUserID, uid), slog.String(obs.KeyError, rerr.Error()))
			}
		}
		writeError(w, r, err)
		return
	}

	if claimed {
		if err := h.Idem.Remember(context.WithoutCancel(ctx), uid, idemKey, o.ID); err != nil {
			obs.Logger.Warn("idempotency store failed", slog.String(obs.KeyOrderID, o.ID), slog.String(obs.KeyError, err.Error()))
		}
	}
	writeJSON(w, http.StatusCreated, placeOrderResp{Order: o})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	list, err := h.Orders.Orders(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	o, err := h.Orders.Order(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

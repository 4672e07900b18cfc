package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/obs"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, pricing.ErrTooManyFractionDigits),
		errors.Is(err, pricing.ErrTooManyIntegerDigits),
		errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidCategory),
		errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrMissingUser), errors.Is(err, orders.ErrMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, cart.ErrProductNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInsufficientStock), errors.Is(err, redisx.ErrIdempotencyPending):
		return http.StatusConflict
	case errors.Is(err, orders.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	var ise *orders.InsufficientStockError
	if errors.As(err, &ise) {
		body = errorBody{Error: orders.ErrInsufficientStock.Error(), Details: ise.Violations}
	}
	if code == http.StatusInternalServerError {
		obs.Logger.Error("request failed",
			slog.String(obs.KeyRequestID, middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String(obs.KeyError, err.Error()))
		body = errorBody{Error: "internal server error"}
	}
	writeJSON(w, code, body)
}

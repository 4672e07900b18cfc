package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type addCartItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemReq struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	v, err := h.Cart.View(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req addCartItemReq
	if !decode(w, r, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	line, err := h.Cart.AddItem(r.Context(), uid, req.ProductID, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// updateCartItem overwrites the quantity; zero or less removes the line.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req updateCartItemReq
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "quantity is required"})
		return
	}
	line, removed, err := h.Cart.UpdateItem(r.Context(), uid, chi.URLParam(r, "productID"), *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if removed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.Cart.Clear(r.Context(), uid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNotFound     = errors.New("order not found")
	ErrMissingUser       = errors.New("user id is required")
)

type StockViolation struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every cart line that exceeded stock.
type InsufficientStockError struct {
	Violations []StockViolation
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", v.ProductID, v.Requested, v.Available))
	}
	return fmt.Sprintf("insufficient stock for %d product(s): %s", len(e.Violations), strings.Join(parts, ", "))
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

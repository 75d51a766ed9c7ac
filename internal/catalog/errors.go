package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
	ErrNotFound          = errors.New("catalog: item not found")
	ErrInvalidItem       = errors.New("catalog: invalid item")
	ErrClosed            = errors.New("catalog: store closed")
)

// InsufficientStockError is returned by AddToCart when the item has no stock
// left. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("catalog: there is not enough of item %q left", e.ID)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}

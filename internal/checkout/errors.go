package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrOrderNotFound = errors.New("order not found")
	ErrOutOfRange    = errors.New("order rejected: values out of range")
)

// InvalidLineItemError reports a line item with a missing product id, a quantity
// below one, or a quantity that pushes the product's total above Max.
type InvalidLineItemError struct {
	Index     int
	ProductID string
	Quantity  int
	Max       int
}

func (e *InvalidLineItemError) Error() string {
	switch {
	case e.ProductID == "":
		return fmt.Sprintf("line item %d: productId is required", e.Index)
	case e.Max > 0:
		return fmt.Sprintf("line item %d: total quantity for product %s must not exceed %d", e.Index, e.ProductID, e.Max)
	}
	return fmt.Sprintf("line item %d: quantity for product %s must be at least 1, got %d", e.Index, e.ProductID, e.Quantity)
}

type InvalidCustomerInfoError struct {
	Field  string
	Reason string
}

func (e *InvalidCustomerInfoError) Error() string {
	return fmt.Sprintf("invalid customer %s: %s", e.Field, e.Reason)
}

// ProductNotFoundError names every requested product id that does not exist, in request order.
type ProductNotFoundError struct {
	IDs []string
}

func (e *ProductNotFoundError) Error() string {
	return "products not found: " + strings.Join(e.IDs, ", ")
}

type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d, Requested: %d", e.Name, e.Available, e.Requested)
}

type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", e.Status)
}

// StorageUnavailableError wraps an infrastructure failure. Nothing was committed,
// so the whole call is safe to retry.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a caller mistake or a stock conflict,
// as opposed to an infrastructure failure.
func IsValidationError(err error) bool {
	var (
		lineErr     *InvalidLineItemError
		customerErr *InvalidCustomerInfoError
		notFoundErr *ProductNotFoundError
		stockErr    *InsufficientStockError
		statusErr   *InvalidStatusError
	)
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.As(err, &lineErr) ||
		errors.As(err, &customerErr) ||
		errors.As(err, &notFoundErr) ||
		errors.As(err, &stockErr) ||
		errors.As(err, &statusErr)
}

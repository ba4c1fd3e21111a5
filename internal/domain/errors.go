package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfStock             = errors.New("out of stock")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrAddressRequired        = errors.New("address is required")
	ErrAddressNotFound        = errors.New("address not found")
	ErrCancellationNotAllowed = errors.New("cancellation not allowed")

	ErrCartNotFound      = errors.New("cart not found")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrBrandNotFound     = errors.New("brand not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidDiscount   = errors.New("discount must be between zero and the subtotal")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrIdentityRequired  = errors.New("user id or session key is required")
)

// OutOfStockError is returned by cart mutations that would exceed stock.
type OutOfStockError struct {
	ProductName string
	Available   int
}

func (e *OutOfStockError) Error() string {
	if e.Available <= 0 {
		return fmt.Sprintf("%s is out of stock", e.ProductName)
	}
	return fmt.Sprintf("Only %d items available in stock", e.Available)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// InsufficientStockError aborts order creation on the first line whose
// quantity exceeds the current stock.
type InsufficientStockError struct {
	ProductName string
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Only %d available.", e.ProductName, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type CancellationNotAllowedError struct {
	Reason string
}

func (e *CancellationNotAllowedError) Error() string {
	return e.Reason
}

func (e *CancellationNotAllowedError) Is(target error) bool {
	return target == ErrCancellationNotAllowed
}

// AddressNotFoundError names the address reference that could not be resolved.
type AddressNotFoundError struct {
	AddressType AddressType
	ID          int64
}

func (e *AddressNotFoundError) Error() string {
	if e.AddressType == "" {
		return fmt.Sprintf("address %d not found", e.ID)
	}
	return fmt.Sprintf("%s address %d not found", e.AddressType, e.ID)
}

func (e *AddressNotFoundError) Is(target error) bool {
	return target == ErrAddressNotFound
}

type AddressRequiredError struct {
	AddressType AddressType
}

func (e *AddressRequiredError) Error() string {
	return fmt.Sprintf("%s address is required", e.AddressType)
}

func (e *AddressRequiredError) Is(target error) bool {
	return target == ErrAddressRequired
}

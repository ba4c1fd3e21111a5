package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type CartService interface {
	GetOrCreateCart(ctx context.Context, id domain.Identity) (*domain.Cart, error)
	AddItem(ctx context.Context, id domain.Identity, variantID int64, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, id domain.Identity, itemID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, id domain.Identity, itemID int64) (*domain.Cart, error)
	ClearCart(ctx context.Context, id domain.Identity) error
	MergeOnLogin(ctx context.Context, sessionKey string, userID int64) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
}

func NewCartHandler(carts CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=0,lte=99"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity" validate:"required,gte=1,lte=99"`
}

type CartItemDTO struct {
	ID             int64           `json:"id"`
	VariantID      *int64          `json:"variant_id,omitempty"`
	ProductTitle   string          `json:"product_title"`
	SKU            string          `json:"sku"`
	Attributes     string          `json:"attributes"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Total          decimal.Decimal `json:"total"`
	Savings        decimal.Decimal `json:"savings"`
	IsAvailable    bool            `json:"is_available"`
	IsPriceChanged bool            `json:"is_price_changed"`
}

type CartResponseDTO struct {
	ID           int64           `json:"id"`
	SessionKey   string          `json:"session_key,omitempty"`
	Items        []CartItemDTO   `json:"items"`
	TotalItems   int             `json:"total_items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TotalSavings decimal.Decimal `json:"total_savings"`
}

func convertCart(c *domain.Cart) CartResponseDTO {
	dto := CartResponseDTO{
		ID:           c.ID,
		SessionKey:   c.SessionKey,
		Items:        make([]CartItemDTO, 0, len(c.Items)),
		TotalItems:   c.TotalItems(),
		Subtotal:     c.Subtotal(),
		TotalSavings: c.TotalSavings(),
	}
	for _, item := range c.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			ID:             item.ID,
			VariantID:      item.VariantID,
			ProductTitle:   item.ProductTitle,
			SKU:            item.SKU,
			Attributes:     item.Attributes,
			Quantity:       item.Quantity,
			UnitPrice:      item.PriceSnapshot,
			Total:          item.Total(),
			Savings:        item.Savings(),
			IsAvailable:    item.IsAvailable(),
			IsPriceChanged: item.IsPriceChanged(),
		})
	}
	return dto
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetOrCreateCart(ctx, identityFromContext(r.Context()))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.carts.AddItem(ctx, identityFromContext(r.Context()), req.VariantID, req.Quantity)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertCart(cart))
}

// PATCH /api/v1/cart/items/{item_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID, ok := pathID(r, "item_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, identityFromContext(r.Context()), itemID, req.Quantity)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

// DELETE /api/v1/cart/items/{item_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID, ok := pathID(r, "item_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id must be a positive integer")
		return
	}

	cart, err := h.carts.RemoveItem(ctx, identityFromContext(r.Context()), itemID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.ClearCart(ctx, identityFromContext(r.Context())); err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/cart/merge
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := identityFromContext(r.Context())
	if !id.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.MergeOnLogin(ctx, id.SessionKey, id.UserID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

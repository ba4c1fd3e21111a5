package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
)

type AddressService interface {
	Create(ctx context.Context, userID int64, t domain.AddressType, in service.AddressInput) (*domain.Address, error)
	List(ctx context.Context, userID int64) ([]*domain.Address, error)
	Get(ctx context.Context, userID, id int64) (*domain.Address, error)
	Update(ctx context.Context, userID, id int64, patch service.AddressPatch) (*domain.Address, error)
	Delete(ctx context.Context, userID, id int64) error
	SetDefault(ctx context.Context, userID, id int64) (*domain.Address, error)
}

type AddressHandler struct {
	addresses AddressService
	timeout   time.Duration
}

func NewAddressHandler(addresses AddressService, timeout time.Duration) *AddressHandler {
	return &AddressHandler{
		addresses: addresses,
		timeout:   timeout,
	}
}

type AddressDTO struct {
	Label      string `json:"label" validate:"max=50"`
	FullName   string `json:"full_name" validate:"max=255"`
	Phone      string `json:"phone" validate:"required,max=20"`
	Street     string `json:"street" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Country    string `json:"country" validate:"max=100"`
}

func (d *AddressDTO) toInput() *service.AddressInput {
	if d == nil {
		return nil
	}
	return &service.AddressInput{
		Label:      d.Label,
		FullName:   d.FullName,
		Phone:      d.Phone,
		Street:     d.Street,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

type CreateAddressRequestDTO struct {
	AddressDTO
	AddressType string `json:"address_type" validate:"required,oneof=billing shipping"`
	IsDefault   bool   `json:"is_default"`
}

// UpdateAddressRequestDTO is a partial update; absent fields are kept.
type UpdateAddressRequestDTO struct {
	AddressType *string `json:"address_type" validate:"omitempty,oneof=billing shipping"`
	Label       *string `json:"label" validate:"omitempty,max=50"`
	FullName    *string `json:"full_name" validate:"omitempty,max=255"`
	Phone       *string `json:"phone" validate:"omitempty,min=1,max=20"`
	Street      *string `json:"street" validate:"omitempty,min=1,max=255"`
	City        *string `json:"city" validate:"omitempty,min=1,max=100"`
	State       *string `json:"state" validate:"omitempty,max=100"`
	PostalCode  *string `json:"postal_code" validate:"omitempty,max=20"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	IsDefault   *bool   `json:"is_default"`
}

func (d *UpdateAddressRequestDTO) toPatch() service.AddressPatch {
	patch := service.AddressPatch{
		Label:      d.Label,
		FullName:   d.FullName,
		Phone:      d.Phone,
		Street:     d.Street,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		IsDefault:  d.IsDefault,
	}
	if d.AddressType != nil {
		t := domain.AddressType(*d.AddressType)
		patch.Type = &t
	}
	return patch
}

// GET /api/v1/addresses
func (h *AddressHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := identityFromContext(r.Context())
	if !id.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	addresses, err := h.addresses.List(ctx, id.UserID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	if addresses == nil {
		addresses = []*domain.Address{}
	}

	respondJSON(w, http.StatusOK, addresses)
}

// POST /api/v1/addresses
func (h *AddressHandler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := identityFromContext(r.Context())
	if !id.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CreateAddressRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}

	in := req.AddressDTO.toInput()
	in.IsDefault = req.IsDefault
	address, err := h.addresses.Create(ctx, id.UserID, domain.AddressType(req.AddressType), *in)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusCreated, address)
}

// POST /api/v1/addresses/{address_id}/default
func (h *AddressHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := identityFromContext(r.Context())
	if !id.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	addressID, ok := pathID(r, "address_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_address_id", "address_id must be a positive integer")
		return
	}

	address, err := h.addresses.SetDefault(ctx, id.UserID, addressID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, address)
}

// GET /api/v1/addresses/{address_id}
func (h *AddressHandler) GetAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := identityFromContext(r.Context())
	if !id.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	addressID, ok := pathID(r, "address_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_address_id", "address_id must be a positive integer")
		return
	}

	address, err := h.addresses.Get(ctx, id.UserID, addressID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, address)
}

// PATCH /api/v1/addresses/{address_id}
func (h *AddressHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := identityFromContext(r.Context())
	if !id.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	addressID, ok := pathID(r, "address_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_address_id", "address_id must be a positive integer")
		return
	}

	var req UpdateAddressRequestDTO
	if !decodeAndValidate(w, r, &req) {
		return
	}

	address, err := h.addresses.Update(ctx, id.UserID, addressID, req.toPatch())
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondJSON(w, http.StatusOK, address)
}

// DELETE /api/v1/addresses/{address_id}
func (h *AddressHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := identityFromContext(r.Context())
	if !id.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	addressID, ok := pathID(r, "address_id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_address_id", "address_id must be a positive integer")
		return
	}

	if err := h.addresses.Delete(ctx, id.UserID, addressID); err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

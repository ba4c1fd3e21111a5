package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

var ErrInvalidAddress = errors.New("address is missing required fields")

// AddressInput is address data supplied inline by a caller.
type AddressInput struct {
	Label      string
	FullName   string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
}

func (in AddressInput) validate() error {
	if strings.TrimSpace(in.Phone) == "" || strings.TrimSpace(in.Street) == "" || strings.TrimSpace(in.City) == "" {
		return ErrInvalidAddress
	}
	return nil
}

func (in AddressInput) toAddress(userID *int64, t domain.AddressType) *domain.Address {
	country := strings.TrimSpace(in.Country)
	if country == "" {
		country = domain.DefaultCountry
	}
	return &domain.Address{
		UserID:     userID,
		Type:       t,
		Label:      in.Label,
		FullName:   strings.TrimSpace(in.FullName),
		Phone:      strings.TrimSpace(in.Phone),
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    country,
		IsDefault:  in.IsDefault && userID != nil,
	}
}

// AddressPatch carries the fields of a partial update; nil leaves a field as is.
type AddressPatch struct {
	Type       *domain.AddressType
	Label      *string
	FullName   *string
	Phone      *string
	Street     *string
	City       *string
	State      *string
	PostalCode *string
	Country    *string
	IsDefault  *bool
}

func (p AddressPatch) apply(a *domain.Address) AddressInput {
	in := AddressInput{
		Label:      a.Label,
		FullName:   a.FullName,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&in.Label, p.Label)
	set(&in.FullName, p.FullName)
	set(&in.Phone, p.Phone)
	set(&in.Street, p.Street)
	set(&in.City, p.City)
	set(&in.State, p.State)
	set(&in.PostalCode, p.PostalCode)
	set(&in.Country, p.Country)
	if p.IsDefault != nil {
		in.IsDefault = *p.IsDefault
	}
	return in
}

// AddressService is the user-scoped address book.
type AddressService struct {
	store Store
}

func NewAddressService(store Store) *AddressService {
	return &AddressService{store: store}
}

func (s *AddressService) Create(ctx context.Context, userID int64, t domain.AddressType, in AddressInput) (*domain.Address, error) {
	if userID <= 0 {
		return nil, domain.ErrIdentityRequired
	}
	if t != domain.AddressTypeBilling && t != domain.AddressTypeShipping {
		return nil, ErrInvalidAddress
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	a := in.toAddress(&userID, t)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		return q.CreateAddress(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AddressService) List(ctx context.Context, userID int64) ([]*domain.Address, error) {
	if userID <= 0 {
		return nil, domain.ErrIdentityRequired
	}
	return s.store.ListAddresses(ctx, userID)
}

// Get returns the address only when it belongs to userID.
func (s *AddressService) Get(ctx context.Context, userID, id int64) (*domain.Address, error) {
	return resolveOwnedAddress(ctx, s.store, userID, id, "")
}

func (s *AddressService) SetDefault(ctx context.Context, userID, id int64) (*domain.Address, error) {
	if userID <= 0 {
		return nil, domain.ErrIdentityRequired
	}
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		err := q.SetDefaultAddress(ctx, userID, id)
		if errors.Is(err, domain.ErrAddressNotFound) {
			return &domain.AddressNotFoundError{ID: id}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetAddress(ctx, id)
}

// Update applies patch to the user's address and re-validates the result.
func (s *AddressService) Update(ctx context.Context, userID, id int64, patch AddressPatch) (*domain.Address, error) {
	if userID <= 0 {
		return nil, domain.ErrIdentityRequired
	}
	var updated *domain.Address
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		current, err := resolveOwnedAddress(ctx, q, userID, id, "")
		if err != nil {
			return err
		}
		t := current.Type
		if patch.Type != nil {
			t = *patch.Type
		}
		if t != domain.AddressTypeBilling && t != domain.AddressTypeShipping {
			return ErrInvalidAddress
		}
		in := patch.apply(current)
		if err := in.validate(); err != nil {
			return err
		}

		updated = in.toAddress(&userID, t)
		updated.ID = current.ID
		updated.CreatedAt = current.CreatedAt
		return q.UpdateAddress(ctx, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, id int64) error {
	if userID <= 0 {
		return domain.ErrIdentityRequired
	}
	err := s.store.DeleteAddress(ctx, userID, id)
	if errors.Is(err, domain.ErrAddressNotFound) {
		return &domain.AddressNotFoundError{ID: id}
	}
	return err
}

func resolveOwnedAddress(ctx context.Context, q repository.Querier, userID, id int64, t domain.AddressType) (*domain.Address, error) {
	notFound := &domain.AddressNotFoundError{AddressType: t, ID: id}
	if userID <= 0 {
		return nil, notFound
	}
	a, err := q.GetAddress(ctx, id)
	if errors.Is(err, domain.ErrAddressNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	if a.UserID == nil || *a.UserID != userID {
		return nil, notFound
	}
	return a, nil
}

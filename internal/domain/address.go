package domain

import (
	"strings"
	"time"
)

type AddressType string

const (
	AddressTypeBilling  AddressType = "billing"
	AddressTypeShipping AddressType = "shipping"
)

const DefaultCountry = "Bangladesh"

// Address belongs to a user; guest addresses have a nil UserID.
type Address struct {
	ID         int64       `json:"id"`
	UserID     *int64      `json:"user_id,omitempty"`
	Type       AddressType `json:"address_type"`
	Label      string      `json:"label,omitempty"`
	FullName   string      `json:"full_name"`
	Phone      string      `json:"phone"`
	Street     string      `json:"street"`
	City       string      `json:"city"`
	State      string      `json:"state,omitempty"`
	PostalCode string      `json:"postal_code,omitempty"`
	Country    string      `json:"country"`
	IsDefault  bool        `json:"is_default"`
	CreatedAt  time.Time   `json:"created_at"`
}

// AddressSnapshot is the copy of an address frozen on an order.
type AddressSnapshot struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

func (a *Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// IsCity compares city names ignoring surrounding space and case.
func IsCity(city, want string) bool {
	return strings.EqualFold(strings.TrimSpace(city), strings.TrimSpace(want))
}

// Package domain contains domain models and business logic errors.
package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when trying to create a resource that already exists.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidArgument is returned when an invalid argument is provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when there's a conflict with current state.
	ErrConflict = errors.New("conflict with current state")

	// ErrUnavailable is returned when a service or resource is unavailable.
	ErrUnavailable = errors.New("service unavailable")
)

// Address pool errors. Every one of them rejects the operation and leaves the
// profile as it was.
var (
	// ErrInvalidAddressFormat is returned when a string is not a dotted-quad IPv4 address.
	ErrInvalidAddressFormat = errors.New("invalid address format")

	// ErrInvalidSubnetInput is returned for a malformed base address, mask or gateway override.
	ErrInvalidSubnetInput = errors.New("invalid subnet input")

	// ErrAddressNotFound is returned when an address is not part of a profile's address list.
	ErrAddressNotFound = errors.New("address not found in pool")

	// ErrAddressNotReservable is returned for network, gateway and broadcast addresses.
	ErrAddressNotReservable = errors.New("address is not reservable")

	// ErrAddressAlreadyAssigned is returned when another NIC holds the address.
	ErrAddressAlreadyAssigned = errors.New("address already assigned")

	// ErrPoolExhausted is returned when no unassigned address is left.
	ErrPoolExhausted = errors.New("address pool exhausted")
)

package pool

import (
	"fmt"

	"github.com/limiquantix/addrpool/internal/domain"
)

// Reserve marks address as assigned to nic and returns the updated copy of the
// profile. holders tells which NIC currently holds each assigned address; a NIC
// reserving an address it already holds is a no-op. The input profile is never
// modified.
func Reserve(p *domain.NetworkProfile, address string, nic domain.NICRef, holders domain.ReservationIndex) (*domain.NetworkProfile, error) {
	address, err := CanonicalAddress(address)
	if err != nil {
		return nil, err
	}
	i := p.AddressList.Index(address)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s in %s", domain.ErrAddressNotFound, address, p.Label)
	}

	entry := p.AddressList[i]
	if entry.Role == domain.RoleAssigned {
		if holder, ok := holders[address]; ok && holder == nic {
			return p.Clone(), nil
		}
	}

	switch {
	case entry.Role.Reserved():
		return nil, exhaustedHint(p, fmt.Errorf("%w: %s is the %s address", domain.ErrAddressNotReservable, address, entry.Role))
	case entry.Role == domain.RoleAssigned:
		holder := "another NIC"
		if h, ok := holders[address]; ok {
			holder = h.String()
		}
		return nil, exhaustedHint(p, fmt.Errorf("%w: %s is held by %s", domain.ErrAddressAlreadyAssigned, address, holder))
	}

	out := p.Clone()
	out.AddressList[i].Role = domain.RoleAssigned
	out.RefreshCounts()
	return out, nil
}

// exhaustedHint additionally tags err with ErrPoolExhausted when no address is left.
func exhaustedHint(p *domain.NetworkProfile, err error) error {
	if Exhausted(p) {
		return fmt.Errorf("%w (%w)", err, domain.ErrPoolExhausted)
	}
	return err
}

// Release returns address to the pool. Releasing an unassigned address is a no-op.
func Release(p *domain.NetworkProfile, address string) (*domain.NetworkProfile, error) {
	address, err := CanonicalAddress(address)
	if err != nil {
		return nil, err
	}
	i := p.AddressList.Index(address)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s in %s", domain.ErrAddressNotFound, address, p.Label)
	}

	out := p.Clone()
	entry := &out.AddressList[i]
	switch entry.Role {
	case domain.RoleUnassigned:
		return out, nil
	case domain.RoleAssigned:
		entry.Role = domain.RoleUnassigned
	case domain.RoleGateway:
		if !entry.InUse {
			return nil, fmt.Errorf("%w: %s is the gateway address", domain.ErrAddressNotReservable, address)
		}
		entry.InUse = false
	default:
		return nil, fmt.Errorf("%w: %s is the %s address", domain.ErrAddressNotReservable, address, entry.Role)
	}

	out.RefreshCounts()
	return out, nil
}

// Exhausted reports whether every address that workloads may use is assigned.
func Exhausted(p *domain.NetworkProfile) bool {
	return Available(p) == 0
}

// Available returns the number of unassigned addresses.
func Available(p *domain.NetworkProfile) int {
	n := 0
	for _, e := range p.AddressList {
		if e.Role == domain.RoleUnassigned {
			n++
		}
	}
	return n
}

// NextAvailable returns the lowest unassigned address.
func NextAvailable(p *domain.NetworkProfile) (string, error) {
	for _, e := range p.AddressList {
		if e.Role == domain.RoleUnassigned {
			return e.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrPoolExhausted, p.Label)
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AddressRole classifies a single address of a network profile.
type AddressRole string

const (
	RoleNetwork    AddressRole = "network"
	RoleGateway    AddressRole = "gateway"
	RoleBroadcast  AddressRole = "broadcast"
	RoleAssigned   AddressRole = "assigned"
	RoleUnassigned AddressRole = "unassigned"
)

// Valid reports whether r is one of the known roles.
func (r AddressRole) Valid() bool {
	switch r {
	case RoleNetwork, RoleGateway, RoleBroadcast, RoleAssigned, RoleUnassigned:
		return true
	}
	return false
}

// Reserved reports whether the role belongs to the subnet itself rather than to a workload.
func (r AddressRole) Reserved() bool {
	return r == RoleNetwork || r == RoleGateway || r == RoleBroadcast
}

// UnmarshalJSON rejects roles outside the closed set.
func (r *AddressRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role := AddressRole(s)
	if !role.Valid() {
		return fmt.Errorf("%w: unknown address role %q", ErrInvalidArgument, s)
	}
	*r = role
	return nil
}

// AddressEntry is one address of a profile together with its role.
type AddressEntry struct {
	Role  AddressRole `json:"role"`
	Value string      `json:"value"`

	// InUse marks a gateway entry that still carries a NIC reservation.
	InUse bool `json:"in_use,omitempty"`
}

// AddressList is ordered by ascending numeric address.
type AddressList []AddressEntry

// HostCount returns the number of addresses in the list.
func (l AddressList) HostCount() int {
	return len(l)
}

// UsableHostCount excludes the network and broadcast addresses.
func (l AddressList) UsableHostCount() int {
	if len(l) < 2 {
		return 0
	}
	return len(l) - 2
}

// AssignedCount returns the number of entries with role assigned.
func (l AddressList) AssignedCount() int {
	n := 0
	for _, e := range l {
		if e.Role == RoleAssigned {
			n++
		}
	}
	return n
}

// Index returns the position of value in the list, or -1.
func (l AddressList) Index(value string) int {
	for i, e := range l {
		if e.Value == value {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with l.
func (l AddressList) Clone() AddressList {
	if l == nil {
		return nil
	}
	out := make(AddressList, len(l))
	copy(out, l)
	return out
}

// NetworkProfile is an IPv4 subnet whose addresses are handed out to workload NICs.
type NetworkProfile struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	BaseAddress string `json:"base_address"`

	// Mask is stored as entered, e.g. "255.255.255.0/24".
	Mask         string `json:"mask"`
	PrefixLength int    `json:"prefix_length"`
	Gateway      string `json:"gateway"`

	VLANID  int    `json:"vlan_id,omitempty"`
	Overlay bool   `json:"overlay"`
	Notes   string `json:"notes,omitempty"`

	AddressList     AddressList `json:"address_list"`
	HostCount       int         `json:"host_count"`
	UsableHostCount int         `json:"usable_host_count"`
	AssignedCount   int         `json:"assigned_count"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshCounts recomputes the derived counters from the address list.
func (p *NetworkProfile) RefreshCounts() {
	p.HostCount = p.AddressList.HostCount()
	p.UsableHostCount = p.AddressList.UsableHostCount()
	p.AssignedCount = p.AddressList.AssignedCount()
}

// Clone returns a deep copy of the profile.
func (p *NetworkProfile) Clone() *NetworkProfile {
	out := *p
	out.AddressList = p.AddressList.Clone()
	return &out
}

// OrphanedAssignment is a reservation that did not survive a pool regeneration.
// It is a warning for the caller, never an error. Detached reports whether the
// holding NIC was cleared; false with a WorkloadID set means the NIC still
// references an address the profile no longer lists.
type OrphanedAssignment struct {
	Address    string `json:"address"`
	Reason     string `json:"reason"`
	WorkloadID string `json:"workload_id,omitempty"`
	NICID      string `json:"nic_id,omitempty"`
	Detached   bool   `json:"detached"`
}

// Orphan reasons.
const (
	OrphanOutOfRange = "out_of_range"
	OrphanReserved   = "reserved_role"
)

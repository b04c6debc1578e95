package domain

import (
	"fmt"
	"time"
)

// Workload is a virtual machine whose NICs consume addresses from network profiles.
type Workload struct {
	ID      string `json:"id"`
	VMID    string `json:"vm_id"`
	VMName  string `json:"vm_name"`
	GuestOS string `json:"guest_os"`
	Notes   string `json:"notes,omitempty"`
	NICs    []NIC  `json:"nics"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NIC is a workload network interface. The workload owns the reservation
// reference; the profile only reflects it as an assigned role.
type NIC struct {
	NICID        string `json:"nic_id"`
	Address      string `json:"address,omitempty"`
	ProfileLabel string `json:"profile_label,omitempty"`
}

// HasReservation reports whether the NIC points at an address in a profile.
func (n NIC) HasReservation() bool {
	return n.Address != "" && n.ProfileLabel != ""
}

// DefaultNICID returns the id given to the i-th NIC (zero based) when none was supplied.
func DefaultNICID(i int) string {
	return fmt.Sprintf("NIC%d", i+1)
}

// Clone returns a deep copy of the workload.
func (w *Workload) Clone() *Workload {
	out := *w
	out.NICs = append([]NIC(nil), w.NICs...)
	return &out
}

// NICRef identifies one NIC of one workload.
type NICRef struct {
	WorkloadID string `json:"workload_id"`
	NICID      string `json:"nic_id"`
}

func (r NICRef) String() string {
	return r.WorkloadID + "/" + r.NICID
}

// ReservationIndex maps an address to the NIC holding it within one profile.
type ReservationIndex map[string]NICRef

// BuildReservationIndex collects the reservations that workloads hold in the profile with the given label.
func BuildReservationIndex(label string, workloads []*Workload) ReservationIndex {
	idx := make(ReservationIndex)
	for _, w := range workloads {
		for _, nic := range w.NICs {
			if nic.ProfileLabel == label && nic.Address != "" {
				idx[nic.Address] = NICRef{WorkloadID: w.ID, NICID: nic.NICID}
			}
		}
	}
	return idx
}

package workload

import (
	"fmt"
	"strings"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/network/pool"
)

// Validation constants
const (
	MaxNameLength  = 255
	MaxNotesLength = 4096
	MaxNICs        = 16
)

// ValidationError represents a validation error with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets callers classify validation failures with errors.Is.
func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidArgument
}

// normalizeSpec trims input and gives unnamed NICs their default ids.
func normalizeSpec(spec *Spec) {
	spec.VMID = strings.TrimSpace(spec.VMID)
	spec.VMName = strings.TrimSpace(spec.VMName)
	spec.GuestOS = strings.TrimSpace(spec.GuestOS)

	nics := make([]domain.NIC, len(spec.NICs))
	for i, nic := range spec.NICs {
		nic.NICID = strings.TrimSpace(nic.NICID)
		nic.Address = canonicalAddress(nic.Address)
		nic.ProfileLabel = strings.TrimSpace(nic.ProfileLabel)
		if nic.NICID == "" {
			nic.NICID = domain.DefaultNICID(i)
		}
		nics[i] = nic
	}
	spec.NICs = nics
}

// canonicalAddress trims address and rewrites it in the form the address
// lists use. Unparseable input is kept for validateSpec to report.
func canonicalAddress(address string) string {
	address = strings.TrimSpace(address)
	if canonical, err := pool.CanonicalAddress(address); err == nil {
		return canonical
	}
	return address
}

// validateSpec validates a normalized workload spec.
func validateSpec(spec *Spec) error {
	if spec.VMName == "" {
		return &ValidationError{Field: "vm_name", Message: "vm_name is required"}
	}
	if len(spec.VMName) > MaxNameLength {
		return &ValidationError{Field: "vm_name", Message: fmt.Sprintf("vm_name too long (max %d characters)", MaxNameLength)}
	}
	if len(spec.VMID) > MaxNameLength {
		return &ValidationError{Field: "vm_id", Message: fmt.Sprintf("vm_id too long (max %d characters)", MaxNameLength)}
	}
	if len(spec.Notes) > MaxNotesLength {
		return &ValidationError{Field: "notes", Message: fmt.Sprintf("notes too long (max %d characters)", MaxNotesLength)}
	}
	if len(spec.NICs) > MaxNICs {
		return &ValidationError{Field: "nics", Message: fmt.Sprintf("maximum %d NICs allowed", MaxNICs)}
	}

	ids := make(map[string]bool, len(spec.NICs))
	claimed := make(map[string]string, len(spec.NICs))
	for i, nic := range spec.NICs {
		field := fmt.Sprintf("nics[%d]", i)

		if ids[nic.NICID] {
			return &ValidationError{Field: field + ".nic_id", Message: fmt.Sprintf("duplicate NIC id %q", nic.NICID)}
		}
		ids[nic.NICID] = true

		if nic.Address == "" {
			continue
		}
		if nic.ProfileLabel == "" {
			return &ValidationError{Field: field + ".profile_label", Message: "an address requires a network profile"}
		}
		if _, err := pool.ParseAddress(nic.Address); err != nil {
			return &ValidationError{Field: field + ".address", Message: err.Error()}
		}

		key := nic.ProfileLabel + "|" + nic.Address
		if other, ok := claimed[key]; ok {
			return &ValidationError{Field: field + ".address", Message: fmt.Sprintf("%s is also claimed by %s", nic.Address, other)}
		}
		claimed[key] = nic.NICID
	}

	return nil
}

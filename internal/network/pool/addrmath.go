// Package pool implements the network address pool engine: dotted-quad
// arithmetic, subnet derivation, address list generation and reservation
// bookkeeping. Every function is a pure transform; callers serialize mutations
// of a single profile.
package pool

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/limiquantix/addrpool/internal/domain"
)

// ParseAddress converts a dotted-quad string into its 32-bit value.
func ParseAddress(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q must have four octets", domain.ErrInvalidAddressFormat, s)
	}

	var n uint32
	for _, part := range parts {
		octet, err := parseOctet(part)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", domain.ErrInvalidAddressFormat, s, err)
		}
		n = n<<8 | uint32(octet)
	}
	return n, nil
}

func parseOctet(s string) (uint8, error) {
	if s == "" || len(s) > 3 {
		return 0, fmt.Errorf("bad octet %q", s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("bad octet %q", s)
		}
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("octet %q out of range", s)
	}
	return uint8(v), nil
}

// CanonicalAddress returns address in the form FormatAddress produces, so
// "192.168.001.010" and "192.168.1.10" name the same list entry.
func CanonicalAddress(address string) (string, error) {
	n, err := ParseAddress(address)
	if err != nil {
		return "", err
	}
	return FormatAddress(n), nil
}

// FormatAddress converts a 32-bit value back into dotted-quad form.
func FormatAddress(n uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", n>>24, (n>>16)&0xff, (n>>8)&0xff, n&0xff)
}

// StripPrefix returns the dotted-quad part of a mask such as "255.255.255.0/24".
func StripPrefix(mask string) string {
	if i := strings.IndexByte(mask, '/'); i >= 0 {
		return mask[:i]
	}
	return mask
}

// ParseMask parses a subnet mask with an optional "/prefix" suffix. The suffix
// is only checked for shape; the returned prefix length is derived from the
// mask bits.
func ParseMask(s string) (uint32, int, error) {
	dotted := StripPrefix(s)
	if dotted != s {
		suffix := s[len(dotted)+1:]
		p, err := strconv.Atoi(suffix)
		if err != nil || p < 0 || p > 32 {
			return 0, 0, fmt.Errorf("%w: bad prefix suffix %q", domain.ErrInvalidSubnetInput, suffix)
		}
	}

	mask, err := ParseAddress(dotted)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: mask: %w", domain.ErrInvalidSubnetInput, err)
	}

	ones := bits.LeadingZeros32(^mask)
	if ones < 32 && mask<<ones != 0 {
		return 0, 0, fmt.Errorf("%w: mask %s is not contiguous", domain.ErrInvalidSubnetInput, dotted)
	}
	return mask, ones, nil
}

// PrefixToMask returns the mask value for a prefix length in 0..32.
func PrefixToMask(prefix int) uint32 {
	if prefix <= 0 {
		return 0
	}
	if prefix >= 32 {
		return 0xffffffff
	}
	return ^uint32(0) << (32 - prefix)
}

// MaskOptions lists every mask from /32 down to /1 in "a.b.c.d/NN" form.
func MaskOptions() []string {
	out := make([]string, 0, 32)
	for p := 32; p >= 1; p-- {
		out = append(out, fmt.Sprintf("%s/%d", FormatAddress(PrefixToMask(p)), p))
	}
	return out
}

package pool

import (
	"errors"
	"testing"

	"github.com/limiquantix/addrpool/internal/domain"
)

func TestParseAddress_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"0.0.0.0", 0},
		{"192.168.1.10", 0xc0a8010a},
		{"10.0.0.1", 0x0a000001},
		{"255.255.255.255", 0xffffffff},
	}

	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if err != nil {
			t.Fatalf("ParseAddress(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q): expected %#x, got %#x", tt.in, tt.want, got)
		}
		if back := FormatAddress(got); back != tt.in {
			t.Errorf("FormatAddress(%#x): expected %q, got %q", got, tt.in, back)
		}
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"1.2.3",
		"1.2.3.4.5",
		"256.1.1.1",
		"1..2.3",
		"a.b.c.d",
		"-1.2.3.4",
		"+1.2.3.4",
		" 1.2.3.4",
		"1.2.3.4/24",
		"1000.2.3.4",
	} {
		if _, err := ParseAddress(in); !errors.Is(err, domain.ErrInvalidAddressFormat) {
			t.Errorf("ParseAddress(%q): expected ErrInvalidAddressFormat, got %v", in, err)
		}
	}
}

func TestCanonicalAddress(t *testing.T) {
	tests := map[string]string{
		"192.168.1.10":    "192.168.1.10",
		"192.168.1.010":   "192.168.1.10",
		"010.000.000.001": "10.0.0.1",
		"0.0.0.0":         "0.0.0.0",
	}
	for in, want := range tests {
		got, err := CanonicalAddress(in)
		if err != nil {
			t.Errorf("CanonicalAddress(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("CanonicalAddress(%q): expected %s, got %s", in, want, got)
		}
	}

	if _, err := CanonicalAddress("1.2.3.256"); err == nil {
		t.Error("Expected error for out-of-range octet")
	}
}

func TestFormatAddress_HighBitsDoNotSignExtend(t *testing.T) {
	if got := FormatAddress(0xff000001); got != "255.0.0.1" {
		t.Errorf("Expected 255.0.0.1, got %s", got)
	}
}

func TestParseMask(t *testing.T) {
	tests := []struct {
		in     string
		mask   uint32
		prefix int
	}{
		{"255.255.255.0", 0xffffff00, 24},
		{"255.255.255.0/24", 0xffffff00, 24},
		{"255.255.255.255/32", 0xffffffff, 32},
		{"255.255.255.128/25", 0xffffff80, 25},
		{"0.0.0.0", 0, 0},
		{"128.0.0.0/1", 0x80000000, 1},
		// the suffix is metadata, the dotted quad wins
		{"255.255.0.0/24", 0xffff0000, 16},
	}

	for _, tt := range tests {
		mask, prefix, err := ParseMask(tt.in)
		if err != nil {
			t.Fatalf("ParseMask(%q) failed: %v", tt.in, err)
		}
		if mask != tt.mask || prefix != tt.prefix {
			t.Errorf("ParseMask(%q): expected %#x/%d, got %#x/%d", tt.in, tt.mask, tt.prefix, mask, prefix)
		}
	}
}

func TestParseMask_Invalid(t *testing.T) {
	for _, in := range []string{
		"255.0.255.0",
		"255.255.255.1",
		"255.255.255.0/33",
		"255.255.255.0/x",
		"255.255.255.0/",
		"255.255.255",
	} {
		if _, _, err := ParseMask(in); !errors.Is(err, domain.ErrInvalidSubnetInput) {
			t.Errorf("ParseMask(%q): expected ErrInvalidSubnetInput, got %v", in, err)
		}
	}
}

func TestMaskOptions(t *testing.T) {
	opts := MaskOptions()
	if len(opts) != 32 {
		t.Fatalf("Expected 32 options, got %d", len(opts))
	}
	if opts[0] != "255.255.255.255/32" {
		t.Errorf("Expected first option 255.255.255.255/32, got %s", opts[0])
	}
	if opts[8] != "255.255.255.0/24" {
		t.Errorf("Expected /24 option 255.255.255.0/24, got %s", opts[8])
	}
	if opts[31] != "128.0.0.0/1" {
		t.Errorf("Expected last option 128.0.0.0/1, got %s", opts[31])
	}
}

package pool

import (
	"errors"
	"testing"

	"github.com/limiquantix/addrpool/internal/domain"
)

func TestComputeSubnet_ClassC(t *testing.T) {
	facts, err := ComputeSubnet("192.168.1.10", "255.255.255.0")
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}

	if facts.NetworkAddress != "192.168.1.0" {
		t.Errorf("Expected network 192.168.1.0, got %s", facts.NetworkAddress)
	}
	if facts.BroadcastAddress != "192.168.1.255" {
		t.Errorf("Expected broadcast 192.168.1.255, got %s", facts.BroadcastAddress)
	}
	if facts.DefaultGateway != "192.168.1.1" {
		t.Errorf("Expected gateway 192.168.1.1, got %s", facts.DefaultGateway)
	}
	if facts.HostCount != 256 {
		t.Errorf("Expected 256 hosts, got %d", facts.HostCount)
	}
	if facts.UsableHostCount != 254 {
		t.Errorf("Expected 254 usable hosts, got %d", facts.UsableHostCount)
	}
	if facts.PrefixLength != 24 {
		t.Errorf("Expected prefix 24, got %d", facts.PrefixLength)
	}
}

func TestComputeSubnet_PrefixSuffixIgnored(t *testing.T) {
	facts, err := ComputeSubnet("10.1.2.3", "255.255.0.0/16")
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}
	if facts.NetworkAddress != "10.1.0.0" || facts.BroadcastAddress != "10.1.255.255" {
		t.Errorf("Expected 10.1.0.0-10.1.255.255, got %s-%s", facts.NetworkAddress, facts.BroadcastAddress)
	}
	if facts.Mask != "255.255.0.0" {
		t.Errorf("Expected mask without suffix, got %s", facts.Mask)
	}
}

func TestComputeSubnet_Slash32(t *testing.T) {
	facts, err := ComputeSubnet("10.0.0.7", "255.255.255.255")
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}
	if facts.HostCount != 1 {
		t.Errorf("Expected 1 host, got %d", facts.HostCount)
	}
	if facts.UsableHostCount != 0 {
		t.Errorf("Expected 0 usable hosts, got %d", facts.UsableHostCount)
	}
	if facts.DefaultGateway != "10.0.0.7" {
		t.Errorf("Expected gateway to fall back to 10.0.0.7, got %s", facts.DefaultGateway)
	}
}

func TestComputeSubnet_Slash31(t *testing.T) {
	facts, err := ComputeSubnet("10.0.0.7", "255.255.255.254/31")
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}
	if facts.HostCount != 2 || facts.UsableHostCount != 0 {
		t.Errorf("Expected 2 hosts / 0 usable, got %d / %d", facts.HostCount, facts.UsableHostCount)
	}
	if facts.NetworkAddress != "10.0.0.6" || facts.BroadcastAddress != "10.0.0.7" {
		t.Errorf("Expected 10.0.0.6-10.0.0.7, got %s-%s", facts.NetworkAddress, facts.BroadcastAddress)
	}
}

func TestComputeSubnet_Slash0(t *testing.T) {
	facts, err := ComputeSubnet("1.2.3.4", "0.0.0.0/0")
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}
	if facts.HostCount != 1<<32 {
		t.Errorf("Expected 2^32 hosts, got %d", facts.HostCount)
	}
	if facts.BroadcastAddress != "255.255.255.255" {
		t.Errorf("Expected broadcast 255.255.255.255, got %s", facts.BroadcastAddress)
	}
}

func TestComputeSubnet_InvalidInput(t *testing.T) {
	_, err := ComputeSubnet("192.168.1", "255.255.255.0")
	if !errors.Is(err, domain.ErrInvalidSubnetInput) {
		t.Errorf("Expected ErrInvalidSubnetInput, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidAddressFormat) {
		t.Errorf("Expected base address error to also match ErrInvalidAddressFormat, got %v", err)
	}

	_, err = ComputeSubnet("192.168.1.10", "255.255.256.0")
	if !errors.Is(err, domain.ErrInvalidSubnetInput) {
		t.Errorf("Expected ErrInvalidSubnetInput for bad mask, got %v", err)
	}
}

func TestResolveGateway(t *testing.T) {
	facts, err := ComputeSubnet("192.168.1.10", "255.255.255.0")
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}

	gw, err := ResolveGateway(facts, "")
	if err != nil || gw != "192.168.1.1" {
		t.Errorf("Expected default gateway 192.168.1.1, got %q (%v)", gw, err)
	}

	gw, err = ResolveGateway(facts, "192.168.1.254")
	if err != nil || gw != "192.168.1.254" {
		t.Errorf("Expected override 192.168.1.254, got %q (%v)", gw, err)
	}

	for _, bad := range []string{"192.168.1.0", "192.168.1.255", "192.168.2.1", "10.0.0.1", "nope"} {
		if _, err := ResolveGateway(facts, bad); !errors.Is(err, domain.ErrInvalidSubnetInput) {
			t.Errorf("ResolveGateway(%q): expected ErrInvalidSubnetInput, got %v", bad, err)
		}
	}
}

func TestResolveGateway_Slash32DefaultAccepted(t *testing.T) {
	facts, err := ComputeSubnet("10.0.0.7", "255.255.255.255/32")
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}
	gw, err := ResolveGateway(facts, "10.0.0.7")
	if err != nil {
		t.Fatalf("Expected default gateway to be accepted, got %v", err)
	}
	if gw != "10.0.0.7" {
		t.Errorf("Expected 10.0.0.7, got %s", gw)
	}
}

func TestSubnetFacts_Contains(t *testing.T) {
	facts, _ := ComputeSubnet("192.168.1.10", "255.255.255.128")
	if !facts.Contains("192.168.1.127") {
		t.Error("Expected 192.168.1.127 to be in range")
	}
	if facts.Contains("192.168.1.128") {
		t.Error("Expected 192.168.1.128 to be out of range")
	}

	// facts decoded from JSON have no cached bounds
	decoded := &SubnetFacts{NetworkAddress: "192.168.1.0", BroadcastAddress: "192.168.1.127"}
	if !decoded.Contains("192.168.1.5") {
		t.Error("Expected decoded facts to contain 192.168.1.5")
	}
}

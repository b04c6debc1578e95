package pool

import (
	"fmt"

	"github.com/limiquantix/addrpool/internal/domain"
)

// SubnetFacts are the values derived from a base address and a mask.
type SubnetFacts struct {
	NetworkAddress   string `json:"network_address"`
	BroadcastAddress string `json:"broadcast_address"`
	DefaultGateway   string `json:"default_gateway"`
	Mask             string `json:"mask"`
	PrefixLength     int    `json:"prefix_length"`
	HostCount        uint64 `json:"host_count"`
	UsableHostCount  uint64 `json:"usable_host_count"`

	network   uint32
	broadcast uint32
}

// ComputeSubnet derives the network facts for baseAddress and mask. Any "/prefix"
// suffix on the mask is ignored for the computation.
func ComputeSubnet(baseAddress, mask string) (*SubnetFacts, error) {
	base, err := ParseAddress(baseAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: base address: %w", domain.ErrInvalidSubnetInput, err)
	}
	m, prefix, err := ParseMask(mask)
	if err != nil {
		return nil, err
	}

	network := base & m
	broadcast := network | ^m

	gateway := network
	if broadcast > network {
		gateway = network + 1
	}

	hosts := uint64(broadcast-network) + 1
	var usable uint64
	if hosts >= 2 {
		usable = hosts - 2
	}

	return &SubnetFacts{
		NetworkAddress:   FormatAddress(network),
		BroadcastAddress: FormatAddress(broadcast),
		DefaultGateway:   FormatAddress(gateway),
		Mask:             FormatAddress(m),
		PrefixLength:     prefix,
		HostCount:        hosts,
		UsableHostCount:  usable,
		network:          network,
		broadcast:        broadcast,
	}, nil
}

// bounds returns the numeric network and broadcast addresses, reparsing the
// string fields when the facts were not built by ComputeSubnet.
func (f *SubnetFacts) bounds() (uint32, uint32, error) {
	if f.network != 0 || f.broadcast != 0 {
		return f.network, f.broadcast, nil
	}
	network, err := ParseAddress(f.NetworkAddress)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: network address: %w", domain.ErrInvalidSubnetInput, err)
	}
	broadcast, err := ParseAddress(f.BroadcastAddress)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: broadcast address: %w", domain.ErrInvalidSubnetInput, err)
	}
	if broadcast < network {
		return 0, 0, fmt.Errorf("%w: broadcast %s below network %s", domain.ErrInvalidSubnetInput, f.BroadcastAddress, f.NetworkAddress)
	}
	return network, broadcast, nil
}

// Contains reports whether address lies between the network and broadcast addresses inclusive.
func (f *SubnetFacts) Contains(address string) bool {
	n, err := ParseAddress(address)
	if err != nil {
		return false
	}
	network, broadcast, err := f.bounds()
	if err != nil {
		return false
	}
	return n >= network && n <= broadcast
}

// ResolveGateway returns the gateway the pool should use. An empty override
// selects the default gateway. Any other override has to sit strictly between
// the network and broadcast addresses.
func ResolveGateway(facts *SubnetFacts, override string) (string, error) {
	if override == "" || override == facts.DefaultGateway {
		return facts.DefaultGateway, nil
	}

	gw, err := ParseAddress(override)
	if err != nil {
		return "", fmt.Errorf("%w: gateway: %w", domain.ErrInvalidSubnetInput, err)
	}
	network, broadcast, err := facts.bounds()
	if err != nil {
		return "", err
	}
	if gw <= network || gw >= broadcast {
		return "", fmt.Errorf("%w: gateway %s outside usable range of %s/%d",
			domain.ErrInvalidSubnetInput, override, facts.NetworkAddress, facts.PrefixLength)
	}
	return FormatAddress(gw), nil
}

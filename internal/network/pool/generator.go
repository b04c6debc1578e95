package pool

import (
	"fmt"

	"github.com/limiquantix/addrpool/internal/domain"
)

// Generate builds the full address list for the subnet, from the network
// address to the broadcast address in ascending order. Assignments found in
// previous are carried over when the address is still a host address of the
// subnet; the rest are returned as orphaned assignments. The result is a new
// slice and replaces the previous list as a whole.
func Generate(facts *SubnetFacts, gateway string, previous domain.AddressList) (domain.AddressList, []domain.OrphanedAssignment, error) {
	network, broadcast, err := facts.bounds()
	if err != nil {
		return nil, nil, err
	}
	hosts := uint64(broadcast-network) + 1

	var gw uint32
	hasGateway := false
	if gateway != "" {
		gw, err = ParseAddress(gateway)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: gateway: %w", domain.ErrInvalidSubnetInput, err)
		}
		// /31 and /32 have no address strictly inside the range
		hasGateway = gw > network && gw < broadcast
	}

	carried, orphans, err := carryAssignments(previous, network, broadcast, hosts)
	if err != nil {
		return nil, nil, err
	}

	list := make(domain.AddressList, 0, hosts)
	for i := uint64(network); i <= uint64(broadcast); i++ {
		n := uint32(i)
		entry := domain.AddressEntry{Value: FormatAddress(n)}
		switch {
		case n == network:
			entry.Role = domain.RoleNetwork
		case hosts >= 2 && n == broadcast:
			entry.Role = domain.RoleBroadcast
		case hasGateway && n == gw:
			entry.Role = domain.RoleGateway
			entry.InUse = carried[n]
		case carried[n]:
			entry.Role = domain.RoleAssigned
		default:
			entry.Role = domain.RoleUnassigned
		}
		list = append(list, entry)
	}

	return list, orphans, nil
}

// carryAssignments collects the previous reservations that still map onto a
// host address of the new range.
func carryAssignments(previous domain.AddressList, network, broadcast uint32, hosts uint64) (map[uint32]bool, []domain.OrphanedAssignment, error) {
	carried := make(map[uint32]bool)
	var orphans []domain.OrphanedAssignment

	for _, e := range previous {
		if e.Role != domain.RoleAssigned && !(e.Role == domain.RoleGateway && e.InUse) {
			continue
		}
		n, err := ParseAddress(e.Value)
		if err != nil {
			return nil, nil, err
		}
		if carried[n] {
			continue
		}

		switch {
		case n < network || n > broadcast:
			orphans = append(orphans, domain.OrphanedAssignment{Address: e.Value, Reason: domain.OrphanOutOfRange})
		case n == network || (hosts >= 2 && n == broadcast):
			orphans = append(orphans, domain.OrphanedAssignment{Address: e.Value, Reason: domain.OrphanReserved})
		default:
			carried[n] = true
		}
	}

	return carried, orphans, nil
}

package pool

import (
	"bytes"
	"encoding/json"
	"testing"

	"pgregory.net/rapid"

	"github.com/limiquantix/addrpool/internal/domain"
)

// drawSubnet keeps prefixes long enough that lists stay small.
func drawSubnet(t *rapid.T) *SubnetFacts {
	base := rapid.Uint32().Draw(t, "base")
	prefix := rapid.IntRange(22, 32).Draw(t, "prefix")
	facts, err := ComputeSubnet(FormatAddress(base), FormatAddress(PrefixToMask(prefix)))
	if err != nil {
		t.Fatalf("ComputeSubnet failed: %v", err)
	}
	return facts
}

func TestProperty_GenerateShape(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		facts := drawSubnet(t)
		list, _, err := Generate(facts, facts.DefaultGateway, nil)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if uint64(len(list)) != facts.HostCount {
			t.Fatalf("Expected %d entries, got %d", facts.HostCount, len(list))
		}
		if list[0].Role != domain.RoleNetwork || list[0].Value != facts.NetworkAddress {
			t.Fatalf("Expected network entry first, got %+v", list[0])
		}

		counts := map[domain.AddressRole]int{}
		prev := int64(-1)
		for _, e := range list {
			counts[e.Role]++
			n, err := ParseAddress(e.Value)
			if err != nil {
				t.Fatalf("Bad address in list: %v", err)
			}
			if int64(n) != prev+1 && prev >= 0 {
				t.Fatalf("Expected contiguous ascending addresses, got %d after %d", n, prev)
			}
			prev = int64(n)
		}

		if counts[domain.RoleNetwork] != 1 {
			t.Fatalf("Expected one network entry, got %d", counts[domain.RoleNetwork])
		}
		if facts.HostCount >= 2 {
			last := list[len(list)-1]
			if counts[domain.RoleBroadcast] != 1 || last.Role != domain.RoleBroadcast {
				t.Fatalf("Expected one broadcast entry last, got %d / %+v", counts[domain.RoleBroadcast], last)
			}
		} else if counts[domain.RoleBroadcast] != 0 {
			t.Fatalf("Expected no broadcast entry for a single host")
		}
		if counts[domain.RoleGateway] > 1 {
			t.Fatalf("Expected at most one gateway, got %d", counts[domain.RoleGateway])
		}
		if uint64(list.UsableHostCount()) != facts.UsableHostCount {
			t.Fatalf("Expected %d usable, got %d", facts.UsableHostCount, list.UsableHostCount())
		}
	})
}

func TestProperty_GenerateIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		facts := drawSubnet(t)
		list, _, _ := Generate(facts, facts.DefaultGateway, nil)

		picks := rapid.SliceOfN(rapid.IntRange(0, len(list)-1), 0, 8).Draw(t, "picks")
		for _, i := range picks {
			if list[i].Role == domain.RoleUnassigned {
				list[i].Role = domain.RoleAssigned
			}
		}

		first, _, err := Generate(facts, facts.DefaultGateway, list)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		second, _, err := Generate(facts, facts.DefaultGateway, first)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		a, _ := json.Marshal(first)
		b, _ := json.Marshal(second)
		if !bytes.Equal(a, b) {
			t.Fatal("Expected byte-identical output on regeneration")
		}
	})
}

func TestProperty_ReserveReleaseRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		facts := drawSubnet(t)
		list, _, _ := Generate(facts, facts.DefaultGateway, nil)
		p := &domain.NetworkProfile{Label: "prop", AddressList: list}
		p.RefreshCounts()

		i := rapid.IntRange(0, len(list)-1).Draw(t, "index")
		addr := list[i].Value

		reserved, err := Reserve(p, addr, domain.NICRef{WorkloadID: "w", NICID: "NIC1"}, nil)
		if list[i].Role.Reserved() {
			if err == nil {
				t.Fatalf("Expected %s (%s) to be rejected", addr, list[i].Role)
			}
			return
		}
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		if reserved.AssignedCount != p.AssignedCount+1 {
			t.Fatalf("Expected assigned count %d, got %d", p.AssignedCount+1, reserved.AssignedCount)
		}

		released, err := Release(reserved, addr)
		if err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		a, _ := json.Marshal(p.AddressList)
		b, _ := json.Marshal(released.AddressList)
		if !bytes.Equal(a, b) {
			t.Fatal("Expected round trip to restore the address list")
		}
		if released.AssignedCount != p.AssignedCount {
			t.Fatalf("Expected assigned count %d, got %d", p.AssignedCount, released.AssignedCount)
		}
	})
}

// Package types defines body zones, clock access and common errors shared
// across core and node.
package types

import "strings"

// Zone represents a body zone that can be attacked or blocked.
type Zone string

// Body zones, in ring order.
const (
	ZoneHead    Zone = "head"
	ZoneChest   Zone = "chest"
	ZoneStomach Zone = "stomach"
	ZoneLegs    Zone = "legs"
)

// zoneRing is the cyclic adjacency ring. A valid block pattern is any two
// zones adjacent on this ring.
var zoneRing = []Zone{ZoneHead, ZoneChest, ZoneStomach, ZoneLegs}

// Ring returns the zone ring in order.
func Ring() []Zone {
	ring := make([]Zone, len(zoneRing))
	copy(ring, zoneRing)
	return ring
}

// ParseZone parses a case-insensitive zone name.
func ParseZone(s string) (Zone, bool) {
	z := Zone(strings.ToLower(strings.TrimSpace(s)))
	for _, r := range zoneRing {
		if z == r {
			return z, true
		}
	}
	return "", false
}

// ringIndex returns the position of z on the ring, or -1.
func ringIndex(z Zone) int {
	for i, r := range zoneRing {
		if r == z {
			return i
		}
	}
	return -1
}

// Adjacent reports whether a and b are distinct neighbors on the zone ring.
func Adjacent(a, b Zone) bool {
	ia, ib := ringIndex(a), ringIndex(b)
	if ia < 0 || ib < 0 || ia == ib {
		return false
	}
	n := len(zoneRing)
	return (ia+1)%n == ib || (ib+1)%n == ia
}

// ValidBlockPattern reports whether the pair forms a legal block: both zones
// known and adjacent on the ring.
func ValidBlockPattern(primary, secondary Zone) bool {
	return primary != "" && secondary != "" && Adjacent(primary, secondary)
}

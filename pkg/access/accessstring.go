// Package access implements the 32-bit access-control string and the
// source-resolution/admission logic of §4.2 "Access model": every NOC
// entry carries one AccessString, and every request resolves to one of
// six access groups before its Call/Write/Read permission is checked.
package access

import "fmt"

// Permission is one of the three bits a group can grant.
type Permission uint8

const (
	PermCall  Permission = 0b001
	PermWrite Permission = 0b010
	PermRead  Permission = 0b100
)

// bit returns this permission's offset within a 3-bit group field.
func (p Permission) bit() uint32 {
	switch p {
	case PermCall:
		return 0
	case PermWrite:
		return 1
	case PermRead:
		return 2
	default:
		return 0
	}
}

func (p Permission) String() string {
	switch p {
	case PermCall:
		return "call"
	case PermWrite:
		return "write"
	case PermRead:
		return "read"
	default:
		return "unknown"
	}
}

// Permissions packs all three bits for one group into a single 3-bit value.
type Permissions uint8

const (
	PermsNone         Permissions = 0
	PermsCallOnly     Permissions = 0b001
	PermsWriteOnly    Permissions = 0b010
	PermsWriteAndCall Permissions = 0b011
	PermsReadOnly     Permissions = 0b100
	PermsReadAndCall  Permissions = 0b101
	PermsReadAndWrite Permissions = 0b110
	PermsFull         Permissions = 0b111
)

// ParsePermissions validates a raw 3-bit value extracted from an
// AccessString.
func ParsePermissions(v uint8) (Permissions, error) {
	if v > uint8(PermsFull) {
		return 0, fmt.Errorf("access: invalid permissions value %d", v)
	}
	return Permissions(v), nil
}

// Group is one of the six access groups a requester's Source resolves to,
// ordered from most to least trusted (§4.2 "group ordering"). Each occupies
// a 3-bit field starting at bit Group within the 32-bit AccessString (the
// constant values are already multiples of 3).
type Group uint32

const (
	GroupCurrentDevice Group = 0
	GroupCurrentZone   Group = 3
	GroupFriendZone    Group = 6
	GroupOthersZone    Group = 9
	GroupOwnerDec      Group = 12
	GroupOthersDec     Group = 15
)

// bitOffset returns the absolute bit position of permission within group.
func (g Group) bitOffset(p Permission) uint32 {
	return uint32(g) + p.bit()
}

// Pair associates a group with the permissions it should be granted; used
// to build an AccessString from a small literal list.
type Pair struct {
	Group       Group
	Permissions Permissions
}

// AccessString is the 32-bit access-control field stored alongside every
// NOC entry (§4.2). Six 3-bit group fields occupy bits [0,18); the
// remaining high bits are reserved and always zero.
type AccessString uint32

// New wraps a raw bit value, e.g. one read back from storage.
func New(bits uint32) AccessString { return AccessString(bits) }

// Value returns the raw 32-bit field.
func (a AccessString) Value() uint32 { return uint32(a) }

// Make builds an AccessString from a list of group/permission pairs.
func Make(pairs ...Pair) AccessString {
	var a AccessString
	for _, p := range pairs {
		a = a.WithGroupPermissions(p.Group, p.Permissions)
	}
	return a
}

// Default is the access string CYFS grants newly created objects absent
// an explicit ACL (§4.2 "default ACL"): full access to the current device
// and current zone, read+call to friend-zone peers and to the owning
// DEC's other objects, nothing to anyone else.
func Default() AccessString {
	return Make(
		Pair{GroupCurrentDevice, PermsFull},
		Pair{GroupCurrentZone, PermsFull},
		Pair{GroupFriendZone, PermsReadAndCall},
		Pair{GroupOwnerDec, PermsReadAndCall},
	)
}

// IsAccessible reports whether group holds permission under this string.
func (a AccessString) IsAccessible(group Group, permission Permission) bool {
	return a&(1<<group.bitOffset(permission)) != 0
}

// WithGroupPermission returns a copy of a with permission granted to group.
func (a AccessString) WithGroupPermission(group Group, permission Permission) AccessString {
	return a | (1 << group.bitOffset(permission))
}

// WithoutGroupPermission returns a copy of a with permission revoked from group.
func (a AccessString) WithoutGroupPermission(group Group, permission Permission) AccessString {
	return a &^ (1 << group.bitOffset(permission))
}

// GroupPermissions extracts the 3-bit Permissions value for group.
func (a AccessString) GroupPermissions(group Group) Permissions {
	return Permissions((uint32(a) >> uint32(group)) & 0b111)
}

// WithGroupPermissions returns a copy of a with group's whole 3-bit field
// replaced by permissions.
func (a AccessString) WithGroupPermissions(group Group, permissions Permissions) AccessString {
	mask := AccessString(0b111 << uint32(group))
	cleared := a &^ mask
	return cleared | AccessString(uint32(permissions)<<uint32(group))
}

// WithoutGroup clears every permission bit for group.
func (a AccessString) WithoutGroup(group Group) AccessString {
	return a.WithGroupPermissions(group, PermsNone)
}

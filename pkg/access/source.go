package access

import "github.com/buckyos/cyfs-ndn-core/pkg/objmodel"

// ZoneCategory places a requesting device relative to the object owner's
// zone, the coarse signal Source resolution turns into an access Group.
type ZoneCategory uint8

const (
	ZoneSameDevice ZoneCategory = iota
	ZoneSameZone
	ZoneFriendZone
	ZoneOthersZone
)

// Source describes a resolved requester: which device asked, how its zone
// relates to the object's owner zone, which DEC app it is acting for (if
// any), and whether its identity has been cryptographically verified
// (§4.2 "source resolution happens once per request, before any ACL
// check").
type Source struct {
	Device       objmodel.ObjectId
	ZoneCategory ZoneCategory
	DecId        *objmodel.ObjectId
	OwnerDecId   *objmodel.ObjectId
	Verified     bool
}

// Group resolves this source to the access group whose permissions govern
// it. An unverified source is never granted more than OthersZone/OthersDec
// regardless of its claimed zone or dec (§4.2 "unverified sources are
// downgraded to the least-trusted applicable group").
func (s Source) Group(ownerDec bool) Group {
	if !s.Verified {
		if ownerDec {
			return GroupOthersDec
		}
		return GroupOthersZone
	}
	if ownerDec {
		return GroupOwnerDec
	}
	if s.DecId != nil && s.OwnerDecId != nil && *s.DecId != *s.OwnerDecId {
		return GroupOthersDec
	}
	switch s.ZoneCategory {
	case ZoneSameDevice:
		return GroupCurrentDevice
	case ZoneSameZone:
		return GroupCurrentZone
	case ZoneFriendZone:
		return GroupFriendZone
	default:
		return GroupOthersZone
	}
}

// Admit is the single entry point every access check in the system goes
// through (§4.2 "Admit is pure and monotone": widening an AccessString's
// permissions for a group can never turn an Admit result from true to
// false for any source resolving to that group, holding source fixed).
func Admit(acs AccessString, src Source, required Permission, ownerDec bool) bool {
	return acs.IsAccessible(src.Group(ownerDec), required)
}

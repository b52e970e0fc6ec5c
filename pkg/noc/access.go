package noc

import (
	"github.com/buckyos/cyfs-ndn-core/pkg/access"
)

// checkAccess implements §4.2's three-step evaluation order:
//  1. local system-dec/zone short-circuit — the current device and the
//     system DEC always pass, without consulting any stored ACL;
//  2. a access.PathMetaTree lookup keyed on the row's context path, which
//     may allow, deny, or fall through to the next step;
//  3. access.AccessString.Admit against the object's own row.
func (s *MemStore) checkAccess(src access.Source, row MetaRow, required access.Permission) error {
	if s.isLocalShortCircuit(src) {
		return nil
	}

	ownerDec := row.Dec != nil && src.DecId != nil && *row.Dec == *src.DecId

	if s.pathMeta != nil {
		entry, err := s.pathMeta.Resolve(access.RootState, row.Context)
		if err != nil {
			return err
		}
		if entry != nil {
			if allow, decided := evaluatePathEntry(entry, src, required, ownerDec); decided {
				if allow {
					return nil
				}
				return errPermissionDenied
			}
		}
	}

	if access.Admit(row.AccessString, src, required, ownerDec) {
		return nil
	}
	return errPermissionDenied
}

// isLocalShortCircuit reports whether src is the current device itself or
// is acting for the system DEC, both of which always pass (§4.2 "local
// system-dec/zone short-circuit").
func (s *MemStore) isLocalShortCircuit(src access.Source) bool {
	if src.Device == s.localDeviceId {
		return true
	}
	if s.systemDecId != nil && src.DecId != nil && *src.DecId == *s.systemDecId {
		return true
	}
	return false
}

// evaluatePathEntry returns (allow, decided). decided is false when the
// entry expresses no opinion and the caller should fall through to the
// object's own AccessString.
func evaluatePathEntry(entry *access.PathAccessEntry, src access.Source, required access.Permission, ownerDec bool) (bool, bool) {
	if entry.IsDefault() {
		return access.Admit(*entry.Default, src, required, ownerDec), true
	}
	if entry.Predicate != nil && entry.Predicate(src) && entry.Required == required {
		return true, true
	}
	return false, false
}

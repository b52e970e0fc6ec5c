package access

import (
	"testing"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

func TestDefaultAccessStringMatchesGroundTruth(t *testing.T) {
	acs := Default()

	cases := []struct {
		group Group
		perm  Permission
		want  bool
	}{
		{GroupCurrentDevice, PermCall, true},
		{GroupCurrentDevice, PermRead, true},
		{GroupCurrentDevice, PermWrite, true},
		{GroupOthersDec, PermCall, false},
		{GroupOthersDec, PermRead, false},
		{GroupOthersDec, PermWrite, false},
	}
	for _, c := range cases {
		if got := acs.IsAccessible(c.group, c.perm); got != c.want {
			t.Errorf("IsAccessible(%v, %v) = %v, want %v", c.group, c.perm, got, c.want)
		}
	}
}

func TestSetClearGroupPermission(t *testing.T) {
	acs := Default()

	if acs.IsAccessible(GroupOthersDec, PermCall) {
		t.Fatal("OthersDec should start without call access")
	}
	acs = acs.WithGroupPermission(GroupOthersDec, PermCall)
	if !acs.IsAccessible(GroupOthersDec, PermCall) {
		t.Fatal("expected call access after grant")
	}
	acs = acs.WithoutGroupPermission(GroupOthersDec, PermCall)
	if acs.IsAccessible(GroupOthersDec, PermCall) {
		t.Fatal("expected call access revoked")
	}
}

func TestGroupPermissionsRoundTrip(t *testing.T) {
	acs := Default()
	if got := acs.GroupPermissions(GroupCurrentZone); got != PermsFull {
		t.Fatalf("CurrentZone = %v, want Full", got)
	}
	acs = acs.WithoutGroup(GroupCurrentZone)
	if got := acs.GroupPermissions(GroupCurrentZone); got != PermsNone {
		t.Fatalf("CurrentZone after clear = %v, want None", got)
	}
	acs = acs.WithGroupPermission(GroupCurrentZone, PermCall).WithGroupPermission(GroupCurrentZone, PermRead)
	if got := acs.GroupPermissions(GroupCurrentZone); got != PermsReadAndCall {
		t.Fatalf("CurrentZone after set = %v, want ReadAndCall", got)
	}
}

func TestAdmitMonotoneUnderWidening(t *testing.T) {
	src := Source{ZoneCategory: ZoneOthersZone, Verified: true}
	narrow := Make(Pair{GroupOthersZone, PermsNone})
	wide := Make(Pair{GroupOthersZone, PermsFull})

	if Admit(narrow, src, PermRead, false) {
		t.Fatal("narrow access string should not admit read")
	}
	if !Admit(wide, src, PermRead, false) {
		t.Fatal("widened access string should admit read")
	}
}

func TestUnverifiedSourceDowngraded(t *testing.T) {
	src := Source{ZoneCategory: ZoneSameDevice, Verified: false}
	acs := Default() // CurrentDevice full, OthersZone none
	if Admit(acs, src, PermRead, false) {
		t.Fatal("unverified source must not inherit CurrentDevice trust")
	}
}

func TestPathMetaTreeMostSpecificMatch(t *testing.T) {
	tree := NewPathMetaTree()
	rootAcs := Default()
	childAcs := Make(Pair{GroupOthersZone, PermsReadOnly})

	tree.Set(RootState, "/", PathAccessEntry{Default: &rootAcs})
	tree.Set(RootState, "/app/data", PathAccessEntry{Default: &childAcs})

	entry, err := tree.Resolve(RootState, "/app/data/file.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry == nil || *entry.Default != childAcs {
		t.Fatalf("expected most specific entry, got %+v", entry)
	}

	entry2, err := tree.Resolve(RootState, "/other/path")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry2 == nil || *entry2.Default != rootAcs {
		t.Fatalf("expected root fallback entry, got %+v", entry2)
	}
}

func TestPathMetaTreeNFCNormalization(t *testing.T) {
	tree := NewPathMetaTree()
	acs := Default()
	// "é" as a combining sequence (e + combining acute) vs precomposed.
	tree.Set(RootState, "/café", PathAccessEntry{Default: &acs})

	entry, err := tree.Resolve(RootState, "/café")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry == nil {
		t.Fatal("expected NFC-normalized paths to match regardless of composition form")
	}
}

func TestPathLinkFollowsRewrite(t *testing.T) {
	tree := NewPathMetaTree()
	acs := Default()
	tree.Set(RootState, "/real/target", PathAccessEntry{Default: &acs})
	tree.Link(RootState, PathLink{From: "alias", To: "real/target"})

	entry, err := tree.Resolve(RootState, "/alias")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry == nil {
		t.Fatal("expected link to resolve to target's entry")
	}
}

func TestPathLinkCycleHitsOutOfLimit(t *testing.T) {
	tree := NewPathMetaTree()
	tree.Link(RootState, PathLink{From: "a", To: "b"})
	tree.Link(RootState, PathLink{From: "b", To: "a"})

	_, err := tree.Resolve(RootState, "/a")
	if err != ErrOutOfLimit {
		t.Fatalf("expected ErrOutOfLimit, got %v", err)
	}
}

func TestObjectSelectorMatches(t *testing.T) {
	owner := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypePeople, []byte("owner"))
	typeCode := objmodel.TypeDevice
	sel := ObjectSelector{TypeCode: &typeCode, Owner: &owner}

	desc := objmodel.ObjectDesc{TypeCode: objmodel.TypeDevice, Owner: &owner}
	if !sel.Matches(desc) {
		t.Fatal("expected selector to match")
	}

	other := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypePeople, []byte("other"))
	desc2 := objmodel.ObjectDesc{TypeCode: objmodel.TypeDevice, Owner: &other}
	if sel.Matches(desc2) {
		t.Fatal("expected selector to reject mismatched owner")
	}
}

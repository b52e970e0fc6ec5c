package noc

import (
	"testing"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/access"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

func newTestStore(t *testing.T) (*MemStore, objmodel.ObjectId) {
	t.Helper()
	device := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeDevice, []byte("local-device"))
	s, err := NewMemStore(device, nil, 16)
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	return s, device
}

func TestPutGetRoundTrip(t *testing.T) {
	s, device := newTestStore(t)
	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("file-desc"))
	row := MetaRow{ObjectId: id, AccessString: access.Default()}
	src := access.Source{Device: device, ZoneCategory: access.ZoneSameDevice, Verified: true}

	res, err := s.Put(src, row, []byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.Kind != PutAccepted {
		t.Fatalf("expected PutAccepted, got %v", res.Kind)
	}

	get, err := s.Get(src, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if get.Kind != GetFound || string(get.Body) != "payload" {
		t.Fatalf("unexpected get result: %+v", get)
	}

	res2, err := s.Put(src, row, []byte("payload v2"))
	if err != nil {
		t.Fatalf("Put (update): %v", err)
	}
	if res2.Kind != PutUpdated {
		t.Fatalf("expected PutUpdated, got %v", res2.Kind)
	}
}

func TestGetNotFound(t *testing.T) {
	s, device := newTestStore(t)
	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("missing"))
	src := access.Source{Device: device, ZoneCategory: access.ZoneSameDevice, Verified: true}

	get, err := s.Get(src, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if get.Kind != GetNotFound {
		t.Fatalf("expected GetNotFound, got %v", get.Kind)
	}
}

func TestPermissionDeniedForOthersZoneReadOnlyRow(t *testing.T) {
	s, device := newTestStore(t)
	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("private-file"))

	owner := access.Source{Device: device, ZoneCategory: access.ZoneSameDevice, Verified: true}
	restricted := access.Make(access.Pair{Group: access.GroupCurrentDevice, Permissions: access.PermsFull})
	row := MetaRow{ObjectId: id, AccessString: restricted}
	if _, err := s.Put(owner, row, []byte("secret")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	stranger := access.Source{
		Device:       objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeDevice, []byte("stranger")),
		ZoneCategory: access.ZoneOthersZone,
		Verified:     true,
	}
	get, err := s.Get(stranger, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if get.Kind != GetPermissionDenied {
		t.Fatalf("expected GetPermissionDenied, got %v", get.Kind)
	}
}

func TestDeleteRemovesRowAndSweepsBlob(t *testing.T) {
	s, device := newTestStore(t)
	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("to-delete"))
	src := access.Source{Device: device, ZoneCategory: access.ZoneSameDevice, Verified: true}
	row := MetaRow{ObjectId: id, AccessString: access.Default()}

	if _, err := s.Put(src, row, []byte("bye")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(src, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists(id) {
		t.Fatal("expected row to no longer exist after Delete")
	}
	stat := s.Stat()
	if stat.RowCount != 0 || stat.BlobBytes != 0 {
		t.Fatalf("expected empty store after delete, got %+v", stat)
	}
}

func TestUpdateMetaAppliesUnderLock(t *testing.T) {
	s, device := newTestStore(t)
	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("meta-update"))
	src := access.Source{Device: device, ZoneCategory: access.ZoneSameDevice, Verified: true}
	row := MetaRow{ObjectId: id, AccessString: access.Default()}
	if _, err := s.Put(src, row, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	err := s.UpdateMeta(src, id, func(r *MetaRow) {
		r.Context = "/updated/path"
	})
	if err != nil {
		t.Fatalf("UpdateMeta: %v", err)
	}

	get, err := s.Get(src, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if get.Row.Context != "/updated/path" {
		t.Fatalf("expected updated context, got %q", get.Row.Context)
	}
}

func TestLastAccessBufferMaxResolution(t *testing.T) {
	applied := make(map[string]uint64)
	buf := newLastAccessBuffer(0, func(id objmodel.ObjectId, t uint64, rpath string) {
		applied[id.String()] = t
	})

	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("la"))
	now := time.Now()
	buf.Record(id, 100, "/a", now)
	buf.Record(id, 50, "/a", now) // stale, should be ignored
	buf.Record(id, 200, "/a", now)

	buf.flushDue(now)
	if applied[id.String()] != 200 {
		t.Fatalf("expected max(last_access_time)=200, got %d", applied[id.String()])
	}
}

func TestLastAccessBufferResidentFloor(t *testing.T) {
	var flushedCount int
	buf := newLastAccessBuffer(10*time.Minute, func(objmodel.ObjectId, uint64, string) {
		flushedCount++
	})
	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("floor"))
	now := time.Now()
	buf.Record(id, 1, "/x", now)

	buf.flushDue(now.Add(time.Minute)) // still under the 10-minute floor
	if flushedCount != 0 {
		t.Fatalf("expected no flush before resident floor, got %d", flushedCount)
	}

	buf.flushDue(now.Add(11 * time.Minute))
	if flushedCount != 1 {
		t.Fatalf("expected flush after resident floor, got %d", flushedCount)
	}
}

func TestLocalDeviceShortCircuitsAccessCheck(t *testing.T) {
	s, device := newTestStore(t)
	id := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypeFile, []byte("locked-down"))
	owner := access.Source{Device: device, ZoneCategory: access.ZoneSameDevice, Verified: true}
	noAccess := access.AccessString(0)
	row := MetaRow{ObjectId: id, AccessString: noAccess}
	if _, err := s.Put(owner, row, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	local := access.Source{Device: device, ZoneCategory: access.ZoneOthersZone, Verified: false}
	if err := s.CheckAccess(local, id, access.PermRead); err != nil {
		t.Fatalf("expected local device short-circuit to admit despite empty AccessString: %v", err)
	}
}

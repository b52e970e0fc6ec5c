package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

func TestGenerateIdentityProducesDistinctKeys(t *testing.T) {
	a, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	b, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	if a.SigningPublicKey.Equal(b.SigningPublicKey) {
		t.Fatal("expected distinct signing keys across identities")
	}
	if a.KeyAgreementPublicKey == b.KeyAgreementPublicKey {
		t.Fatal("expected distinct key-agreement keys across identities")
	}
}

func TestDeviceNamedObjectSelfVerifies(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	owner := objmodel.ComputeObjectId(objmodel.CategoryStandard, objmodel.TypePeople, []byte("owner"))
	id.WithOwner(owner)

	obj, err := id.DeviceNamedObject(time.Now())
	if err != nil {
		t.Fatalf("DeviceNamedObject: %v", err)
	}
	if err := obj.VerifySigns(nil); err != nil {
		t.Fatalf("VerifySigns: %v", err)
	}
	if obj.Desc.Owner == nil || *obj.Desc.Owner != owner {
		t.Fatalf("expected device descriptor owner to be set")
	}
}

func TestPeopleNamedObjectSelfVerifies(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	obj, err := id.PeopleNamedObject(time.Now())
	if err != nil {
		t.Fatalf("PeopleNamedObject: %v", err)
	}
	if err := obj.VerifySigns(nil); err != nil {
		t.Fatalf("VerifySigns: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := id.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if !loaded.SigningPublicKey.Equal(id.SigningPublicKey) {
		t.Fatal("signing public key mismatch after round trip")
	}
	if loaded.KeyAgreementPublicKey != id.KeyAgreementPublicKey {
		t.Fatal("key agreement public key mismatch after round trip")
	}
}

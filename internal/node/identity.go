package node

import (
	"fmt"
	"os"

	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
)

// loadOrCreateIdentity loads the identity at path, generating and
// persisting a fresh one if no file exists yet (a device's first run).
func loadOrCreateIdentity(path string) (*identity.Identity, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		id, err := identity.GenerateIdentity()
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if err := id.SaveToFile(path); err != nil {
			return nil, fmt.Errorf("save: %w", err)
		}
		return id, nil
	}
	return identity.LoadFromFile(path)
}

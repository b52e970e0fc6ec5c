package node

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a device's YAML config file, applying
// DefaultConfig for any field the file leaves zero. A missing file is
// not an error — a fresh device starts from defaults alone.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("node: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("node: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvOverlay loads a .env file (if present) into the process
// environment, letting a deployment override secrets like the
// meta-chain URL without editing the checked-in YAML config. A missing
// file is not an error.
func LoadEnvOverlay(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("node: load env overlay %s: %w", path, err)
	}
	return nil
}

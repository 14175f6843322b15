package loadgen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"

	"github.com/okian/learnmatch/internal/domain/types"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// EncodeSeedFile renders profiles as the YAML document the service reads
// through its seed_file setting.
func EncodeSeedFile(profiles []types.Profile) ([]byte, error) {
	items := make([]any, len(profiles))
	for i := range profiles {
		items[i] = profiles[i].Map()
	}
	b, err := yaml.Parser().Marshal(map[string]any{"profiles": items})
	if err != nil {
		return nil, fmt.Errorf("encode seed file: %w", err)
	}
	return b, nil
}

// WriteSeedFile writes profiles to path, creating parent directories.
func WriteSeedFile(path string, profiles []types.Profile) error {
	b, err := EncodeSeedFile(profiles)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, b, filePermission); err != nil {
		return fmt.Errorf("write seed file: %w", err)
	}
	return nil
}

package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/stash/internal/config"
)

// CheckExisting returns an error if dir already has a stash.yml.
func CheckExisting(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, config.DefaultFileName)); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'stash init --force' to reinitialize (this will overwrite existing configuration)", config.DefaultFileName)
	}
	return nil
}

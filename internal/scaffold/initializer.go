// Package scaffold creates a new stash project directory.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/stash/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// StateDir holds the identity key and the local projection.
const StateDir = ".stash"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates stash.yml and the state directory in dir.
// If force is true, an existing stash.yml is replaced; the state directory
// and any key in it are kept.
func Initialize(dir string, force bool) ([]FileInfo, error) {
	if force {
		if err := handleForce(dir); err != nil {
			return nil, err
		}
	} else if err := CheckExisting(dir); err != nil {
		return nil, err
	}

	files, err := getTemplateFiles()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, StateDir), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", StateDir, err)
	}

	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file.Path), file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	if _, err := config.Load(filepath.Join(dir, config.DefaultFileName)); err != nil {
		return nil, fmt.Errorf("created %s is invalid: %w", config.DefaultFileName, err)
	}

	return files, nil
}

// handleForce removes an existing stash.yml
func handleForce(dir string) error {
	path := filepath.Join(dir, config.DefaultFileName)
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", config.DefaultFileName, err)
		}
	}
	return nil
}

func getTemplateFiles() ([]FileInfo, error) {
	stashYml, err := templatesFS.ReadFile("templates/stash.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read stash.yml template: %w", err)
	}

	return []FileInfo{
		{Path: config.DefaultFileName, Content: stashYml, Permissions: 0644},
		{Path: filepath.Join(StateDir, ".gitignore"), Content: []byte("*\n"), Permissions: 0644},
	}, nil
}

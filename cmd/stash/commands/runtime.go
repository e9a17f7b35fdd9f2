package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/config"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/pkg/client"
	"github.com/dyluth/stash/pkg/identity"
)

// loadConfig reads the file named by --config.
func loadConfig() (*config.StashConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, printer.Error(
				fmt.Sprintf("%s not found", configPath),
				"No configuration file found.",
				[]string{"Initialize your project first:\n  stash init"},
			)
		}
		return nil, printer.Error("invalid configuration", err.Error(), nil)
	}
	return cfg, nil
}

// resolvePath expands ~/ and makes relative paths relative to the
// configuration file.
func resolvePath(p string) (string, error) {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, rest), nil
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	return filepath.Join(filepath.Dir(configPath), p), nil
}

// newService builds the bookmark service for cfg: identity, client and
// schema.
func newService(cfg *config.StashConfig) (*bookmark.Service, error) {
	desc, err := bookmark.ForVersion(cfg.Schema)
	if err != nil {
		return nil, err
	}

	var store identity.Store
	if cfg.Identity.KeyFile != "" {
		path, err := resolvePath(cfg.Identity.KeyFile)
		if err != nil {
			return nil, err
		}
		store = identity.NewFileStore(path)
	}

	kp, created, err := identity.LoadOrCreate(store)
	if err != nil {
		return nil, printer.Error("identity unavailable", err.Error(), []string{
			"Check identity.key_file in stash.yml",
		})
	}
	if created {
		log.Printf("[CLI] Generated identity %s", kp.PublicKey())
	}

	c, err := client.New(cfg.Endpoint,
		client.WithSubmitTimeout(cfg.Timeouts.Submit),
		client.WithQueryTimeout(cfg.Timeouts.Query),
	)
	if err != nil {
		return nil, printer.Error("invalid endpoint", err.Error(), nil)
	}

	return bookmark.NewService(kp, c, desc, nil)
}

// nodeError prints err with hints for the common failure kinds.
func nodeError(action string, cfg *config.StashConfig, err error) error {
	if client.IsSubmitError(err, client.KindUnreachable) || client.IsQueryError(err, client.KindUnreachable) ||
		client.IsSubmitError(err, client.KindTimeout) || client.IsQueryError(err, client.KindTimeout) {
		return printer.ErrorWithContext(
			"node unreachable",
			fmt.Sprintf("Failed to %s: %v", action, err),
			map[string]string{"Endpoint": cfg.Endpoint},
			[]string{
				"Start a local node:\n     stash up, then run stashd",
				"Point endpoint in stash.yml at a running node",
			},
		)
	}
	return printer.Error(fmt.Sprintf("failed to %s", action), err.Error(), nil)
}

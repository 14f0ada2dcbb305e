// Package config loads imagebuilder's default build profile from
// JSONC (JSON-with-comments) configuration files, so a project can pin
// its usual algorithm choices without repeating every flag on the
// command line.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ErrConfigFileNotFound is returned when an explicitly named config file
// does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// ErrConfigInvalid wraps a JSONC parse or validation failure, naming the
// offending file.
var ErrConfigInvalid = errors.New("invalid config")

// FileName is the default project config file name.
const FileName = ".cycloneboot.json"

// Profile holds the subset of create-command flags a project may pin as
// defaults. An empty field means "no profile default": the command-line
// flag's own value applies.
type Profile struct {
	EncAlgo       string `json:"enc_algo,omitempty"`       //nolint:tagliatelle
	IntegrityAlgo string `json:"integrity_algo,omitempty"` //nolint:tagliatelle
	AuthAlgo      string `json:"auth_algo,omitempty"`      //nolint:tagliatelle
	SignAlgo      string `json:"sign_algo,omitempty"`      //nolint:tagliatelle
	VTORAlign     bool   `json:"vtor_align,omitempty"`     //nolint:tagliatelle
}

// Default returns the built-in defaults: no encryption, SHA-256
// integrity, no auth, no signature. A project config or CLI flags
// override any of these.
func Default() Profile {
	return Profile{IntegrityAlgo: "sha256"}
}

// Load resolves a Profile with precedence (highest wins): defaults,
// global user config, project config (FileName, or explicitPath if
// non-empty). CLI flag overrides are the caller's concern; Load only
// produces the file-backed baseline the caller then overrides.
func Load(workDir, explicitPath string) (Profile, error) {
	cfg := Default()

	globalCfg, err := loadGlobal()
	if err != nil {
		return Profile{}, err
	}

	cfg = merge(cfg, globalCfg)

	projectCfg, err := loadProject(workDir, explicitPath)
	if err != nil {
		return Profile{}, err
	}

	return merge(cfg, projectCfg), nil
}

func loadGlobal() (Profile, error) {
	path := globalConfigPath()
	if path == "" {
		return Profile{}, nil
	}

	cfg, loaded, err := loadFile(path, false)
	if err != nil || !loaded {
		return Profile{}, err
	}

	return cfg, nil
}

func globalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cycloneboot", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "cycloneboot", "config.json")
}

func loadProject(workDir, explicitPath string) (Profile, error) {
	path := explicitPath
	mustExist := path != ""

	if path == "" {
		path = filepath.Join(workDir, FileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	cfg, loaded, err := loadFile(path, mustExist)
	if err != nil {
		return Profile{}, err
	}

	if !loaded {
		return Profile{}, nil
	}

	return cfg, nil
}

func loadFile(path string, mustExist bool) (Profile, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Profile{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Profile{}, false, nil
		}

		return Profile{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Profile{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	var cfg Profile
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Profile{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func merge(base, overlay Profile) Profile {
	if overlay.EncAlgo != "" {
		base.EncAlgo = overlay.EncAlgo
	}

	if overlay.IntegrityAlgo != "" {
		base.IntegrityAlgo = overlay.IntegrityAlgo
	}

	if overlay.AuthAlgo != "" {
		base.AuthAlgo = overlay.AuthAlgo
	}

	if overlay.SignAlgo != "" {
		base.SignAlgo = overlay.SignAlgo
	}

	if overlay.VTORAlign {
		base.VTORAlign = true
	}

	return base
}

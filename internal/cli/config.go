package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// Perm is the permission mode for newly created files, as an octal
	// string ("0644").
	Perm string `json:"perm,omitempty"`

	// Sync forces an fsync before every commit.
	Sync bool `json:"sync,omitempty"`
}

// ConfigSources tracks which config file was loaded.
type ConfigSources struct {
	Project string // Path to project config if loaded, empty otherwise
}

// ConfigFileName is the default config file name.
const ConfigFileName = ".tpf.json"

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Perm: "0644",
		Sync: false,
	}
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Project config file at default location (.tpf.json, if exists)
// 3. Explicit config file via configPath (if non-empty).
func LoadConfig(workDir, configPath string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	cfgFile := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true
	}

	fileCfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	if loaded {
		sources.Project = cfgFile
		cfg = mergeConfig(cfg, fileCfg)
	}

	_, permErr := cfg.FilePerm()
	if permErr != nil {
		return Config{}, ConfigSources{}, fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, permErr)
	}

	return cfg, sources, nil
}

// FilePerm parses the configured permission string.
func (c Config) FilePerm() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.Perm, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, fmt.Errorf("%w: %q", errPermInvalid, c.Perm)
	}

	return os.FileMode(mode), nil
}

// FormatConfig renders the config as indented JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

// loadConfigFile loads a config file. If mustExist is false, missing files
// return zero config. Returns the config, whether the file was loaded, and
// any error.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, false, nil
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Perm != "" {
		base.Perm = overlay.Perm
	}

	if overlay.Sync {
		base.Sync = true
	}

	return base
}

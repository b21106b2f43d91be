package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/spawnpool/errs"
)

// Load reads a YAML document over the defaults, applies environment
// overrides and validates the result. An empty path falls back to
// SPAWNPOOL_CONFIG; with neither set only defaults and environment apply.
func Load(path string) (Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("SPAWNPOOL_CONFIG"))
	}
	cfg := Default()
	if path != "" {
		file, err := os.Open(filepath.Clean(path)) // #nosec G304 -- configuration paths are controlled by operators.
		if err != nil {
			return Settings{}, errs.New("config", errs.CodeConfig,
				errs.WithMessage("open config"), errs.WithField("path", path), errs.WithCause(err))
		}
		defer func() { _ = file.Close() }()
		if cfg, err = Decode(file); err != nil {
			return Settings{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Decode parses a YAML document over the defaults. Pools named in the
// document replace the default entry of the same name; others are kept.
func Decode(r io.Reader) (Settings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, errs.New("config", errs.CodeConfig,
			errs.WithMessage("unmarshal config"), errs.WithCause(err))
	}
	return cfg, nil
}

// Encode writes the settings as YAML.
func Encode(w io.Writer, s Settings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

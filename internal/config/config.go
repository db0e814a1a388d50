// Package config loads optional tool defaults from a TOML file under the
// directory named by REFINERY_HOME, falling back to the user cache
// directory. The core keeps nothing else on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	EnvHome  = "REFINERY_HOME"
	fileName = "binpipe.toml"
)

// Config carries tunables that have no per-invocation switch.
type Config struct {
	LogLevel        string
	RecursionLimit  int
	MaxPayloadBytes uint64
	MaxMetaBytes    uint64
	MaxDepth        int
	MaxFrameChunks  int
}

func Default() Config {
	return Config{
		RecursionLimit:  32,
		MaxPayloadBytes: 1 << 30,
		MaxMetaBytes:    16 << 20,
		MaxDepth:        256,
		MaxFrameChunks:  1 << 20,
	}
}

type fileConfig struct {
	LogLevel        string `toml:"log_level"`
	RecursionLimit  int    `toml:"recursion_limit"`
	MaxPayloadBytes uint64 `toml:"max_payload_bytes"`
	MaxMetaBytes    uint64 `toml:"max_meta_bytes"`
	MaxDepth        int    `toml:"max_depth"`
	MaxFrameChunks  int    `toml:"max_frame_chunks"`
}

// Home resolves the cache directory used by long-running handlers.
func Home() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cache, "binpipe"), nil
}

// Load reads defaults, applying overrides from the config file when one
// exists. A missing file is not an error.
func Load() (Config, error) {
	cfg := Default()
	home, err := Home()
	if err != nil {
		return cfg, nil
	}
	return loadFile(cfg, filepath.Join(home, fileName))
}

func loadFile(cfg Config, path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = raw.LogLevel
	}
	if meta.IsDefined("recursion_limit") && raw.RecursionLimit > 0 {
		cfg.RecursionLimit = raw.RecursionLimit
	}
	if meta.IsDefined("max_payload_bytes") && raw.MaxPayloadBytes > 0 {
		cfg.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("max_meta_bytes") && raw.MaxMetaBytes > 0 {
		cfg.MaxMetaBytes = raw.MaxMetaBytes
	}
	if meta.IsDefined("max_depth") && raw.MaxDepth > 0 {
		cfg.MaxDepth = raw.MaxDepth
	}
	if meta.IsDefined("max_frame_chunks") && raw.MaxFrameChunks > 0 {
		cfg.MaxFrameChunks = raw.MaxFrameChunks
	}
	return cfg, nil
}

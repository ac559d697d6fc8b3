// Package config handles speedcalc.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "speedcalc.toml"

// Config represents a speedcalc.toml file merged over the defaults.
type Config struct {
	VM      VMConfig      `toml:"vm"`
	History HistoryConfig `toml:"history"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`

	// Dir is the directory containing the speedcalc.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig bounds the interpreter.
type VMConfig struct {
	MaxFrames int  `toml:"max-frames"`
	Trace     bool `toml:"trace"`
}

// HistoryConfig configures the calculation history store.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig configures the eval service and the language server.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	LSPAddr string `toml:"lsp-addr"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			MaxFrames: 64,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "~/.speedcalc/history.db",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7777",
		},
	}
}

// Load parses a speedcalc.toml file from the given directory. Keys absent
// from the file keep their default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := c.normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a speedcalc.toml file, then
// loads it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			c := Default()
			if err := c.normalize(); err != nil {
				return nil, err
			}
			return c, nil
		}
		dir = parent
	}
}

func (c *Config) normalize() error {
	if c.VM.MaxFrames <= 0 {
		return fmt.Errorf("vm.max-frames must be positive, got %d", c.VM.MaxFrames)
	}
	var err error
	if c.History.Path, err = ExpandPath(c.History.Path); err != nil {
		return err
	}
	if c.Log.File, err = ExpandPath(c.Log.File); err != nil {
		return err
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Package config loads the CLI's Preferences (spec.md §6) from a YAML
// file under the XDG config directory, falling back to the documented
// defaults for anything absent — the same shape as the corpus's own
// config loader, trimmed to the HTTP-only fields this downloader needs.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "rangedl"

const (
	defaultConnections = 4
	defaultInterval    = 100 * time.Millisecond
	defaultBlockSize   = 1 << 20 // 1 MiB
	defaultTimeout     = 5000 * time.Millisecond
)

// Preferences mirrors spec.md §6's Preferences record.
type Preferences struct {
	Connections int               `yaml:"connections,omitempty"`
	Interval    time.Duration     `yaml:"interval,omitempty"`
	BlockSize   int64             `yaml:"blockSize,omitempty"`
	Timeout     time.Duration     `yaml:"timeout,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`

	DownloadDir string `yaml:"downloadDir,omitempty"`
	Debug       bool   `yaml:"debug,omitempty"`
	LogPath     string `yaml:"logPath,omitempty"`
}

// Default returns the documented defaults.
func Default() Preferences {
	return Preferences{
		Connections: defaultConnections,
		Interval:    defaultInterval,
		BlockSize:   defaultBlockSize,
		Timeout:     defaultTimeout,
		DownloadDir: xdg.UserDirs.Download,
	}
}

// Load reads the YAML preferences file from the XDG config directory,
// merging any present field over the defaults. A missing file is not an
// error; it yields the defaults.
func Load() (Preferences, error) {
	defaults := Default()

	path := filepath.Join(xdg.ConfigHome, configFileName, "config.yaml")

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}

		return Preferences{}, err
	}

	if len(b) == 0 {
		return defaults, nil
	}

	var p Preferences
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Preferences{}, err
	}

	return Preferences{
		Connections: zeroOr(p.Connections, defaults.Connections),
		Interval:    zeroOr(p.Interval, defaults.Interval),
		BlockSize:   zeroOr(p.BlockSize, defaults.BlockSize),
		Timeout:     zeroOr(p.Timeout, defaults.Timeout),
		Headers:     zeroOr(p.Headers, defaults.Headers),
		DownloadDir: zeroOr(p.DownloadDir, defaults.DownloadDir),
		Debug:       p.Debug,
		LogPath:     zeroOr(p.LogPath, defaults.LogPath),
	}, nil
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}

package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	cfg "github.com/NamanBalaji/rangedl/internal/config"
	"github.com/adrg/xdg"
)

func withTempConfigHome(t *testing.T) string {
	t.Helper()

	orig := xdg.ConfigHome
	dir := t.TempDir()
	xdg.ConfigHome = dir

	t.Cleanup(func() { xdg.ConfigHome = orig })

	return dir
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	withTempConfigHome(t)

	got, err := cfg.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := cfg.Default()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want defaults %+v", got, want)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := withTempConfigHome(t)

	cfgDir := filepath.Join(dir, "rangedl")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	yaml := "connections: 8\ntimeout: 10s\n"
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := cfg.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.Connections != 8 {
		t.Errorf("Connections = %d, want 8", got.Connections)
	}

	if got.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", got.Timeout)
	}

	want := cfg.Default()
	if got.BlockSize != want.BlockSize {
		t.Errorf("BlockSize = %d, want default %d", got.BlockSize, want.BlockSize)
	}
}

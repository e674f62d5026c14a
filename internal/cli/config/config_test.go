package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MappingsDir != DefaultMappingsDir {
		t.Errorf("MappingsDir = %q, want %q", cfg.MappingsDir, DefaultMappingsDir)
	}
	if cfg.StatePath != DefaultStateFile {
		t.Errorf("StatePath = %q, want %q", cfg.StatePath, DefaultStateFile)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Verbose || cfg.Watch {
		t.Errorf("boolean defaults: verbose=%v watch=%v", cfg.Verbose, cfg.Watch)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldtrace.yaml")
	content := "mappings_dir: /data/exports\nport: 9000\nrename_threshold: 0.8\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MappingsDir != "/data/exports" {
		t.Errorf("MappingsDir = %q", cfg.MappingsDir)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.RenameThreshold != 0.8 {
		t.Errorf("RenameThreshold = %v", cfg.RenameThreshold)
	}
	// Keys the file does not set keep their defaults.
	if cfg.StatePath != DefaultStateFile {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldtrace.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FIELDTRACE_PORT", "9100")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Port)
	}
}

func TestLoadFlagsOverrideEverything(t *testing.T) {
	t.Setenv("FIELDTRACE_PORT", "9100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("mappings-dir", "", "")
	if err := flags.Parse([]string{"--port=9200", "--mappings-dir=/flag/exports"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 9200 {
		t.Errorf("Port = %d, want flag override 9200", cfg.Port)
	}
	if cfg.MappingsDir != "/flag/exports" {
		t.Errorf("MappingsDir = %q", cfg.MappingsDir)
	}
}

func TestLoadUnchangedFlagsIgnored(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("unset flag leaked: Port = %d", cfg.Port)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("explicit missing config file should fail")
	}
}

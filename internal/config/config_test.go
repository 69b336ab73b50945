package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigParsing(t *testing.T) {
	configContent := `# Global options
log.level debug
bridge.queue-capacity 64

[run]
format json
quiet   yes

[eval]
format text`

	config, err := LoadFromReader(strings.NewReader(configContent))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.HasWarnings() {
		t.Fatalf("unexpected warnings: %v", config.Warnings)
	}

	if value, ok := config.GetGlobalOption("log.level"); !ok || value != "debug" {
		t.Errorf("Expected log.level=debug, got %s (exists: %v)", value, ok)
	}
	if value, ok := config.GetCommandOption("run", "format"); !ok || value != "json" {
		t.Errorf("Expected run.format=json, got %s (exists: %v)", value, ok)
	}
	if value, ok := config.GetCommandOption("run", "quiet"); !ok || value != "yes" {
		t.Errorf("Expected run.quiet=yes, got %q (exists: %v)", value, ok)
	}
	// falls back to the global option
	if value, ok := config.GetCommandOption("eval", "log.level"); !ok || value != "debug" {
		t.Errorf("Expected eval log.level=debug (fallback), got %s (exists: %v)", value, ok)
	}
	if value, ok := config.GetCommandOption("nonexistent", "option"); ok {
		t.Errorf("Expected nonexistent option to not exist, but got %s", value)
	}
}

func TestEmptyConfig(t *testing.T) {
	config, err := LoadFromReader(strings.NewReader("\n# only a comment\n"))
	if err != nil {
		t.Fatalf("Failed to load empty config: %v", err)
	}
	if len(config.Global) != 0 || len(config.Commands) != 0 {
		t.Errorf("Expected empty config, got %+v", config)
	}
}

func TestConfigWarnings(t *testing.T) {
	config, err := LoadFromReader(strings.NewReader("bogus 1\nbridge.console maybe\n[run]\nunknown x\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := []string{
		`global option "bridge.console": expected bool, got "maybe"`,
		`unknown global option: "bogus" (value: "1")`,
		`unknown option for command "run": "unknown" (value: "x")`,
	}
	if len(config.Warnings) != len(want) {
		t.Fatalf("warnings = %q, want %q", config.Warnings, want)
	}
	for i := range want {
		if config.Warnings[i] != want[i] {
			t.Errorf("warning %d = %q, want %q", i, config.Warnings[i], want[i])
		}
	}
	// values are kept regardless
	if v, _ := config.GetGlobalOption("bogus"); v != "1" {
		t.Errorf("bogus = %q", v)
	}
}

func TestOptionWithoutValue(t *testing.T) {
	config, err := LoadFromReader(strings.NewReader("log.file\n"))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := config.GetGlobalOption("log.file"); !ok || v != "" {
		t.Errorf("log.file = %q (exists: %v), want empty", v, ok)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()

	config, err := LoadFromPath(filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if len(config.Global) != 0 {
		t.Errorf("expected empty config for missing file")
	}

	path := filepath.Join(dir, "config")
	if err := os.WriteFile(path, []byte("log.level warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err = LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if v, _ := config.GetGlobalOption("log.level"); v != "warn" {
		t.Errorf("log.level = %q", v)
	}

	link := filepath.Join(dir, "link")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := LoadFromPath(link); err == nil || !strings.Contains(err.Error(), "symlink not allowed") {
		t.Errorf("expected symlink rejection, got %v", err)
	}
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("bridge.submit-timeout 5s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := config.GetGlobalOption("bridge.submit-timeout"); v != "5s" {
		t.Errorf("bridge.submit-timeout = %q", v)
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, "on": true,
		"false": false, "0": false, "No": false, "off": false,
	} {
		got, err := parseBool(in)
		if err != nil || got != want {
			t.Errorf("parseBool(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseBool("maybe"); err == nil {
		t.Error("expected error for invalid bool")
	}
}

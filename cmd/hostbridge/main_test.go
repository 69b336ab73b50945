package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func isolate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	t.Setenv("HOSTBRIDGE_CONFIG", path)
	t.Setenv("HOSTBRIDGE_LOG_LEVEL", "error")
	t.Setenv("HOSTBRIDGE_LOG_FILE", "")
	os.Unsetenv("HOSTBRIDGE_LOG_FILE")
	return path
}

func TestRun(t *testing.T) {
	isolate(t)

	for _, tc := range []struct {
		name string
		args []string
		want string
	}{
		{"no command shows help", nil, "Available commands:"},
		{"help command", []string{"help"}, "Available commands:"},
		{"help flag", []string{"--help"}, "Usage: hostbridge"},
		{"short help flag", []string{"-h"}, "Usage: hostbridge"},
		{"version command", []string{"version"}, "hostbridge version " + version},
		{"eval", []string{"eval", "6", "*", "7"}, "42"},
		{"eval json", []string{"eval", "-format", "json", "[1, 2]"}, "1,\n  2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := run(tc.args, &stdout, &stderr); err != nil {
				t.Fatalf("Expected no error, got: %v (stderr: %s)", err, stderr.String())
			}
			if !strings.Contains(stdout.String(), tc.want) {
				t.Errorf("Expected output to contain %q, got: %s", tc.want, stdout.String())
			}
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	if err := run([]string{"nonexistent"}, &stdout, &stderr); err == nil {
		t.Error("Expected error for unknown command")
	}
	if !strings.Contains(stderr.String(), "Unknown command: nonexistent") {
		t.Errorf("Unexpected stderr: %s", stderr.String())
	}
}

func TestRun_FlagHelp(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	if err := run([]string{"eval", "-h"}, &stdout, &stderr); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(stderr.String(), "Usage: eval") {
		t.Errorf("Unexpected stderr: %s", stderr.String())
	}
}

func TestRun_BadFlag(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	if err := run([]string{"eval", "-bogus", "1"}, &stdout, &stderr); err == nil {
		t.Error("Expected error for unknown flag")
	}
}

func TestRun_ScriptArgsPassThrough(t *testing.T) {
	isolate(t)
	script := filepath.Join(t.TempDir(), "args.js")
	if err := os.WriteFile(script, []byte(`require('hostbridge:host').argv.join(' ')`), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if err := run([]string{"run", script, "-x", "y"}, &stdout, &stderr); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := stdout.String(); got != "-x y\n" {
		t.Errorf("Unexpected output: %q", got)
	}
}

func TestRun_ConfigRoundTrip(t *testing.T) {
	path := isolate(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"config", "bridge.queue-capacity", "16"}, &stdout, &stderr); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "bridge.queue-capacity 16") {
		t.Errorf("Unexpected config file: %q", data)
	}

	stdout.Reset()
	if err := run([]string{"config", "bridge.queue-capacity"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if got := stdout.String(); got != "bridge.queue-capacity: 16\n" {
		t.Errorf("Unexpected output: %q", got)
	}
}

func TestRun_ConfigWarnings(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte("no.such.option 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if err := run([]string{"version"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr.String(), "Warning:") {
		t.Errorf("Expected a config warning, got: %q", stderr.String())
	}
}

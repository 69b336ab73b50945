package command

import (
	"slices"
	"testing"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewVersionCommand("1.0.0"))
	registry.Register(NewHelpCommand(registry))

	cmd, err := registry.Get("version")
	if err != nil {
		t.Fatalf("Expected version command, got error: %v", err)
	}
	if cmd.Name() != "version" {
		t.Errorf("Expected name 'version', got %s", cmd.Name())
	}

	if _, err := registry.Get("nonexistent"); err == nil {
		t.Error("Expected error for unknown command")
	}

	if got, want := registry.List(), []string{"help", "version"}; !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewVersionCommand("1.0.0"))
	replacement := NewVersionCommand("2.0.0")
	registry.Register(replacement)

	cmd, err := registry.Get("version")
	if err != nil {
		t.Fatal(err)
	}
	if cmd != Command(replacement) {
		t.Error("Expected the later registration to win")
	}
	if n := len(registry.List()); n != 1 {
		t.Errorf("Expected 1 command, got %d", n)
	}
}

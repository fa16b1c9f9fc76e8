package cmd

import "testing"

func TestRootCmdMetadata(t *testing.T) {
	if rootCmd.Use != "oracle" {
		t.Errorf("Use = %q, want %q", rootCmd.Use, "oracle")
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty Short description")
	}
	if rootCmd.Long == "" {
		t.Error("expected non-empty Long description")
	}
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	want := map[string]bool{
		"serve":   false,
		"migrate": false,
		"version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

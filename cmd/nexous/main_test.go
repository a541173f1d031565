package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestProcessLoggerRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf)
	log.Error("provider call failed",
		"error", "openai: invalid api key sk-abcdefghijklmnopqrstuvwx")

	out := buf.String()
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwx") {
		t.Fatalf("credential leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction marker in log output: %s", out)
	}
}

func TestRootCmdHasSubcommands(t *testing.T) {
	root := buildRootCmd()
	want := map[string]bool{
		"run": false, "validate": false, "replay": false,
		"stats": false, "diff": false, "serve": false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

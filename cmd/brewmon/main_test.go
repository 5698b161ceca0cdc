package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootHasAllCommands(t *testing.T) {
	root := buildRoot()
	want := []string{"serve", "monitor", "deliver", "stop", "purge", "info", "status", "health", "history", "maintenance"}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestDeliverRequiresType(t *testing.T) {
	root := buildRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"deliver", "--group=1"})
	if err := root.Execute(); err == nil {
		t.Fatalf("deliver without --type must fail")
	}
}

func TestHelpMentionsDaemon(t *testing.T) {
	root := buildRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(buf.String(), "serve") {
		t.Fatalf("help output missing serve command:\n%s", buf.String())
	}
}

package main

import (
	"strings"
	"testing"
)

func TestSeedSecretRejectsUnknownName(t *testing.T) {
	err := seedSecret("database-password", strings.NewReader("value\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown secret") {
		t.Fatalf("got %v, want unknown-secret error", err)
	}
}

func TestSeedSecretRejectsEmptyValue(t *testing.T) {
	for _, input := range []string{"", "\n", "\r\n"} {
		if err := seedSecret("vault-key", strings.NewReader(input)); err == nil {
			t.Errorf("input %q: expected error for empty secret value", input)
		}
	}
}

package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	prevBuild, prevCommit := BuildNumber, Commit
	t.Cleanup(func() { BuildNumber, Commit = prevBuild, prevCommit })

	BuildNumber = "unknown"
	Commit = "abc123"
	if got := String(); !strings.Contains(got, "commit: abc123") || strings.Contains(got, "build:") {
		t.Fatalf("unexpected version string: %q", got)
	}

	BuildNumber = "20261015.1200"
	if got := String(); !strings.Contains(got, "build: 20261015.1200") {
		t.Fatalf("unexpected version string: %q", got)
	}
	if Get().BuildNumber != "20261015.1200" {
		t.Fatalf("Get should reflect build metadata")
	}
}

package version

import (
	"strings"
	"testing"
)

func TestStringIncludesBuildFields(t *testing.T) {
	out := String()
	for _, want := range []string{"stockpipe dev", "commit: unknown", "built: unknown", "go: go"} {
		if !strings.Contains(out, want) {
			t.Fatalf("version output missing %q: %s", want, out)
		}
	}
}

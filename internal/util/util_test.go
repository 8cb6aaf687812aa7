package util

import (
	"path/filepath"
	"testing"
)

func TestHideSecret(t *testing.T) {
	tests := map[string]string{
		"sk_live_1234567890": "sk_l...7890",
		"abcdef":             "ab...ef",
		"abc":                "a...c",
		"ab":                 "ab",
	}
	for in, want := range tests {
		if got := HideSecret(in); got != want {
			t.Fatalf("HideSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	got := MaskSensitiveQuery("competition=7&access_token=abcdefghijkl&code=123456")
	want := "competition=7&access_token=abcd...ijkl&code=12...56"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := MaskSensitiveQuery("page=2"); got != "page=2" {
		t.Fatalf("untouched query changed: %q", got)
	}
}

func TestResolveWritable(t *testing.T) {
	t.Setenv("WRITABLE_PATH", "/var/lib/engine/")
	if got := ResolveWritable("logs/engine.log"); got != filepath.Join("/var/lib/engine", "logs/engine.log") {
		t.Fatalf("relative path = %q", got)
	}
	if got := ResolveWritable("/tmp/engine.log"); got != "/tmp/engine.log" {
		t.Fatalf("absolute path = %q", got)
	}
}

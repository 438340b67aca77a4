package toolfallback

import (
	"strings"
	"testing"
)

func TestResolve_RetryWithHint(t *testing.T) {
	d := Resolve("Bash", []string{"bash", "read_file"})
	if d.Kind != KindRetryWithHint {
		t.Fatalf("Kind = %q, want %q", d.Kind, KindRetryWithHint)
	}
	if !strings.Contains(d.Hint, "bash") {
		t.Errorf("Hint = %q, want it to mention bash", d.Hint)
	}
}

func TestResolve_Skip_NoAlternativeAnnounced(t *testing.T) {
	d := Resolve("Bash", []string{"read_file"})
	if d.Kind != KindSkip {
		t.Fatalf("Kind = %q, want %q", d.Kind, KindSkip)
	}
}

func TestResolve_Skip_UnknownCanonical(t *testing.T) {
	d := Resolve("FrobnicateTool", []string{"bash"})
	if d.Kind != KindSkip {
		t.Fatalf("Kind = %q, want %q", d.Kind, KindSkip)
	}
}

func TestResolve_AlternativeSpelling(t *testing.T) {
	d := Resolve("Edit", []string{"str_replace"})
	if d.Kind != KindRetryWithHint || !strings.Contains(d.Hint, "str_replace") {
		t.Fatalf("Resolve(Edit) = %+v, want retry hint mentioning str_replace", d)
	}
}

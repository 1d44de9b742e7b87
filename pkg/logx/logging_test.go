package logx

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"TRACE", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{" Info ", zerolog.InfoLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := parseLevel(c.in, zerolog.InfoLevel); got != c.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestZeroValueIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	// Must not panic.
	l.Info("ignored", String("k", "v"))
	l.With(Int("n", 1)).Error("ignored too")
}

func TestNopNeverEnabled(t *testing.T) {
	l := Nop()
	if l.IsZero() {
		t.Fatalf("Nop is a configured logger, not a zero value")
	}
	if l.Enabled(LevelError) {
		t.Fatalf("nop logger must not be enabled at any level")
	}
}

func TestConsoleLevelGate(t *testing.T) {
	l := NewConsole("WARN")
	if l.Enabled(LevelDebug) {
		t.Fatalf("debug must be gated at WARN")
	}
	if !l.Enabled(LevelError) {
		t.Fatalf("error must pass at WARN")
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	parent := Nop()
	child := parent.With(String("a", "1"))
	if len(parent.fields) != 0 {
		t.Fatalf("parent gained fields")
	}
	if len(child.fields) != 1 {
		t.Fatalf("child missing fields")
	}
	grand := child.With(String("b", "2"), Int("c", 3))
	if len(child.fields) != 1 || len(grand.fields) != 3 {
		t.Fatalf("field chains must be independent")
	}
}

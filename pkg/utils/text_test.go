package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("héllo wörld", 4); got != "héll..." {
		t.Errorf("multibyte truncate: got %s", got)
	}
}

func TestClip(t *testing.T) {
	if got := Clip("abcdef", 3); got != "abc" {
		t.Errorf("got %s", got)
	}
	if got := Clip("äöü", 2); got != "äö" {
		t.Errorf("got %s", got)
	}
	if got := Clip("abc", 0); got != "abc" {
		t.Errorf("got %s", got)
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"annual-report-2023.pdf":  "annual-report-2023",
		"/srv/docs/q1.summary.pdf": "q1.summary",
		"notes":                    "notes",
		`C:\docs\budget.PDF`:       "budget",
		"":                         "",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

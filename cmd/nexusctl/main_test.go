package main

import "testing"

func TestBudgetLineScalesRatio(t *testing.T) {
	got := budgetLine(10, 5, 0.5, true)
	want := "Budget:         $10.00 ($5.0000 spent, 50.0% used, within budget)"
	if got != want {
		t.Errorf("budgetLine = %q, want %q", got, want)
	}
}

func TestBudgetLineExceeded(t *testing.T) {
	got := budgetLine(10, 12.5, 1.25, false)
	want := "Budget:         $10.00 ($12.5000 spent, 125.0% used, budget exceeded)"
	if got != want {
		t.Errorf("budgetLine = %q, want %q", got, want)
	}
}

func TestParseFlags(t *testing.T) {
	flags, rest := parseFlags([]string{"--mode", "code", "--tenant", "acme", "explain", "this"})
	if flags["mode"] != "code" || flags["tenant"] != "acme" {
		t.Errorf("flags = %v", flags)
	}
	if rest != "explain this" {
		t.Errorf("rest = %q, want %q", rest, "explain this")
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("sk-1234567890abcdef"); got != "sk-1****cdef" {
		t.Errorf("maskKey = %q", got)
	}
	if got := maskKey("short"); got != "*****" {
		t.Errorf("maskKey short = %q", got)
	}
}

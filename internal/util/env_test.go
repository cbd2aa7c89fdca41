package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("PLUBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("PLUBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 150},
		{"300", 300},
		{"-1", 150},
		{"abc", 150},
	}
	for _, tt := range tests {
		t.Setenv("PLUBOT_TEST_INT", tt.value)
		if got := ParseIntEnv("PLUBOT_TEST_INT", 150); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("PLUBOT_TEST_DUR", "45s")
	if got := ParseDurationEnv("PLUBOT_TEST_DUR", time.Minute); got != 45*time.Second {
		t.Errorf("got %v", got)
	}
	t.Setenv("PLUBOT_TEST_DUR", "soon")
	if got := ParseDurationEnv("PLUBOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("invalid value should fall back, got %v", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PLUBOT_TEST_STR", "  ")
	if got := GetEnv("PLUBOT_TEST_STR", "def"); got != "def" {
		t.Errorf("blank value should fall back, got %q", got)
	}
	t.Setenv("PLUBOT_TEST_STR", "x")
	if got := GetEnv("PLUBOT_TEST_STR", "def"); got != "x" {
		t.Errorf("got %q", got)
	}
}

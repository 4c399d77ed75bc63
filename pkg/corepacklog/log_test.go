package corepacklog

import (
	"os"
	"testing"
)

func TestIsVerbose(t *testing.T) {
	SetVerbose(false)
	os.Unsetenv("COREPACK_VERBOSE")
	if IsVerbose() {
		t.Fatal("expected verbose to be disabled by default")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Fatal("expected verbose to be enabled after SetVerbose(true)")
	}
	SetVerbose(false)

	os.Setenv("COREPACK_VERBOSE", "1")
	defer os.Unsetenv("COREPACK_VERBOSE")
	if !IsVerbose() {
		t.Fatal("expected verbose to be enabled via COREPACK_VERBOSE")
	}
}

func TestIsQuiet(t *testing.T) {
	SetQuiet(false)
	os.Unsetenv("COREPACK_QUIET")
	if IsQuiet() {
		t.Fatal("expected quiet to be disabled by default")
	}

	SetQuiet(true)
	if !IsQuiet() {
		t.Fatal("expected quiet to be enabled after SetQuiet(true)")
	}
	SetQuiet(false)
}

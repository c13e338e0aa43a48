package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv(envHome, "/custom/path")

	if got := GetHome(); got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_Fallback(t *testing.T) {
	ResetHome()
	t.Setenv(envHome, "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv(envHome, "/first")
	first := GetHome()

	t.Setenv(envHome, "/second")
	if second := GetHome(); first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestHomeSubdirs(t *testing.T) {
	ResetHome()
	t.Setenv(envHome, "/test/home")
	defer ResetHome()

	if got, want := GetDriversDir("playwright"), filepath.Join("/test/home", "drivers", "playwright"); got != want {
		t.Errorf("GetDriversDir() = %q, want %q", got, want)
	}
	if got, want := GetDownloadsDir(), filepath.Join("/test/home", "downloads"); got != want {
		t.Errorf("GetDownloadsDir() = %q, want %q", got, want)
	}
}

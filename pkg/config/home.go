package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "CRM_E2E_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the crm-e2e home directory, where browser drivers and
// downloaded artifacts are kept between runs.
//
// Resolution order:
//  1. $CRM_E2E_HOME
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. ~/.crm-e2e
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetDriversDir returns <home>/drivers/<name>, e.g. the Playwright driver bundle.
func GetDriversDir(name string) string {
	return filepath.Join(GetHome(), "drivers", name)
}

// GetDownloadsDir returns <home>/downloads, used for files the product
// lets users download (bulk upload error reports).
func GetDownloadsDir() string {
	return filepath.Join(GetHome(), "downloads")
}

func resolveHome() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".crm-e2e")
	}
	return ".crm-e2e"
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}

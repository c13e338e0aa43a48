package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	RunID         string      // Unique run identifier
	Environment   Environment // System under test
	CI            *CI         // CI/CD information (optional)
	RunnerVersion string      // crm-e2e version
	DriverName    string      // selenium, playwright, appium
}

// NewIndex creates an empty, pending run index. Scenarios are added as
// they start because the selected scenarios are only known at run time.
func NewIndex(cfg BuilderConfig) *Index {
	now := time.Now()
	return &Index{
		Version:     Version,
		RunID:       cfg.RunID,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Environment: cfg.Environment,
		CI:          cfg.CI,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.DriverName,
		},
		Scenarios: []ScenarioEntry{},
	}
}

// WriteSkeleton creates the report directory layout and the initial report.json.
func WriteSkeleton(outputDir string, index *Index) error {
	if err := ensureDir(filepath.Join(outputDir, "scenarios")); err != nil {
		return fmt.Errorf("create scenarios dir: %w", err)
	}
	if err := ensureDir(filepath.Join(outputDir, "assets")); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}
	if err := atomicWriteJSON(filepath.Join(outputDir, "report.json"), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// DetectCI reads build metadata from the environment of common CI systems.
func DetectCI() *CI {
	switch {
	case os.Getenv("GITHUB_ACTIONS") == "true":
		ci := &CI{
			Provider: "github",
			BuildID:  os.Getenv("GITHUB_RUN_ID"),
			Branch:   os.Getenv("GITHUB_REF_NAME"),
			Commit:   os.Getenv("GITHUB_SHA"),
		}
		if server, repo := os.Getenv("GITHUB_SERVER_URL"), os.Getenv("GITHUB_REPOSITORY"); server != "" && repo != "" && ci.BuildID != "" {
			ci.BuildURL = server + "/" + repo + "/actions/runs/" + ci.BuildID
		}
		return ci
	case os.Getenv("GITLAB_CI") == "true":
		return &CI{
			Provider: "gitlab",
			BuildID:  os.Getenv("CI_PIPELINE_ID"),
			BuildURL: os.Getenv("CI_PIPELINE_URL"),
			Branch:   os.Getenv("CI_COMMIT_REF_NAME"),
			Commit:   os.Getenv("CI_COMMIT_SHA"),
		}
	case os.Getenv("JENKINS_URL") != "":
		return &CI{
			Provider: "jenkins",
			BuildID:  os.Getenv("BUILD_NUMBER"),
			BuildURL: os.Getenv("BUILD_URL"),
			Branch:   os.Getenv("GIT_BRANCH"),
			Commit:   os.Getenv("GIT_COMMIT"),
		}
	}
	return nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// atomicWriteJSON writes v as indented JSON through a temp file and rename,
// so pollers never observe a half-written file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Package core holds the execution model shared by drivers, page objects,
// steps and reports.
package core

import "fmt"

// Attachment represents a debug artifact captured for a step
type Attachment struct {
	Name        string `json:"name"`        // screenshot, page_source, response
	ContentType string `json:"contentType"` // image/png, text/html, application/json
	Path        string `json:"path"`        // File path relative to the report directory
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
	AttachmentPageSource = "page_source"
	AttachmentResponse   = "response"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeHTML = "text/html"
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{Name: AttachmentScreenshot, ContentType: ContentTypePNG, Path: path, Body: data}
}

// NewPageSourceAttachment creates a DOM / hierarchy attachment. Mobile
// hierarchies are XML, browser sources HTML.
func NewPageSourceAttachment(path string, data []byte, platform Platform) Attachment {
	ct := ContentTypeHTML
	if platform.IsMobile() {
		ct = ContentTypeXML
	}
	return Attachment{Name: AttachmentPageSource, ContentType: ct, Path: path, Body: data}
}

// ArtifactMode controls when artifacts are captured.
type ArtifactMode string

const (
	ArtifactOnFailure ArtifactMode = "on-failure" // default
	ArtifactAlways    ArtifactMode = "always"
	ArtifactNever     ArtifactMode = "never"
)

// ParseArtifactMode validates a mode name. Empty selects ArtifactOnFailure.
func ParseArtifactMode(s string) (ArtifactMode, error) {
	switch ArtifactMode(s) {
	case "", ArtifactOnFailure:
		return ArtifactOnFailure, nil
	case ArtifactAlways, ArtifactNever:
		return ArtifactMode(s), nil
	}
	return "", ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown artifacts mode %q (want on-failure, always or never)", s))
}

// ArtifactConfig controls when and what artifacts are captured
type ArtifactConfig struct {
	Mode       ArtifactMode `yaml:"mode" json:"mode"`
	Screenshot bool         `yaml:"screenshot" json:"screenshot"` // Default: true
	PageSource bool         `yaml:"pageSource" json:"pageSource"` // Default: true
}

// DefaultArtifactConfig captures screenshot and page source on failure.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Mode:       ArtifactOnFailure,
		Screenshot: true,
		PageSource: true,
	}
}

// ShouldCapture returns true if artifacts should be captured for the given status
func (c ArtifactConfig) ShouldCapture(status StepStatus) bool {
	switch c.Mode {
	case ArtifactNever:
		return false
	case ArtifactAlways:
		return status.IsTerminal() && status != StatusSkipped
	default:
		return status == StatusFailed || status == StatusErrored
	}
}

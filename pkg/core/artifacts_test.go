package core

import "testing"

func TestNewScreenshotAttachment(t *testing.T) {
	data := []byte{0x89, 0x50, 0x4E, 0x47}
	a := NewScreenshotAttachment("assets/sc-1/step-002-failed.png", data)

	if a.Name != AttachmentScreenshot || a.ContentType != ContentTypePNG {
		t.Errorf("attachment = %+v", a)
	}
	if len(a.Body) != 4 {
		t.Errorf("Body length = %d, want 4", len(a.Body))
	}
}

func TestNewPageSourceAttachment(t *testing.T) {
	if got := NewPageSourceAttachment("p.html", nil, PlatformWeb).ContentType; got != ContentTypeHTML {
		t.Errorf("web ContentType = %s", got)
	}
	if got := NewPageSourceAttachment("p.xml", nil, PlatformAndroid).ContentType; got != ContentTypeXML {
		t.Errorf("android ContentType = %s", got)
	}
}

func TestParseArtifactMode(t *testing.T) {
	for in, want := range map[string]ArtifactMode{"": ArtifactOnFailure, "always": ArtifactAlways, "never": ArtifactNever} {
		got, err := ParseArtifactMode(in)
		if err != nil || got != want {
			t.Errorf("ParseArtifactMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseArtifactMode("sometimes"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestArtifactConfig_ShouldCapture(t *testing.T) {
	tests := []struct {
		mode   ArtifactMode
		status StepStatus
		want   bool
	}{
		{ArtifactOnFailure, StatusFailed, true},
		{ArtifactOnFailure, StatusErrored, true},
		{ArtifactOnFailure, StatusPassed, false},
		{ArtifactAlways, StatusPassed, true},
		{ArtifactAlways, StatusSkipped, false},
		{ArtifactAlways, StatusRunning, false},
		{ArtifactNever, StatusFailed, false},
	}
	for _, tt := range tests {
		cfg := DefaultArtifactConfig()
		cfg.Mode = tt.mode
		if got := cfg.ShouldCapture(tt.status); got != tt.want {
			t.Errorf("%s/%s: ShouldCapture = %v, want %v", tt.mode, tt.status, got, tt.want)
		}
	}
}

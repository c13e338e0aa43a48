package appium

import (
	"testing"
)

const androidLoginSource = `<?xml version="1.0" encoding="UTF-8"?>
<hierarchy rotation="0">
  <android.widget.FrameLayout bounds="[0,0][1080,2340]" class="android.widget.FrameLayout" enabled="true">
    <android.view.View content-desc="Welcome back" bounds="[60,300][1020,380]" enabled="true"/>
    <android.widget.EditText hint="Username" resource-id="com.crm.field:id/username" bounds="[60,500][1020,620]" enabled="true" clickable="true"/>
    <android.widget.EditText hint="Password" bounds="[60,660][1020,780]" enabled="true" clickable="true"/>
    <android.widget.Button content-desc="Sign In" clickable="true" bounds="[60,900][1020,1020]" enabled="true">
      <android.view.View content-desc="Sign In" bounds="[400,930][680,990]" enabled="true"/>
    </android.widget.Button>
    <android.view.View content-desc="Sign In with OTP" bounds="[60,1100][1020,1160]" enabled="true"/>
    <android.widget.TextView text="Forgot password?" bounds="[60,1200][500,1250]" enabled="false" displayed="false"/>
  </android.widget.FrameLayout>
</hierarchy>`

const iosHomeSource = `<?xml version="1.0" encoding="UTF-8"?>
<AppiumAUT>
  <XCUIElementTypeApplication type="XCUIElementTypeApplication" name="CRM Field" label="CRM Field" enabled="true" visible="true" x="0" y="0" width="390" height="844">
    <XCUIElementTypeOther type="XCUIElementTypeOther" label="Dashboard" enabled="true" visible="true" x="0" y="44" width="390" height="60"/>
    <XCUIElementTypeButton type="XCUIElementTypeButton" name="btn_activities" label="Activities" enabled="true" visible="true" x="20" y="200" width="350" height="50">
      <XCUIElementTypeStaticText type="XCUIElementTypeStaticText" label="Activities" enabled="true" visible="true" x="40" y="210" width="120" height="30"/>
    </XCUIElementTypeButton>
    <XCUIElementTypeTextField type="XCUIElementTypeTextField" placeholderValue="Search" value="" enabled="true" visible="false" x="20" y="300" width="350" height="40"/>
  </XCUIElementTypeApplication>
</AppiumAUT>`

func TestParsePageSource_Android(t *testing.T) {
	elements, platform, err := ParsePageSource(androidLoginSource)
	if err != nil {
		t.Fatalf("ParsePageSource failed: %v", err)
	}
	if platform != "android" {
		t.Errorf("platform = %q, want android", platform)
	}
	if len(elements) != 8 {
		t.Fatalf("got %d elements, want 8", len(elements))
	}

	root := elements[0]
	if root.Depth != 0 || len(root.Children) != 6 {
		t.Errorf("root depth=%d children=%d", root.Depth, len(root.Children))
	}

	username := elements[2]
	if username.HintText != "Username" || username.ResourceID != "com.crm.field:id/username" {
		t.Errorf("username = %+v", username)
	}
	if username.Bounds.X != 60 || username.Bounds.Y != 500 || username.Bounds.Width != 960 || username.Bounds.Height != 120 {
		t.Errorf("username bounds = %+v", username.Bounds)
	}

	label := elements[5]
	if label.Parent != elements[4] || label.Depth != 2 {
		t.Errorf("nested label parent/depth wrong: depth=%d", label.Depth)
	}

	forgot := elements[7]
	if forgot.Enabled || forgot.Displayed {
		t.Errorf("forgot link should be disabled and hidden: %+v", forgot)
	}
}

func TestParsePageSource_IOS(t *testing.T) {
	elements, platform, err := ParsePageSource(iosHomeSource)
	if err != nil {
		t.Fatalf("ParsePageSource failed: %v", err)
	}
	if platform != "ios" {
		t.Errorf("platform = %q, want ios", platform)
	}
	if len(elements) != 5 {
		t.Fatalf("got %d elements, want 5", len(elements))
	}

	button := elements[2]
	if button.Type != "XCUIElementTypeButton" || !button.Clickable || button.Name != "btn_activities" {
		t.Errorf("button = %+v", button)
	}
	if button.Bounds.X != 20 || button.Bounds.Y != 200 || button.Bounds.Width != 350 {
		t.Errorf("button bounds = %+v", button.Bounds)
	}
	if elements[4].Displayed {
		t.Error("search field has visible=false")
	}
}

func TestParsePageSource_Invalid(t *testing.T) {
	if _, _, err := ParsePageSource("not xml at all <<<"); err == nil {
		t.Error("expected error for invalid page source")
	}
	if _, _, err := ParsePageSource(`<hierarchy rotation="0"></hierarchy>`); err == nil {
		t.Error("expected error for empty hierarchy")
	}
}

func TestParseBounds(t *testing.T) {
	b := parseBounds("[10,20][110,70]")
	if b.X != 10 || b.Y != 20 || b.Width != 100 || b.Height != 50 {
		t.Errorf("parseBounds = %+v", b)
	}
	if got := parseBounds("garbage"); got.Width != 0 {
		t.Errorf("parseBounds(garbage) = %+v", got)
	}
}

func TestMatchHint_ExactBeatsPartial(t *testing.T) {
	elements, platform, _ := ParsePageSource(androidLoginSource)

	matches := MatchHint(elements, "sign in", platform)
	if len(matches) != 2 {
		t.Fatalf("exact matches = %d, want 2 (button and its label)", len(matches))
	}
	for _, m := range matches {
		if m.ContentDesc != "Sign In" {
			t.Errorf("unexpected match %q", m.ContentDesc)
		}
	}

	partial := MatchHint(elements, "OTP", platform)
	if len(partial) != 1 || partial[0].ContentDesc != "Sign In with OTP" {
		t.Errorf("partial matches = %v", partial)
	}

	byID := MatchHint(elements, "username", platform)
	if len(byID) != 1 {
		t.Errorf("hint text match = %d, want 1", len(byID))
	}

	if MatchHint(elements, "", platform) != nil {
		t.Error("empty hint should not match")
	}
}

func TestMatchHint_IOS(t *testing.T) {
	elements, platform, _ := ParsePageSource(iosHomeSource)
	matches := MatchHint(elements, "Activities", platform)
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	best := BestMatch(matches)
	if best.Type != "XCUIElementTypeButton" {
		t.Errorf("BestMatch should prefer the clickable button, got %s", best.Type)
	}
}

func TestBestMatchAndClickableAncestor(t *testing.T) {
	elements, platform, _ := ParsePageSource(androidLoginSource)
	label := elements[5]

	if got := GetClickableElement(label); got != elements[4] {
		t.Error("GetClickableElement should return the clickable button parent")
	}

	info := label.ToElementInfo(platform)
	if info.Text != "Sign In" {
		t.Errorf("Text = %q", info.Text)
	}
	if info.Bounds != elements[4].Bounds {
		t.Errorf("ToElementInfo should tap through the clickable ancestor: %+v", info.Bounds)
	}
	if !info.Visible {
		t.Error("label should be visible")
	}

	// Non-clickable candidates: deepest wins.
	welcome := elements[1]
	if got := BestMatch([]*ParsedElement{elements[0], welcome}); got != welcome {
		t.Error("BestMatch should prefer deeper element")
	}
	if BestMatch(nil) != nil {
		t.Error("BestMatch(nil) should be nil")
	}
}

func TestLooksLikeRegex(t *testing.T) {
	tests := map[string]bool{
		"Sign In":      false,
		"acme.com":     false,
		"$100":         false,
		"Order #.*":    true,
		"^Welcome":     true,
		"(Yes|No)":     true,
		`Price \(USD)`: true,
	}
	for in, want := range tests {
		if got := looksLikeRegex(in); got != want {
			t.Errorf("looksLikeRegex(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMatchesText(t *testing.T) {
	if !matchesText("welcome", "Welcome back") {
		t.Error("case-insensitive contains failed")
	}
	if !matchesText("^Activity \\d+$", "", "Activity 42") {
		t.Error("regex match failed")
	}
	if matchesText("Logout", "Login") {
		t.Error("unexpected match")
	}
}

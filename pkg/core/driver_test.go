package core

import (
	"testing"

	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

func TestBounds_Center(t *testing.T) {
	b := Bounds{X: 100, Y: 200, Width: 50, Height: 30}
	x, y := b.Center()
	if x != 125 || y != 215 {
		t.Errorf("Center() = (%d, %d), want (125, 215)", x, y)
	}
}

func TestBounds_Contains(t *testing.T) {
	b := Bounds{X: 10, Y: 10, Width: 20, Height: 20}
	tests := []struct {
		x, y int
		want bool
	}{
		{10, 10, true},
		{29, 29, true},
		{30, 30, false},
		{9, 15, false},
	}
	for _, tt := range tests {
		if got := b.Contains(tt.x, tt.y); got != tt.want {
			t.Errorf("Contains(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestBounds_IsEmpty(t *testing.T) {
	if !(Bounds{}).IsEmpty() {
		t.Error("zero bounds should be empty")
	}
	if (Bounds{Width: 1, Height: 1}).IsEmpty() {
		t.Error("1x1 bounds should not be empty")
	}
}

func TestPlatform(t *testing.T) {
	if PlatformWeb.IsMobile() || !PlatformAndroid.IsMobile() || !PlatformIOS.IsMobile() {
		t.Error("IsMobile mismatch")
	}
	if PlatformAndroid.Locator() != locator.PlatformAndroid {
		t.Error("Locator() should map to locator.PlatformAndroid")
	}
}

package page

import (
	"context"

	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Mobile (Flutter) locators. Flutter exposes semantics labels as
// content-desc on Android and label/name on iOS.
var (
	MobileUsername  = locator.FlutterInput(1).Named("mobile username")
	MobilePassword  = locator.FlutterInput(2).Named("mobile password")
	MobileLogin     = locator.FlutterButton("Login")
	MobileOTPInput  = locator.FlutterInput(1).Named("mobile OTP")
	MobileVerifyOTP = locator.FlutterButton("Verify")
	MobileHome      = locator.FlutterText("Home")
)

// MobileLoginScreen is the login and OTP flow of the field app.
type MobileLoginScreen struct {
	*Base
}

// NewMobileLoginScreen creates a MobileLoginScreen.
func NewMobileLoginScreen(b *Base) *MobileLoginScreen {
	return &MobileLoginScreen{Base: b}
}

// Launch brings the app to the foreground.
func (s *MobileLoginScreen) Launch(ctx context.Context) error {
	return s.Driver.Open(ctx, "")
}

// Login types the credentials and taps Login.
func (s *MobileLoginScreen) Login(ctx context.Context, username, password string) error {
	logger.Info("mobile login as %s", username)
	if err := s.SmartType(ctx, MobileUsername, username); err != nil {
		return err
	}
	if err := s.SmartType(ctx, MobilePassword, password); err != nil {
		return err
	}
	return s.SmartClick(ctx, MobileLogin)
}

// EnterOTP types the OTP and taps Verify.
func (s *MobileLoginScreen) EnterOTP(ctx context.Context, otp string) error {
	if err := s.SmartType(ctx, MobileOTPInput, otp); err != nil {
		return err
	}
	return s.SmartClick(ctx, MobileVerifyOTP)
}

// HomeVisible waits for the home screen.
func (s *MobileLoginScreen) HomeVisible(ctx context.Context) error {
	_, err := s.SmartFind(ctx, MobileHome)
	return err
}

package page

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Forgot-password flow locators.
var (
	ResetUsername    = locator.XPath("//input[@formcontrolname='username' or @name='username' or @formcontrolname='email']").Named("reset username field")
	SendOTPButton    = locator.ButtonByText("Send OTP")
	OTPBoxes         = locator.XPath("//input[contains(@class,'otp')]").Named("OTP boxes")
	OTPField         = locator.XPath("//input[@formcontrolname='otp' or @name='otp' or contains(@placeholder,'OTP')]").Named("OTP field")
	VerifyOTPButton  = locator.ButtonByText("Verify OTP")
	NewPassword      = locator.XPath("//input[@formcontrolname='newPassword' or @name='newPassword']").Named("new password field")
	ConfirmPassword  = locator.XPath("//input[@formcontrolname='confirmPassword' or @name='confirmPassword']").Named("confirm password field")
	ResetSubmit      = locator.ButtonByText("Reset Password")
	ResetSuccessText = locator.XPath("//*[contains(@class,'success') or contains(@class,'toast')][contains(normalize-space(.),'successfully')]").Named("reset success message")
)

// ForgotPasswordPage covers the OTP based password reset.
type ForgotPasswordPage struct {
	*Base
}

// NewForgotPasswordPage creates a ForgotPasswordPage.
func NewForgotPasswordPage(b *Base) *ForgotPasswordPage {
	return &ForgotPasswordPage{Base: b}
}

// RequestOTP asks the backend to send a reset OTP for username.
func (p *ForgotPasswordPage) RequestOTP(ctx context.Context, username string) error {
	logger.Info("request password reset OTP for %s", username)
	if err := p.Type(ctx, ResetUsername, username); err != nil {
		return err
	}
	return p.SmartClick(ctx, SendOTPButton)
}

// EnterOTP fills the OTP, either into one box per digit or a single field,
// and submits it.
func (p *ForgotPasswordPage) EnterOTP(ctx context.Context, otp string) error {
	anyOTP := locator.XPath(OTPField.Value + " | " + OTPBoxes.Value).Named("OTP input")
	if _, err := p.WaitVisible(ctx, anyOTP); err != nil {
		return err
	}

	boxes, _ := p.Driver.FindAll(ctx, OTPBoxes)
	if len(boxes) > 1 && len(boxes) >= len(otp) {
		for i, digit := range otp {
			box := locator.XPath(fmt.Sprintf("(%s)[%d]", OTPBoxes.Value, i+1)).Named(fmt.Sprintf("OTP box %d", i+1))
			if err := p.Type(ctx, box, string(digit)); err != nil {
				return err
			}
		}
	} else if err := p.Type(ctx, OTPField, otp); err != nil {
		return err
	}
	return p.SmartClick(ctx, VerifyOTPButton)
}

// SetNewPassword fills both password fields and submits.
func (p *ForgotPasswordPage) SetNewPassword(ctx context.Context, password string) error {
	if err := p.Type(ctx, NewPassword, password); err != nil {
		return err
	}
	if err := p.Type(ctx, ConfirmPassword, password); err != nil {
		return err
	}
	return p.SmartClick(ctx, ResetSubmit)
}

// SuccessMessage returns the confirmation shown after a reset.
func (p *ForgotPasswordPage) SuccessMessage(ctx context.Context) (string, error) {
	return p.Text(ctx, ResetSuccessText)
}

package page

import (
	"context"

	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Login screen locators.
var (
	LoginUsername = locator.XPath("//input[@formcontrolname='username' or @name='username' or @id='username']").Named("username field")
	LoginPassword = locator.XPath("//input[@formcontrolname='password' or @name='password' or @type='password']").Named("password field")
	LoginSubmit   = locator.XPath("//button[@type='submit' or normalize-space(.)='Login' or normalize-space(.)='Sign In']").Named("login button")
	LoginError    = locator.XPath("//*[contains(@class,'error-message') or contains(@class,'invalid-feedback') or contains(@class,'mat-error') or @role='alert']").Named("login error")
	ForgotLink    = locator.Tag("a").ContainsText("Forgot").By().Named("forgot password link")
)

// LoginPage is the CRM web login screen.
type LoginPage struct {
	*Base
	URL string
}

// NewLoginPage creates a LoginPage served at url.
func NewLoginPage(b *Base, url string) *LoginPage {
	return &LoginPage{Base: b, URL: url}
}

// Open navigates to the login screen and waits for the form.
func (p *LoginPage) Open(ctx context.Context) error {
	logger.Info("open login page %s", p.URL)
	if err := p.Driver.Open(ctx, p.URL); err != nil {
		return err
	}
	_, err := p.WaitVisible(ctx, LoginUsername)
	return err
}

// Login submits the credentials. It does not wait for the outcome; use
// DashboardPage.WaitLoaded or ErrorMessage.
func (p *LoginPage) Login(ctx context.Context, username, password string) error {
	logger.Info("login as %s", username)
	if err := p.Type(ctx, LoginUsername, username); err != nil {
		return err
	}
	if err := p.Type(ctx, LoginPassword, password); err != nil {
		return err
	}
	return p.SmartClick(ctx, LoginSubmit)
}

// ErrorMessage returns the validation or authentication error shown.
func (p *LoginPage) ErrorMessage(ctx context.Context) (string, error) {
	return p.Text(ctx, LoginError)
}

// IsLoggedIn reports whether the dashboard shell is showing.
func (p *LoginPage) IsLoggedIn(ctx context.Context) bool {
	return p.IsVisible(ctx, DashboardHeader) && !p.IsVisible(ctx, LoginUsername)
}

// ForgotPassword follows the forgot-password link.
func (p *LoginPage) ForgotPassword(ctx context.Context) (*ForgotPasswordPage, error) {
	if err := p.SmartClick(ctx, ForgotLink); err != nil {
		return nil, err
	}
	return &ForgotPasswordPage{Base: p.Base}, nil
}

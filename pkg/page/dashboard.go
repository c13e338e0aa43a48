package page

import (
	"context"

	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

// Dashboard locators.
var (
	DashboardHeader = locator.XPath("//*[contains(@class,'dashboard')]//h1 | //h1[normalize-space(.)='Dashboard'] | //*[@id='dashboard']").Named("dashboard header")
	ProfileMenu     = locator.XPath("//*[contains(@class,'profile') or contains(@class,'user-menu')]//*[self::button or self::a][1]").Named("profile menu")
	ProfileName     = locator.XPath("//*[contains(@class,'user-name') or contains(@class,'profile-name')]").Named("user name")
	LogoutItem      = locator.XPath("//*[self::a or self::button or @role='menuitem'][normalize-space(.)='Logout' or normalize-space(.)='Log out' or normalize-space(.)='Sign out']").Named("logout")
	LoadingSpinner  = locator.XPath("//*[contains(@class,'spinner') or contains(@class,'loader') or contains(@class,'loading')]").Named("spinner")
)

// DashboardPage is the landing page after login.
type DashboardPage struct {
	*Base
}

// NewDashboardPage creates a DashboardPage.
func NewDashboardPage(b *Base) *DashboardPage {
	return &DashboardPage{Base: b}
}

// WaitLoaded waits for the header and for any spinner to disappear.
func (p *DashboardPage) WaitLoaded(ctx context.Context) error {
	if _, err := p.WaitVisible(ctx, DashboardHeader); err != nil {
		return err
	}
	return p.WaitGone(ctx, LoadingSpinner)
}

// OpenMenu opens a navigation entry such as "Activity Master" or "Bulk Upload".
// Nested entries are given as "Masters > Activity Master".
func (p *DashboardPage) OpenMenu(ctx context.Context, path ...string) error {
	for _, name := range path {
		if err := p.SmartClick(ctx, locator.MenuItem(name)); err != nil {
			return err
		}
	}
	return p.WaitGone(ctx, LoadingSpinner)
}

// UserName returns the name shown in the header.
func (p *DashboardPage) UserName(ctx context.Context) (string, error) {
	return p.Text(ctx, ProfileName)
}

// Logout signs out through the profile menu.
func (p *DashboardPage) Logout(ctx context.Context) error {
	if err := p.Click(ctx, ProfileMenu); err != nil {
		return err
	}
	if err := p.SmartClick(ctx, LogoutItem); err != nil {
		return err
	}
	_, err := p.WaitVisible(ctx, LoginUsername)
	return err
}

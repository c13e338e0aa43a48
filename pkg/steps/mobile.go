package steps

import (
	"context"

	"github.com/devicelab-dev/crm-e2e/pkg/page"
	"github.com/devicelab-dev/crm-e2e/pkg/state"
)

func registerMobile(r *Registry) {
	r.Add(GroupMobile, `I login on the mobile app with "(.*)" and "(.*)"`, mobileLogin)
	r.Add(GroupMobile, `I enter the mobile OTP for "(.*)"`, mobileOTP)
	r.Add(GroupMobile, `the mobile home screen should be visible`, mobileHome)
}

func (w *World) mobileScreen(ctx context.Context) (*page.MobileLoginScreen, error) {
	b, err := w.Page(ctx)
	if err != nil {
		return nil, err
	}
	return page.NewMobileLoginScreen(b), nil
}

// mobileLogin launches the app and signs in. The app answers a login from
// a new device with an OTP, so the request time is recorded.
func mobileLogin(ctx context.Context, username, password string) error {
	w := FromContext(ctx)
	s, err := w.mobileScreen(ctx)
	if err != nil {
		return err
	}
	if err := s.Launch(ctx); err != nil {
		return err
	}
	w.markOTPRequested()
	w.State.Set(KeyUsername, username)
	return s.Login(ctx, username, password)
}

func mobileOTP(ctx context.Context, username string) error {
	w := FromContext(ctx)
	otp := w.State.String(state.KeyOTP)
	if otp == "" {
		var err error
		if otp, err = w.otpFromDB(ctx, username); err != nil {
			return err
		}
	}
	s, err := w.mobileScreen(ctx)
	if err != nil {
		return err
	}
	return s.EnterOTP(ctx, otp)
}

func mobileHome(ctx context.Context) error {
	s, err := FromContext(ctx).mobileScreen(ctx)
	if err != nil {
		return err
	}
	return s.HomeVisible(ctx)
}

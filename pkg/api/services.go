package api

import (
	"context"
	"net/http"
	"strconv"
)

// AuthService handles login and password reset.
type AuthService struct {
	client *Client
}

// Login authenticates and, on success, makes the returned token the
// client's bearer token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResponse, *Response, error) {
	var result LoginResponse
	resp, err := s.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   EndpointLogin,
		Body:   LoginRequest{Username: username, Password: password},
	}, &result)
	if err != nil {
		return nil, resp, err
	}
	if result.Data.Token != "" {
		s.client.SetToken(result.Data.Token)
	}
	return &result, resp, nil
}

// ForgotPassword triggers a reset OTP for username.
func (s *AuthService) ForgotPassword(ctx context.Context, username string) (*Envelope, *Response, error) {
	var result Envelope
	resp, err := s.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   EndpointForgotPassword,
		Body:   ForgotPasswordRequest{Username: username},
	}, &result)
	if err != nil {
		return nil, resp, err
	}
	return &result, resp, nil
}

// VerifyOTP submits the OTP a user received.
func (s *AuthService) VerifyOTP(ctx context.Context, username, otp string) (*VerifyOTPResponse, *Response, error) {
	var result VerifyOTPResponse
	resp, err := s.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   EndpointVerifyOTP,
		Body:   VerifyOTPRequest{Username: username, OTP: otp},
	}, &result)
	if err != nil {
		return nil, resp, err
	}
	return &result, resp, nil
}

// ActivitiesService handles the activity master.
type ActivitiesService struct {
	client *Client
}

// Settings fetches the activity form configuration of the logged-in company.
func (s *ActivitiesService) Settings(ctx context.Context) (*ActivitySettingResponse, *Response, error) {
	var result ActivitySettingResponse
	resp, err := s.client.Do(ctx, Request{Method: http.MethodGet, Path: EndpointActivitySettings}, &result)
	if err != nil {
		return nil, resp, err
	}
	return &result, resp, nil
}

// AddEdit creates or updates an activity.
func (s *ActivitiesService) AddEdit(ctx context.Context, req *AddEditActivityRequest) (*AddEditActivityResponse, *Response, error) {
	var result AddEditActivityResponse
	resp, err := s.client.Do(ctx, Request{Method: http.MethodPost, Path: EndpointAddEditActivity, Body: req}, &result)
	if err != nil {
		return nil, resp, err
	}
	return &result, resp, nil
}

// ListOptions filters the activity list.
type ListOptions struct {
	Search string
	Page   int
	Size   int
}

// List returns a page of activities.
func (s *ActivitiesService) List(ctx context.Context, opts ListOptions) (*ActivityListResponse, *Response, error) {
	query := map[string]string{}
	if opts.Search != "" {
		query["search"] = opts.Search
	}
	if opts.Page > 0 {
		query["page"] = strconv.Itoa(opts.Page)
	}
	if opts.Size > 0 {
		query["size"] = strconv.Itoa(opts.Size)
	}

	var result ActivityListResponse
	resp, err := s.client.Do(ctx, Request{Method: http.MethodGet, Path: EndpointActivityList, Query: query}, &result)
	if err != nil {
		return nil, resp, err
	}
	return &result, resp, nil
}

// FindByName returns the first listed activity called name, or nil.
func (s *ActivitiesService) FindByName(ctx context.Context, name string) (*Activity, error) {
	list, _, err := s.List(ctx, ListOptions{Search: name})
	if err != nil {
		return nil, err
	}
	for i := range list.Data.Items {
		if list.Data.Items[i].Name == name {
			return &list.Data.Items[i], nil
		}
	}
	return nil, nil
}

// BulkUploadService reads bulk upload batches.
type BulkUploadService struct {
	client *Client
}

// Status returns the processing state of a batch.
func (s *BulkUploadService) Status(ctx context.Context, batchID string) (*BulkUploadStatusResponse, *Response, error) {
	var result BulkUploadStatusResponse
	resp, err := s.client.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   EndpointBulkUploadStatus,
		Query:  map[string]string{"batchId": batchID},
	}, &result)
	if err != nil {
		return nil, resp, err
	}
	return &result, resp, nil
}

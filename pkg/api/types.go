package api

// Endpoints of the CRM backend, relative to api.baseUrl.
const (
	EndpointLogin            = "/login/api/auth/login"
	EndpointForgotPassword   = "/login/api/auth/forgotPassword"
	EndpointVerifyOTP        = "/login/api/auth/verifyOtp"
	EndpointAddEditActivity  = "/transactions/api/activities/addEditActivity"
	EndpointActivitySettings = "/transactions/api/activities/getActivitySetting"
	EndpointActivityList     = "/transactions/api/activities/list"
	EndpointBulkUploadStatus = "/masters/api/bulkUpload/status"
)

// Envelope is the wrapper common to every response body.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// LoginRequest is the body of EndpointLogin.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by EndpointLogin.
type LoginResponse struct {
	Envelope
	Data LoginData `json:"data"`
}

// LoginData is the session of a successful login.
type LoginData struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	UserID       int64    `json:"userId"`
	UserName     string   `json:"userName"`
	CompanyID    int64    `json:"companyId"`
	Roles        []string `json:"roles"`
}

// ForgotPasswordRequest asks for a reset OTP.
type ForgotPasswordRequest struct {
	Username string `json:"username"`
}

// VerifyOTPRequest checks a reset OTP.
type VerifyOTPRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp"`
}

// VerifyOTPResponse carries the token that authorizes the password change.
type VerifyOTPResponse struct {
	Envelope
	Data struct {
		ResetToken string `json:"resetToken"`
	} `json:"data"`
}

// Option is an id/name pair of a dropdown served by the backend.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ActivitySettings configures the add-activity form of a company.
type ActivitySettings struct {
	CompanyID     int64    `json:"companyId"`
	ActivityTypes []Option `json:"activityTypes"`
	Frequencies   []Option `json:"frequencies"`
	Statuses      []Option `json:"statuses"`
	MaxActivities int      `json:"maxActivities"`
}

// ActivitySettingResponse is returned by EndpointActivitySettings.
type ActivitySettingResponse struct {
	Envelope
	Data ActivitySettings `json:"data"`
}

// OptionID returns the id of the option called name (case-sensitive), or 0.
func OptionID(opts []Option, name string) int64 {
	for _, o := range opts {
		if o.Name == name {
			return o.ID
		}
	}
	return 0
}

// AddEditActivityRequest creates an activity, or edits it when ActivityID is set.
type AddEditActivityRequest struct {
	ActivityID     int64  `json:"activityId,omitempty"`
	ActivityName   string `json:"activityName"`
	ActivityTypeID int64  `json:"activityTypeId,omitempty"`
	ActivityType   string `json:"activityType,omitempty"`
	Frequency      string `json:"frequency,omitempty"`
	Description    string `json:"description,omitempty"`
	StartDate      string `json:"startDate,omitempty"` // yyyy-MM-dd
	EndDate        string `json:"endDate,omitempty"`
	Status         string `json:"status,omitempty"`
	CompanyID      int64  `json:"companyId,omitempty"`
	IsActive       bool   `json:"isActive"`
}

// AddEditActivityResponse is returned by EndpointAddEditActivity.
type AddEditActivityResponse struct {
	Envelope
	Data struct {
		ActivityID   int64  `json:"activityId"`
		ActivityName string `json:"activityName"`
	} `json:"data"`
}

// Activity is one row of the activity list.
type Activity struct {
	ID           int64  `json:"activityId"`
	Name         string `json:"activityName"`
	ActivityType string `json:"activityType"`
	Frequency    string `json:"frequency"`
	Description  string `json:"description"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	Status       string `json:"status"`
	CompanyID    int64  `json:"companyId"`
}

// ActivityListResponse is returned by EndpointActivityList.
type ActivityListResponse struct {
	Envelope
	Data struct {
		Items []Activity `json:"items"`
		Total int        `json:"total"`
	} `json:"data"`
}

// BulkUploadBatch is the processing state of an uploaded workbook.
type BulkUploadBatch struct {
	BatchID      string `json:"batchId"`
	Template     string `json:"template"`
	Status       string `json:"status"` // PENDING, PROCESSING, COMPLETED, FAILED
	TotalRows    int    `json:"totalRows"`
	SuccessRows  int    `json:"successRows"`
	FailedRows   int    `json:"failedRows"`
	ErrorFileURL string `json:"errorFileUrl,omitempty"`
}

// BulkUploadStatusResponse is returned by EndpointBulkUploadStatus.
type BulkUploadStatusResponse struct {
	Envelope
	Data BulkUploadBatch `json:"data"`
}

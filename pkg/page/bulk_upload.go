package page

import (
	"context"
	"regexp"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Bulk upload locators.
var (
	BulkTemplateSelect = locator.XPath("//*[@formcontrolname='template' or @name='template' or @formcontrolname='uploadType']").Named("template dropdown")
	BulkFileInput      = locator.XPath("//input[@type='file']").Named("file input")
	BulkSubmit         = locator.ButtonByText("Upload")
	BulkStatus         = locator.XPath("//*[contains(@class,'upload-status') or contains(@class,'batch-status')]").Named("upload status")
	BulkErrorReport    = locator.XPath("//a[contains(normalize-space(.),'Error Report') or contains(normalize-space(.),'Download Errors')]").Named("error report link")
)

var batchIDRe = regexp.MustCompile(`(?i)batch\s*(?:id|no\.?|number|#)\s*[:#]?\s*([0-9][A-Za-z0-9-]*)`)

// BulkUploadPage is the masters bulk upload screen.
type BulkUploadPage struct {
	*Base
}

// NewBulkUploadPage creates a BulkUploadPage.
func NewBulkUploadPage(b *Base) *BulkUploadPage {
	return &BulkUploadPage{Base: b}
}

// SelectTemplate picks the upload template, e.g. "Outlet Master".
func (p *BulkUploadPage) SelectTemplate(ctx context.Context, name string) error {
	return p.Select(ctx, BulkTemplateSelect, name)
}

// Upload attaches the workbook.
func (p *BulkUploadPage) Upload(ctx context.Context, path string) error {
	logger.Info("bulk upload %s", path)
	return p.Base.Upload(ctx, BulkFileInput, path)
}

// Submit starts the upload and waits for the spinner to go away.
func (p *BulkUploadPage) Submit(ctx context.Context) error {
	if err := p.SmartClick(ctx, BulkSubmit); err != nil {
		return err
	}
	return p.WaitGone(ctx, LoadingSpinner)
}

// UploadStatus returns the status line shown after submitting, or the
// toast when the screen shows no status panel.
func (p *BulkUploadPage) UploadStatus(ctx context.Context) (string, error) {
	if p.IsVisible(ctx, BulkStatus) {
		return p.Text(ctx, BulkStatus)
	}
	return p.Text(ctx, locator.ToastMessage())
}

// BatchID extracts the batch identifier from the upload status.
func (p *BulkUploadPage) BatchID(ctx context.Context) (string, error) {
	status, err := p.UploadStatus(ctx)
	if err != nil {
		return "", err
	}
	return ParseBatchID(status)
}

// ParseBatchID extracts a batch id from a message like
// "File uploaded successfully. Batch ID: 20431".
func ParseBatchID(message string) (string, error) {
	m := batchIDRe.FindStringSubmatch(message)
	if m == nil {
		return "", core.ErrConditionNotMet.WithMessage("no batch id in upload status: " + message)
	}
	return m[1], nil
}

// DownloadErrorReport clicks the error report link.
func (p *BulkUploadPage) DownloadErrorReport(ctx context.Context) error {
	return p.SmartClick(ctx, BulkErrorReport)
}

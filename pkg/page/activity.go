package page

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Activity master locators.
var (
	AddActivityButton   = locator.XPath("//button[contains(normalize-space(.),'Add Activity') or contains(normalize-space(.),'Create Activity')]").Named("add activity button")
	ActivityName        = locator.InputByPlaceholder("Activity Name")
	ActivityTypeSelect  = locator.XPath("//*[@formcontrolname='activityType' or @name='activityType']").Named("activity type dropdown")
	ActivityFrequency   = locator.XPath("//*[@formcontrolname='frequency' or @name='frequency']").Named("frequency dropdown")
	ActivityDescription = locator.XPath("//textarea[@formcontrolname='description' or @name='description']").Named("description field")
	ActivityStartDate   = locator.XPath("//input[@formcontrolname='startDate' or @name='startDate']").Named("start date field")
	ActivityEndDate     = locator.XPath("//input[@formcontrolname='endDate' or @name='endDate']").Named("end date field")
	ActivityStatus      = locator.XPath("//*[@formcontrolname='status' or @name='status']").Named("status dropdown")
	ActivitySave        = locator.ButtonByText("Save")
	ActivitySearch      = locator.InputByPlaceholder("Search")
)

// Column of the activity grid that holds the status.
const activityStatusColumn = 4

// ActivityForm is the add/edit activity form.
type ActivityForm struct {
	Name        string
	Type        string
	Frequency   string
	Description string
	StartDate   string // dd/MM/yyyy, as the date picker accepts typed input
	EndDate     string
	Status      string
}

// activityFields maps data table keys to form fields.
var activityFields = map[string]func(f *ActivityForm) *string{
	"name":        func(f *ActivityForm) *string { return &f.Name },
	"type":        func(f *ActivityForm) *string { return &f.Type },
	"frequency":   func(f *ActivityForm) *string { return &f.Frequency },
	"description": func(f *ActivityForm) *string { return &f.Description },
	"start date":  func(f *ActivityForm) *string { return &f.StartDate },
	"end date":    func(f *ActivityForm) *string { return &f.EndDate },
	"status":      func(f *ActivityForm) *string { return &f.Status },
}

// ActivityFormFromFields builds a form from key/value pairs such as a
// Gherkin data table. Keys are case-insensitive; "activity name" and
// "activity type" are accepted for name and type.
func ActivityFormFromFields(fields map[string]string) (ActivityForm, error) {
	var form ActivityForm
	for k, v := range fields {
		key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(k)), "activity ")
		set, ok := activityFields[key]
		if !ok {
			known := make([]string, 0, len(activityFields))
			for name := range activityFields {
				known = append(known, name)
			}
			sort.Strings(known)
			return form, fmt.Errorf("unknown activity field %q (known: %s)", k, strings.Join(known, ", "))
		}
		*set(&form) = v
	}
	if form.Name == "" {
		return form, fmt.Errorf("activity name is required")
	}
	return form, nil
}

// ActivityPage is the activity master grid and its add/edit form.
type ActivityPage struct {
	*Base
}

// NewActivityPage creates an ActivityPage.
func NewActivityPage(b *Base) *ActivityPage {
	return &ActivityPage{Base: b}
}

// OpenNew opens an empty add-activity form.
func (p *ActivityPage) OpenNew(ctx context.Context) error {
	if err := p.SmartClick(ctx, AddActivityButton); err != nil {
		return err
	}
	_, err := p.WaitVisible(ctx, ActivityName)
	return err
}

// FillActivity fills every non-empty field of form.
func (p *ActivityPage) FillActivity(ctx context.Context, form ActivityForm) error {
	logger.Info("fill activity %q", form.Name)
	if err := p.Type(ctx, ActivityName, form.Name); err != nil {
		return err
	}
	selects := []struct {
		by    locator.By
		value string
	}{
		{ActivityTypeSelect, form.Type},
		{ActivityFrequency, form.Frequency},
		{ActivityStatus, form.Status},
	}
	for _, s := range selects {
		if s.value == "" {
			continue
		}
		if err := p.Select(ctx, s.by, s.value); err != nil {
			return err
		}
	}
	inputs := []struct {
		by    locator.By
		value string
	}{
		{ActivityDescription, form.Description},
		{ActivityStartDate, form.StartDate},
		{ActivityEndDate, form.EndDate},
	}
	for _, in := range inputs {
		if in.value == "" {
			continue
		}
		if err := p.Type(ctx, in.by, in.value); err != nil {
			return err
		}
	}
	return nil
}

// Save submits the form and waits for the confirmation toast.
func (p *ActivityPage) Save(ctx context.Context) (string, error) {
	if err := p.SmartClick(ctx, ActivitySave); err != nil {
		return "", err
	}
	return p.Toast(ctx)
}

// Create opens, fills and saves a new activity.
func (p *ActivityPage) Create(ctx context.Context, form ActivityForm) (string, error) {
	if err := p.OpenNew(ctx); err != nil {
		return "", err
	}
	if err := p.FillActivity(ctx, form); err != nil {
		return "", err
	}
	return p.Save(ctx)
}

// Search filters the grid by name.
func (p *ActivityPage) Search(ctx context.Context, name string) error {
	return p.Type(ctx, ActivitySearch, name)
}

// RowByName locates the grid row of an activity.
func RowByName(name string) locator.By {
	return locator.TableRowContaining(name)
}

// StatusOf returns the status cell of the activity row.
func (p *ActivityPage) StatusOf(ctx context.Context, name string) (string, error) {
	if _, err := p.WaitVisible(ctx, RowByName(name)); err != nil {
		return "", err
	}
	return p.Text(ctx, locator.TableCell(name, activityStatusColumn))
}

// Toast returns the text of the current notification.
func (p *ActivityPage) Toast(ctx context.Context) (string, error) {
	return p.Text(ctx, locator.ToastMessage())
}

package locator

import (
	"fmt"
	"strings"
)

// XPathBuilder composes XPath expressions step by step. Each call returns a
// new builder so a common prefix can be shared between page objects.
type XPathBuilder struct {
	steps []string
}

// Any starts an expression matching any element anywhere in the document.
func Any() XPathBuilder {
	return Tag("*")
}

// Tag starts an expression matching tag anywhere in the document.
func Tag(tag string) XPathBuilder {
	return XPathBuilder{steps: []string{"//" + tag}}
}

func (x XPathBuilder) clone() XPathBuilder {
	steps := make([]string, len(x.steps))
	copy(steps, x.steps)
	return XPathBuilder{steps: steps}
}

func (x XPathBuilder) pred(p string) XPathBuilder {
	n := x.clone()
	last := len(n.steps) - 1
	n.steps[last] = n.steps[last] + "[" + p + "]"
	return n
}

func (x XPathBuilder) axis(sep, tag string) XPathBuilder {
	n := x.clone()
	n.steps = append(n.steps, sep+tag)
	return n
}

// WithText matches the normalized text of the current step exactly.
func (x XPathBuilder) WithText(text string) XPathBuilder {
	return x.pred("normalize-space(.)=" + Quote(text))
}

// ContainsText matches a substring of the element's text.
func (x XPathBuilder) ContainsText(text string) XPathBuilder {
	return x.pred("contains(normalize-space(.), " + Quote(text) + ")")
}

// WithAttr matches an attribute value exactly.
func (x XPathBuilder) WithAttr(name, value string) XPathBuilder {
	return x.pred("@" + name + "=" + Quote(value))
}

// ContainsAttr matches a substring of an attribute value.
func (x XPathBuilder) ContainsAttr(name, value string) XPathBuilder {
	return x.pred("contains(@" + name + ", " + Quote(value) + ")")
}

// Index selects the n-th (1-based) match of the current step.
func (x XPathBuilder) Index(n int) XPathBuilder {
	return x.pred(fmt.Sprintf("%d", n))
}

// Child appends a direct child step.
func (x XPathBuilder) Child(tag string) XPathBuilder { return x.axis("/", tag) }

// Descendant appends a descendant step.
func (x XPathBuilder) Descendant(tag string) XPathBuilder { return x.axis("//", tag) }

// FollowingSibling appends a following-sibling step.
func (x XPathBuilder) FollowingSibling(tag string) XPathBuilder {
	return x.axis("/following-sibling::", tag)
}

// Ancestor appends an ancestor step.
func (x XPathBuilder) Ancestor(tag string) XPathBuilder { return x.axis("/ancestor::", tag) }

// String renders the expression.
func (x XPathBuilder) String() string {
	return strings.Join(x.steps, "")
}

// By wraps the expression as a locator.
func (x XPathBuilder) By() By {
	return XPath(x.String())
}

// ButtonByText matches buttons (native or role=button) by their caption.
func ButtonByText(text string) By {
	q := Quote(text)
	return XPath("//button[normalize-space(.)=" + q + "] | //*[@role='button'][normalize-space(.)=" + q + "] | //input[@type='submit' and @value=" + q + "]").
		Named(text + " button")
}

// InputByLabel matches the input that follows a <label> with the given text.
func InputByLabel(label string) By {
	return Tag("label").WithText(label).FollowingSibling("input").Index(1).By().Named(label + " field")
}

// InputByPlaceholder matches an input or textarea by its placeholder.
func InputByPlaceholder(placeholder string) By {
	q := Quote(placeholder)
	return XPath("//input[@placeholder=" + q + "] | //textarea[@placeholder=" + q + "]").Named(placeholder + " field")
}

// MenuItem matches a sidebar or top-level navigation entry.
func MenuItem(name string) By {
	q := Quote(name)
	return XPath("//nav//*[self::a or self::span or self::li][normalize-space(.)=" + q + "] | //*[contains(@class,'menu')]//*[normalize-space(text())=" + q + "]").
		Named(name + " menu")
}

// TableRowContaining matches a table body row that has a cell with text.
func TableRowContaining(text string) By {
	return Tag("tbody").Descendant("tr").pred(".//td[normalize-space(.)=" + Quote(text) + "]").By().Named("row " + text)
}

// TableCell matches the col-th cell (1-based) of the row holding rowText.
func TableCell(rowText string, col int) By {
	return Tag("tbody").Descendant("tr").pred(".//td[normalize-space(.)=" + Quote(rowText) + "]").
		Child("td").Index(col).By().Named(fmt.Sprintf("cell %d of row %s", col, rowText))
}

// ToastMessage matches transient notification banners.
func ToastMessage() By {
	return XPath("//*[contains(@class,'toast') or contains(@class,'snackbar') or @role='alert']").Named("toast")
}

// DropdownOption matches an option inside an open dropdown or listbox.
func DropdownOption(text string) By {
	q := Quote(text)
	return XPath("//option[normalize-space(.)=" + q + "] | //*[@role='option'][normalize-space(.)=" + q + "] | //li[contains(@class,'option')][normalize-space(.)=" + q + "]").
		Named(text + " option")
}

// FlutterText matches Flutter widgets exposed through content-desc (Android)
// or name/label (iOS).
func FlutterText(text string) By {
	q := Quote(text)
	return XPath("//*[@content-desc=" + q + " or @text=" + q + " or @label=" + q + " or @name=" + q + "]").Named(text)
}

// FlutterButton matches a tappable Flutter widget whose description starts with text.
func FlutterButton(text string) By {
	q := Quote(text)
	return XPath("//*[@clickable='true' or @type='XCUIElementTypeButton'][starts-with(@content-desc, " + q + ") or starts-with(@label, " + q + ")]").
		Named(text + " button")
}

// FlutterInput matches the n-th (1-based) editable field of a Flutter screen.
func FlutterInput(n int) By {
	return XPath(fmt.Sprintf("(//android.widget.EditText | //XCUIElementTypeTextField | //XCUIElementTypeSecureTextField)[%d]", n)).
		Named(fmt.Sprintf("input %d", n))
}

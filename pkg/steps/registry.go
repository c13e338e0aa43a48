package steps

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
)

// Step groups.
const (
	GroupCommon     = "common"
	GroupUILogin    = "ui login"
	GroupUIOTP      = "ui otp"
	GroupUIActivity = "ui activity"
	GroupUIBulk     = "ui bulk upload"
	GroupMobile     = "mobile"
	GroupAPI        = "api"
	GroupDB         = "db"
)

// Definition binds one phrase to its handler. Handlers take a
// context.Context first and return an error.
type Definition struct {
	Group   string
	Pattern string
	Handler interface{}

	re *regexp.Regexp
}

// Expr is the anchored expression registered with godog.
func (d Definition) Expr() string {
	return "^" + d.Pattern + "$"
}

// Match reports whether text is handled by d.
func (d Definition) Match(text string) bool {
	return d.re.MatchString(text)
}

// Registry holds every step definition.
type Registry struct {
	defs []Definition
}

// NewRegistry returns a registry with all built-in steps.
func NewRegistry() *Registry {
	r := &Registry{}
	registerCommon(r)
	registerUI(r)
	registerMobile(r)
	registerAPI(r)
	registerDB(r)
	return r
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType   = reflect.TypeOf((*error)(nil)).Elem()
	tableType = reflect.TypeOf((*godog.Table)(nil))
)

// Add registers a step. It panics on a malformed pattern or handler.
func (r *Registry) Add(group, pattern string, handler interface{}) {
	ft := reflect.TypeOf(handler)
	if ft == nil || ft.Kind() != reflect.Func || ft.NumIn() == 0 || ft.In(0) != ctxType ||
		ft.NumOut() != 1 || ft.Out(0) != errType {
		panic(fmt.Sprintf("step %q: handler must be func(context.Context, ...) error, got %v", pattern, ft))
	}
	d := Definition{Group: group, Pattern: pattern, Handler: handler}
	d.re = regexp.MustCompile(d.Expr())
	r.defs = append(r.defs, d)
}

// Definitions returns the registered steps in registration order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Matching returns the definitions whose pattern matches text.
func (r *Registry) Matching(text string) []Definition {
	var out []Definition
	for _, d := range r.defs {
		if d.Match(text) {
			out = append(out, d)
		}
	}
	return out
}

// Register adds every step to sc. String and table arguments are expanded
// against the scenario World before the handler runs.
func (r *Registry) Register(sc *godog.ScenarioContext) {
	for _, d := range r.defs {
		sc.Step(d.Expr(), expanding(d.Handler))
	}
}

var errNoWorld = errors.New("step context carries no scenario world")

func errResult(err error) []reflect.Value {
	v := reflect.New(errType).Elem()
	v.Set(reflect.ValueOf(err))
	return []reflect.Value{v}
}

// expanding wraps handler in a function of the same type that expands its
// arguments first. godog inspects the wrapper's signature as usual.
func expanding(handler interface{}) interface{} {
	fn := reflect.ValueOf(handler)
	ft := fn.Type()

	return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		ctx, _ := args[0].Interface().(context.Context)
		w := FromContext(ctx)
		if w == nil {
			return errResult(errNoWorld)
		}
		for i := 1; i < len(args); i++ {
			switch {
			case ft.In(i).Kind() == reflect.String:
				s, err := w.Expand(args[i].String())
				if err != nil {
					return errResult(err)
				}
				args[i] = reflect.ValueOf(s).Convert(ft.In(i))
			case ft.In(i) == tableType && !args[i].IsNil():
				t, err := w.expandTable(args[i].Interface().(*godog.Table))
				if err != nil {
					return errResult(err)
				}
				args[i] = reflect.ValueOf(t)
			}
		}
		return fn.Call(args)
	}).Interface()
}

// expandTable returns a copy of t with every cell expanded.
func (w *World) expandTable(t *godog.Table) (*godog.Table, error) {
	out := &godog.Table{Rows: make([]*messages.PickleTableRow, len(t.Rows))}
	for i, row := range t.Rows {
		cells := make([]*messages.PickleTableCell, len(row.Cells))
		for j, c := range row.Cells {
			v, err := w.Expand(c.Value)
			if err != nil {
				return nil, err
			}
			cells[j] = &messages.PickleTableCell{Value: v}
		}
		out.Rows[i] = &messages.PickleTableRow{Cells: cells}
	}
	return out, nil
}

// tableFields reads a data table as field/value pairs. Two-column tables
// are field/value rows (an optional "field | value" header is skipped);
// wider tables are a header row followed by one value row:
//
//	| name | Store Audit |        | name        | type  | status |
//	| type | Visit       |        | Store Audit | Visit | Active |
func tableFields(t *godog.Table) (map[string]string, error) {
	if t == nil || len(t.Rows) == 0 {
		return nil, fmt.Errorf("data table is empty")
	}
	fields := map[string]string{}

	if width := len(t.Rows[0].Cells); width == 2 {
		for i, row := range t.Rows {
			if len(row.Cells) != 2 {
				return nil, fmt.Errorf("data table row %d: want 2 cells, got %d", i+1, len(row.Cells))
			}
			if i == 0 && isFieldHeader(row) {
				continue
			}
			fields[strings.TrimSpace(row.Cells[0].Value)] = row.Cells[1].Value
		}
		return fields, nil
	}

	if len(t.Rows) != 2 {
		return nil, fmt.Errorf("data table: want field/value rows or one header and one value row, got %d rows", len(t.Rows))
	}
	for i, h := range t.Rows[0].Cells {
		if i < len(t.Rows[1].Cells) {
			fields[strings.TrimSpace(h.Value)] = t.Rows[1].Cells[i].Value
		}
	}
	return fields, nil
}

func isFieldHeader(row *messages.PickleTableRow) bool {
	return len(row.Cells) == 2 &&
		strings.EqualFold(strings.TrimSpace(row.Cells[0].Value), "field") &&
		strings.EqualFold(strings.TrimSpace(row.Cells[1].Value), "value")
}

package jsengine

import (
	"regexp"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	engine := New()
	defer engine.Close()

	if engine.runtime == nil {
		t.Fatal("expected runtime to be initialized")
	}
}

func TestEval(t *testing.T) {
	engine := New()
	defer engine.Close()

	tests := []struct {
		name     string
		script   string
		expected interface{}
	}{
		{"simple number", "1 + 2", int64(3)},
		{"string concat", "'hello' + ' ' + 'world'", "hello world"},
		{"boolean", "true && false", false},
		{"null coalescing", "null ?? 'default'", "default"},
		{"array length", "[1, 2, 3].length", int64(3)},
		{"object property", "({name: 'test'}).name", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Eval(tt.script)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, result, result)
			}
		})
	}
}

func TestEvalBool(t *testing.T) {
	engine := New()
	defer engine.Close()
	engine.SetVariable("status", "Active")

	ok, err := engine.EvalBool("status === 'Active'")
	if err != nil || !ok {
		t.Errorf("EvalBool = %v, %v", ok, err)
	}
	ok, err = engine.EvalBool("''")
	if err != nil || ok {
		t.Errorf("empty string should be falsy, got %v, %v", ok, err)
	}
}

func TestExpand(t *testing.T) {
	engine := New()
	defer engine.Close()

	engine.SetVariable("name", "Store Audit")
	engine.SetVariable("count", 30)
	engine.SetVariable("empty", nil)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "Activity ${name}", "Activity Store Audit"},
		{"expression", "Count: ${count + 5}", "Count: 35"},
		{"multiple vars", "${name} x ${count}", "Store Audit x 30"},
		{"no vars", "plain text", "plain text"},
		{"nil var", "[${empty}]", "[]"},
		{"nested braces", "${({a: 1}).a}", "1"},
		{"unknown stays", "otp ${missing}", "otp ${missing}"},
		{"unterminated", "broken ${name", "broken ${name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Expand(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestConsoleLog(t *testing.T) {
	engine := New()
	defer engine.Close()

	err := engine.RunScript(`
		console.log("test message", 1);
		console.error("error message");
		console.warn("warning message");
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJSON(t *testing.T) {
	engine := New()
	defer engine.Close()

	result, err := engine.EvalString(`json('{"data":{"token":"abc"}}').data.token`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "abc" {
		t.Errorf("expected abc, got %q", result)
	}

	if _, err := engine.Eval(`json('{broken')`); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestOutput(t *testing.T) {
	engine := New()
	defer engine.Close()

	if err := engine.RunScript(`output.activityName = "Audit " + 7;`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := engine.GetOutput()
	if out["activityName"] != "Audit 7" {
		t.Errorf("expected output.activityName = 'Audit 7', got %v", out["activityName"])
	}
}

func TestRandomHelpers(t *testing.T) {
	engine := New()
	defer engine.Close()

	s, err := engine.EvalString("randomString(8)")
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^[A-Za-z]{8}$`).MatchString(s) {
		t.Errorf("randomString(8) = %q", s)
	}

	d, err := engine.EvalString("randomDigits(10)")
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^[0-9]{10}$`).MatchString(d) {
		t.Errorf("randomDigits(10) = %q", d)
	}

	today, err := engine.EvalString(`today("dd/MM/yyyy")`)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Now().Format("02/01/2006"); today != want {
		t.Errorf("today = %q, want %q", today, want)
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2026, time.March, 7, 14, 5, 9, 0, time.UTC)
	cases := map[string]string{
		"dd/MM/yyyy":          "07/03/2026",
		"yyyy-MM-dd HH:mm:ss": "2026-03-07 14:05:09",
		"dd-MMM-yy":           "07-Mar-26",
	}
	for pattern, want := range cases {
		if got := FormatDate(ts, pattern); got != want {
			t.Errorf("FormatDate(%q) = %q, want %q", pattern, got, want)
		}
	}
}

func TestExtract(t *testing.T) {
	engine := New()
	defer engine.Close()

	body := []byte(`{"status":200,"message":"OK","data":{"token":"t-1","roles":["ADMIN","QA"],"items":[{"name":"Store Audit"}]}}`)

	tests := []struct {
		path string
		want interface{}
	}{
		{"message", "OK"},
		{"$.data.token", "t-1"},
		{"data.roles.length", int64(2)},
		{"data.items[0].name", "Store Audit"},
		{"data.roles.includes('QA')", true},
	}
	for _, tt := range tests {
		got, err := engine.Extract(body, tt.path)
		if err != nil {
			t.Errorf("Extract(%q): %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Extract(%q) = %v (%T), want %v", tt.path, got, got, tt.want)
		}
	}

	if _, err := engine.Extract(body, "data.missing"); err == nil {
		t.Error("expected error for missing field")
	}
	if _, err := engine.Extract([]byte("<html>"), "data"); err == nil {
		t.Error("expected error for non-JSON body")
	}
	if v, _ := engine.Eval("typeof response"); v != "undefined" {
		t.Errorf("response should be unbound after Extract, got %v", v)
	}
}

func TestRunScriptError(t *testing.T) {
	engine := New()
	defer engine.Close()

	if err := engine.RunScript(`throw new Error("boom")`); err == nil {
		t.Error("expected error from script")
	}
}

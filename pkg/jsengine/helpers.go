package jsengine

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const (
	letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
)

// setupRandom registers the test-data helpers:
//
//	randomString(8)     -> "kQwErTyU"
//	randomDigits(10)    -> "9876012345"
//	today("dd/MM/yyyy") -> "19/10/2026"
func (e *Engine) setupRandom() {
	e.runtime.Set("randomString", func(n int) string { return RandomString(n) })
	e.runtime.Set("randomDigits", func(n int) string { return RandomDigits(n) })
	e.runtime.Set("today", func(call goja.FunctionCall) goja.Value {
		pattern := "yyyy-MM-dd"
		if len(call.Arguments) > 0 && !goja.IsUndefined(call.Arguments[0]) {
			pattern = call.Arguments[0].String()
		}
		return e.runtime.ToValue(FormatDate(time.Now(), pattern))
	})
}

func randomFrom(alphabet string, n int) string {
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			idx = big.NewInt(int64(time.Now().UnixNano() % int64(len(alphabet))))
		}
		sb.WriteByte(alphabet[idx.Int64()])
	}
	return sb.String()
}

// RandomString returns n random ASCII letters.
func RandomString(n int) string { return randomFrom(letters, n) }

// RandomDigits returns n random decimal digits.
func RandomDigits(n int) string { return randomFrom(digits, n) }

// Date patterns as written by testers (dd/MM/yyyy) mapped to Go layouts.
// Longer tokens come first so "yyyy" is not read as two "yy".
var datePattern = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MMMM", "January",
	"MMM", "Jan",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"hh", "03",
	"mm", "04",
	"ss", "05",
	"a", "PM",
)

// FormatDate formats t with a dd/MM/yyyy style pattern.
func FormatDate(t time.Time, pattern string) string {
	return t.Format(datePattern.Replace(pattern))
}

// Extract evaluates path against a JSON document, e.g. "data.token" or
// "data.items[0].name" or "data.items.length". The document is bound to
// the variable "response" for the duration of the call.
func (e *Engine) Extract(body []byte, path string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}

	expr := "response"
	path = strings.TrimSpace(path)
	switch {
	case path == "" || path == "$":
	case strings.HasPrefix(path, "$."):
		expr += path[1:]
	case strings.HasPrefix(path, "["):
		expr += path
	default:
		expr += "." + path
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.Set("response", doc)
	defer e.runtime.Set("response", goja.Undefined())

	v, err := e.runtime.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", path, err)
	}
	if v == nil || goja.IsUndefined(v) {
		return nil, fmt.Errorf("field %q not present in response", path)
	}
	return v.Export(), nil
}

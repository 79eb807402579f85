package render

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

// Funcs returns the built-in template function map.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"parseMoney": ParseMoney,
		"money":      Money,
		"sumMoney":   SumMoney,
		"latex":      EscapeLaTeX,
		"upper":      func(v any) string { return strings.ToUpper(toString(v)) },
		"lower":      func(v any) string { return strings.ToLower(toString(v)) },
		"join":       join,
		"default":    defaultValue,
		"get":        get,
	}
}

var nonNumeric = regexp.MustCompile(`[^\d,.\-]`)

// ParseMoney converts a loosely formatted amount into a number. Both
// "1.234,56" and "1,234.56" yield 1234.56: when both separators appear the
// later one is the decimal mark; a lone comma is decimal only when exactly
// two digits follow it. Anything unparseable is 0.
func ParseMoney(value any) float64 {
	s := nonNumeric.ReplaceAllString(strings.TrimSpace(toString(value)), "")
	if s == "" {
		return 0
	}
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		}
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts[len(parts)-1]) == 2 {
			s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// Money formats an amount with two decimals and comma thousands separators.
// Strings are parsed with ParseMoney first.
func Money(value any) string {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		f = ParseMoney(v)
	}
	neg := f < 0
	cents := int64(math.Round(math.Abs(f) * 100))
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	if neg && cents != 0 {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	fmt.Fprintf(&b, ".%02d", cents%100)
	return b.String()
}

// SumMoney adds ParseMoney(item[key]) over a list of objects.
func SumMoney(items any, key string) float64 {
	var total float64
	for _, item := range toSlice(items) {
		if m, ok := item.(map[string]any); ok {
			total += ParseMoney(m[key])
		}
	}
	return total
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// EscapeLaTeX escapes the characters LaTeX treats specially.
func EscapeLaTeX(value any) string {
	return latexEscaper.Replace(toString(value))
}

func join(sep string, items any) string {
	list := toSlice(items)
	parts := make([]string, 0, len(list))
	for _, item := range list {
		parts = append(parts, toString(item))
	}
	return strings.Join(parts, sep)
}

func defaultValue(fallback, value any) any {
	if empty(value) {
		return fallback
	}
	return value
}

// get looks a key up without failing on missing entries.
func get(m any, key string) any {
	switch v := m.(type) {
	case map[string]any:
		return v[key]
	case map[string]string:
		if s, ok := v[key]; ok {
			return s
		}
	}
	return nil
}

func empty(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func toSlice(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

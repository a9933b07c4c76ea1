// Package validate provides struct-tag validation.
//
// Supported rules (comma-separated in the `validate` tag):
//
//	required            field must not be zero/empty
//	nullable            if empty, skip all remaining rules for this field
//	email               valid email address
//	uuid                valid UUID
//	numeric             any number
//	min=N               string: min char length | number: min value
//	max=N               string: max char length | number: max value
//	gt=N                number > N
//	gte=N               number >= N
//	in=a,b,c            value must be one of the listed items
//
// Nested structs and slices of structs are validated recursively; their
// error keys carry the path, e.g. "items.0.quantity".
//
// Example:
//
//	type Input struct {
//	    OrderID  string `json:"orderId"  validate:"required,uuid"`
//	    Provider string `json:"provider" validate:"nullable,in=stripe,bkash"`
//	}
package validate

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	uuidRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Struct validates all exported fields of v that carry a `validate` tag,
// recursing into nested structs and slices of structs so tags on embedded
// inputs (line items, addresses) are enforced too. Nested field names are
// prefixed with their path, e.g. `items.0.quantity`.
// Returns a map of fieldName → error message; empty map means no errors.
func Struct(v interface{}) map[string]string {
	errs := make(map[string]string)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return errs
	}
	walkStruct(rv, "", errs)
	return errs
}

func walkStruct(rv reflect.Value, prefix string, errs map[string]string) {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		value := rv.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}

		name := jsonFieldName(field)
		if prefix != "" {
			name = prefix + "." + name
		}

		if tag := field.Tag.Get("validate"); tag != "" {
			rules := splitRules(tag)

			if hasRule(rules, "nullable") && isEmpty(value) {
				continue
			}

			for _, rule := range rules {
				if rule == "nullable" {
					continue
				}
				if msg := applyRule(rule, name, value); msg != "" {
					errs[name] = msg
					break // first failing rule per field
				}
			}
		}

		walkNested(value, name, errs)
	}
}

// walkNested descends into struct fields, pointers to structs, and slices
// of structs. Structs without exported validate-tagged fields fall through
// with no effect.
func walkNested(v reflect.Value, name string, errs map[string]string) {
	switch v.Kind() {
	case reflect.Ptr:
		if !v.IsNil() && v.Elem().Kind() == reflect.Struct {
			walkStruct(v.Elem(), name, errs)
		}
	case reflect.Struct:
		walkStruct(v, name, errs)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			el := v.Index(i)
			if el.Kind() == reflect.Ptr {
				if el.IsNil() || el.Elem().Kind() != reflect.Struct {
					continue
				}
				el = el.Elem()
			}
			if el.Kind() == reflect.Struct {
				walkStruct(el, fmt.Sprintf("%s.%d", name, i), errs)
			}
		}
	}
}

// HasErrors returns true when the errs map is non-empty.
func HasErrors(errs map[string]string) bool { return len(errs) > 0 }

func applyRule(rule, field string, v reflect.Value) string {
	raw := fmt.Sprintf("%v", v.Interface())
	key, param, _ := strings.Cut(rule, "=")

	switch key {
	case "required":
		if isEmpty(v) {
			return fmt.Sprintf("The %s field is required.", field)
		}
	case "email":
		if !emailRe.MatchString(raw) {
			return fmt.Sprintf("The %s field must be a valid email address.", field)
		}
	case "uuid":
		if !uuidRe.MatchString(raw) {
			return fmt.Sprintf("The %s field must be a valid UUID.", field)
		}
	case "numeric":
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Sprintf("The %s field must be a number.", field)
		}
	case "min":
		if failsBound(v, raw, param, func(have, want float64) bool { return have < want }) {
			return fmt.Sprintf("The %s field must be at least %s.", field, param)
		}
	case "max":
		if failsBound(v, raw, param, func(have, want float64) bool { return have > want }) {
			return fmt.Sprintf("The %s field may not be greater than %s.", field, param)
		}
	case "gt":
		if failsNumeric(raw, param, func(have, want float64) bool { return have <= want }) {
			return fmt.Sprintf("The %s field must be greater than %s.", field, param)
		}
	case "gte":
		if failsNumeric(raw, param, func(have, want float64) bool { return have < want }) {
			return fmt.Sprintf("The %s field must be at least %s.", field, param)
		}
	case "in":
		allowed := strings.Split(param, ",")
		for _, a := range allowed {
			if raw == a {
				return ""
			}
		}
		return fmt.Sprintf("The %s field must be one of: %s.", field, param)
	}

	return ""
}

// failsBound compares by string length for strings and by value for numbers.
func failsBound(v reflect.Value, raw, param string, cmp func(have, want float64) bool) bool {
	want, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return false
	}

	switch v.Kind() {
	case reflect.String:
		return cmp(float64(len([]rune(v.String()))), want)
	default:
		have, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return true
		}
		return cmp(have, want)
	}
}

func failsNumeric(raw, param string, cmp func(have, want float64) bool) bool {
	want, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return false
	}
	have, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return true
	}
	return cmp(have, want)
}

func splitRules(tag string) []string {
	parts := strings.Split(tag, ",")
	rules := make([]string, 0, len(parts))

	// `in=a,b,c` is split back together: a bare segment after an `=` rule
	// belongs to that rule's parameter list.
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(rules) > 0 && strings.Contains(rules[len(rules)-1], "=") && !strings.Contains(p, "=") && !isRuleName(p) {
			rules[len(rules)-1] += "," + p
			continue
		}
		rules = append(rules, p)
	}
	return rules
}

func isRuleName(s string) bool {
	switch s {
	case "required", "nullable", "email", "uuid", "numeric":
		return true
	}
	return false
}

func hasRule(rules []string, name string) bool {
	for _, r := range rules {
		if r == name {
			return true
		}
	}
	return false
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}

func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

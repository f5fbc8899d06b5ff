package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Violations maps a field name to the messages of the rules it broke.
type Violations struct {
	Errors map[string][]string
}

func (violations Violations) MarshalJSON() ([]byte, error) {
	errs := violations.Errors
	if errs == nil {
		errs = map[string][]string{}
	}
	return json.Marshal(map[string]map[string][]string{
		"errors": errs,
	})
}

func (violations Violations) IsEmpty() bool {
	return len(violations.Errors) == 0
}

// Error lists the violations as "field: message" pairs in field order, so
// Violations can travel as an error.
func (violations Violations) Error() string {
	fields := make([]string, 0, len(violations.Errors))
	for field := range violations.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var sb strings.Builder
	for i, field := range fields {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(field)
		sb.WriteString(": ")
		sb.WriteString(strings.Join(violations.Errors[field], ", "))
	}
	return sb.String()
}

func (violations *Violations) add(field, message string) {
	if violations.Errors == nil {
		violations.Errors = make(map[string][]string)
	}
	violations.Errors[field] = append(violations.Errors[field], message)
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func instance() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON name, which is what clients sent.
		structValidator.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return structValidator
}

// Struct checks the `validate` tags of v. Values that are not structs, or
// pointers to structs, have nothing to check and pass.
func Struct(v any) Violations {
	var violations Violations

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return violations
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return violations
	}

	err := instance().Struct(rv.Interface())
	if err == nil {
		return violations
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		violations.add("", err.Error())
		return violations
	}
	for _, fe := range fieldErrors {
		violations.add(fieldPath(fe), message(fe))
	}
	return violations
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// ValidateMap checks loosely typed input, such as query parameters, against
// per-field rules. Supported rules are "required", "integer", "min:N" and
// "max:N"; min and max compare numbers by value and strings by length.
func ValidateMap(data map[string]any, rules map[string][]string) Violations {
	var violations Violations

	for attributeName, attributeRules := range rules {
		attributeValue, present := data[attributeName]
		for _, attributeRule := range attributeRules {
			if !present && attributeRule != "required" {
				continue
			}
			if err := validate(attributeRule, attributeName, attributeValue); err != nil {
				violations.add(attributeName, err.Error())
			}
		}
	}

	for attributeName := range data {
		if _, ok := rules[attributeName]; !ok {
			violations.add(attributeName, fmt.Sprintf("validation: no rules found :: %s", attributeName))
		}
	}

	return violations
}

func validate(rule string, name string, value any) error {
	rule, param, _ := strings.Cut(rule, ":")

	switch rule {
	case "required":
		err := fmt.Errorf("%s is required", name)
		switch v := value.(type) {
		case nil:
			return err
		case string:
			if v == "" {
				return err
			}
		case []any:
			if len(v) == 0 {
				return err
			}
		}
	case "integer":
		if s, ok := value.(string); ok && !ValidateInteger(s) {
			return fmt.Errorf("%s must be an integer", name)
		}
	case "min", "max":
		limit, err := strconv.Atoi(param)
		if err != nil {
			return fmt.Errorf("invalid validation rule :: %s:%s", rule, param)
		}
		size, numeric := measure(value)
		if rule == "min" && size < limit {
			if numeric {
				return fmt.Errorf("%s must be at least %d", name, limit)
			}
			return fmt.Errorf("%s must be at least %d characters", name, limit)
		}
		if rule == "max" && size > limit {
			if numeric {
				return fmt.Errorf("%s must be at most %d", name, limit)
			}
			return fmt.Errorf("%s must be at most %d characters", name, limit)
		}
	default:
		return fmt.Errorf("invalid validation rule :: %s", rule)
	}

	return nil
}

// measure returns the value compared by min and max rules.
func measure(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
		return len(v), false
	case []any:
		return len(v), false
	}
	return 0, false
}

func ValidateInteger(value string) bool {
	_, err := strconv.Atoi(value)
	return err == nil
}

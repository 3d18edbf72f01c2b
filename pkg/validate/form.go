package validate

import (
	"errors"
	"regexp"
)

// UsernamePattern is the allowed username shape: 3 to 20 letters, digits
// or underscores.
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// Username reports whether s is an allowed username.
func Username(s string) bool {
	return UsernamePattern.MatchString(s)
}

// Result is the outcome of validating one field.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// FormResult is the outcome of validating a form.
type FormResult struct {
	Valid  bool              `json:"valid"`
	Fields map[string]Result `json:"fields"`
}

// Field runs rules against value in order. fields is passed to rules that
// compare against other form values and may be nil.
func Field(value string, fields map[string]string, rules ...Validator) Result {
	errs := []string{}
	for _, rule := range rules {
		if _, ok := rule.(required); ok {
			if err := rule.Validate(value, fields); err != nil {
				errs = append(errs, message(err))
				break
			}
			continue
		}
		if isBlank(value) {
			continue
		}
		if err := rule.Validate(value, fields); err != nil {
			errs = append(errs, message(err))
		}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Form validates every field that has rules and is present in values.
// Fields missing from values are skipped.
func Form(values map[string]string, rules map[string][]Validator) FormResult {
	out := FormResult{Valid: true, Fields: make(map[string]Result, len(rules))}
	for name, fieldRules := range rules {
		value, ok := values[name]
		if !ok {
			continue
		}
		res := Field(value, values, fieldRules...)
		out.Fields[name] = res
		if !res.Valid {
			out.Valid = false
		}
	}
	return out
}

// Err returns the first failure of r as a ValidationError, or nil.
func (r FormResult) Err() error {
	var errs []error
	for name, f := range r.Fields {
		if !f.Valid {
			errs = append(errs, ValidationError{Field: name, Message: f.Errors[0]})
		}
	}
	return errors.Join(errs...)
}

func message(err error) string {
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

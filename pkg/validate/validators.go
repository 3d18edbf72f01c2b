package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validator is a single validation rule.
type Validator interface {
	// Validate checks value. fields holds every value of the form, for
	// rules that compare fields. Returns nil if valid.
	Validate(value string, fields map[string]string) error
}

// ValidatorFunc is a function that implements Validator.
type ValidatorFunc func(value string, fields map[string]string) error

func (f ValidatorFunc) Validate(value string, fields map[string]string) error {
	return f(value, fields)
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// required marks the Required rule, which runs on blank values and stops
// the field when it fails.
type required struct {
	msg string
}

func (r required) Validate(value string, _ map[string]string) error {
	if isBlank(value) {
		return ValidationError{Message: r.msg}
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Required validates that the value is not blank.
func Required(msg string) Validator {
	if msg == "" {
		msg = "此字段为必填项"
	}
	return required{msg: msg}
}

// emailPattern requires one @ and a dot in the domain, without whitespace.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email validates that the value looks like an email address.
func Email(msg string) Validator {
	if msg == "" {
		msg = "请输入有效的邮箱地址"
	}
	return ValidatorFunc(func(value string, _ map[string]string) error {
		if !emailPattern.MatchString(value) {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// MinLength validates that a string has at least n characters.
func MinLength(n int, msg string) Validator {
	if msg == "" {
		msg = fmt.Sprintf("长度不能少于%d个字符", n)
	}
	return ValidatorFunc(func(value string, _ map[string]string) error {
		if utf8.RuneCountInString(value) < n {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// MaxLength validates that a string has at most n characters.
func MaxLength(n int, msg string) Validator {
	if msg == "" {
		msg = fmt.Sprintf("长度不能超过%d个字符", n)
	}
	return ValidatorFunc(func(value string, _ map[string]string) error {
		if utf8.RuneCountInString(value) > n {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// Pattern validates that the value matches re.
func Pattern(re *regexp.Regexp, msg string) Validator {
	if msg == "" {
		msg = "格式不正确"
	}
	return ValidatorFunc(func(value string, _ map[string]string) error {
		if !re.MatchString(value) {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// SameAs validates that the value equals the form's other field.
func SameAs(field, msg string) Validator {
	if msg == "" {
		msg = "两次输入的值不一致"
	}
	return ValidatorFunc(func(value string, fields map[string]string) error {
		other, ok := fields[field]
		if !ok || other != value {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

// Custom validates with fn.
func Custom(fn func(value string) bool, msg string) Validator {
	if msg == "" {
		msg = "输入值不符合要求"
	}
	return ValidatorFunc(func(value string, _ map[string]string) error {
		if !fn(value) {
			return ValidationError{Message: msg}
		}
		return nil
	})
}

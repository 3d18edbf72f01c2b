package validate

import (
	"regexp"
	"unicode/utf8"
)

var (
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`\d`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// PasswordChecks lists which strength criteria a password meets.
type PasswordChecks struct {
	Length    bool `json:"length"`
	Uppercase bool `json:"uppercase"`
	Lowercase bool `json:"lowercase"`
	Number    bool `json:"number"`
	Special   bool `json:"special"`
}

// Strength is the outcome of PasswordStrength.
type Strength struct {
	Valid  bool           `json:"valid"`
	Score  int            `json:"strength"`
	Checks PasswordChecks `json:"checks"`
}

// PasswordStrength scores a password by how many of five criteria it meets:
// at least 8 characters, an upper-case letter, a lower-case letter, a digit
// and a symbol. Four or more is valid.
func PasswordStrength(password string) Strength {
	c := PasswordChecks{
		Length:    utf8.RuneCountInString(password) >= 8,
		Uppercase: upperPattern.MatchString(password),
		Lowercase: lowerPattern.MatchString(password),
		Number:    digitPattern.MatchString(password),
		Special:   specialPattern.MatchString(password),
	}
	score := 0
	for _, ok := range []bool{c.Length, c.Uppercase, c.Lowercase, c.Number, c.Special} {
		if ok {
			score++
		}
	}
	return Strength{Valid: score >= 4, Score: score, Checks: c}
}

// Level names the strength for display: "strong" at 4 or more,
// "medium" at 3, otherwise "weak".
func (s Strength) Level() string {
	switch {
	case s.Score >= 4:
		return "strong"
	case s.Score >= 3:
		return "medium"
	}
	return "weak"
}

// Label is Level in Chinese.
func (s Strength) Label() string {
	switch s.Level() {
	case "strong":
		return "强"
	case "medium":
		return "中等"
	}
	return "弱"
}

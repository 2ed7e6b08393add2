package session

import (
	"regexp"
	"sort"
	"strings"
)

// Field validation messages shown next to the login and register forms.
const (
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Enter a valid email"
	MsgPasswordShort    = "Password must be at least 6 characters"
	MsgUsernameShort    = "Username must be at least 2 characters"
	MsgPasswordMismatch = "Passwords do not match"
)

const (
	minPasswordLen = 6
	minUsernameLen = 2
)

var emailPattern = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)

// ValidationErrors maps a form field to its message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// ValidateLogin checks the login form. It returns ValidationErrors or nil.
func ValidateLogin(email, password string) error {
	v := ValidationErrors{}
	checkEmail(v, email)
	checkPassword(v, password)
	return v.orNil()
}

// ValidateRegistration checks the register form. It returns
// ValidationErrors or nil.
func ValidateRegistration(username, email, password, confirm string) error {
	v := ValidationErrors{}
	if len([]rune(strings.TrimSpace(username))) < minUsernameLen {
		v["username"] = MsgUsernameShort
	}
	checkEmail(v, email)
	checkPassword(v, password)
	if confirm != password {
		v["confirm"] = MsgPasswordMismatch
	}
	return v.orNil()
}

func checkEmail(v ValidationErrors, email string) {
	switch {
	case strings.TrimSpace(email) == "":
		v["email"] = MsgEmailRequired
	case !emailPattern.MatchString(email):
		v["email"] = MsgEmailInvalid
	}
}

func checkPassword(v ValidationErrors, password string) {
	if len([]rune(strings.TrimSpace(password))) < minPasswordLen {
		v["password"] = MsgPasswordShort
	}
}

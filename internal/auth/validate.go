package auth

import (
	"net/mail"
	"strings"
)

// Password length limits. bcrypt refuses passwords longer than 72 bytes.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

// FieldErrors maps a form field to its validation message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, field := range []string{"name", "email", "password"} {
		if msg, ok := fe[field]; ok {
			parts = append(parts, field+": "+msg)
		}
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// Signup is the account form used for signup and profile edits.
type Signup struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims whitespace and lower-cases the e-mail.
func (s Signup) Normalize() Signup {
	return Signup{
		Name:     strings.TrimSpace(s.Name),
		Email:    NormalizeEmail(s.Email),
		Password: s.Password,
	}
}

// Validate returns FieldErrors when the form is incomplete.
func (s Signup) Validate() error {
	fe := FieldErrors{}
	if strings.TrimSpace(s.Name) == "" {
		fe["name"] = "This field is required."
	}
	checkEmail(fe, s.Email)
	checkPassword(fe, s.Password)
	if len(fe) > 0 {
		return fe
	}
	return nil
}

// Login is the credentials form.
type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate returns FieldErrors when the form is incomplete.
func (l Login) Validate() error {
	fe := FieldErrors{}
	checkEmail(fe, l.Email)
	checkPassword(fe, l.Password)
	if len(fe) > 0 {
		return fe
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(fe FieldErrors, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		fe["email"] = "This field is required."
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		fe["email"] = "Invalid email address."
	}
}

func checkPassword(fe FieldErrors, password string) {
	switch {
	case len(password) < MinPasswordLength:
		fe["password"] = "Field must be at least 6 characters long."
	case len(password) > MaxPasswordBytes:
		fe["password"] = "Field must be at most 72 bytes long."
	}
}

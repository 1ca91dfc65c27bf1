package form_mailer

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Submission is one contact-form post. Fields are trimmed when parsed.
// Honeypot carries the hidden anti-bot field and is never validated.
type Submission struct {
	Name     string `validate:"required,min=2"`
	Email    string `validate:"required,email,plain_email"`
	Subject  string `validate:"required,min=3"`
	Message  string `validate:"required,min=10"`
	Honeypot string `validate:"-"`
}

// ValidationResult lists violations in check order. Empty means valid.
type ValidationResult struct {
	Errors []string
}

func (v ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

// fieldChecks fixes the order in which violations are reported.
var fieldChecks = []struct {
	field   string
	message string
}{
	{"Name", "Name is required and must be at least 2 characters."},
	{"Email", "A valid email address is required."},
	{"Subject", "Subject is required and must be at least 3 characters."},
	{"Message", "Message is required and must be at least 10 characters."},
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("plain_email", PlainEmail)
	return &Validator{validate: v}
}

// PlainEmail rejects addresses that SanitizeEmail would alter, such as
// non-ASCII or quoted local parts, so the Reply-To always names the mailbox
// the submitter typed.
func PlainEmail(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	return SanitizeEmail(val) == val
}

// Validate runs every field check; failures accumulate rather than stop at
// the first one.
func (v *Validator) Validate(s Submission) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationResult{Errors: []string{msgInvalidForm}}
	}

	failed := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		failed[fe.StructField()] = true
	}

	var res ValidationResult
	for _, c := range fieldChecks {
		if failed[c.field] {
			res.Errors = append(res.Errors, c.message)
		}
	}
	return res
}

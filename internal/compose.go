package form_mailer

import (
	"fmt"
	"html"
	"net/mail"
	"strings"
	"time"

	"github.com/jordan-wright/email"
)

const (
	subjectPrefix   = "[Contact Form] "
	timestampLayout = "2006-01-02 15:04:05"
)

// Sanitize escapes markup in the free-text fields and strips characters an
// address cannot contain from the email. The plain-text mail body does not
// need the escaping; it protects whatever later renders it.
func Sanitize(s Submission) Submission {
	return Submission{
		Name:    html.EscapeString(s.Name),
		Email:   SanitizeEmail(s.Email),
		Subject: html.EscapeString(s.Subject),
		Message: html.EscapeString(s.Message),
	}
}

// SanitizeEmail keeps letters, digits and !#$%&'*+-=?^_`{|}~@.[] and drops
// everything else. A syntactically valid address is returned unchanged.
func SanitizeEmail(addr string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("!#$%&'*+-=?^_`{|}~@.[]", r):
			return r
		default:
			return -1
		}
	}, addr)
}

// Envelope is the request context embedded in the outgoing message.
type Envelope struct {
	SubmittedAt time.Time
	ClientIP    string
	UserAgent   string
}

// Composer turns a validated submission into the notification mail.
type Composer struct {
	SiteName string
	From     string
	To       string
}

func (c Composer) Compose(s Submission, env Envelope) *email.Email {
	clean := Sanitize(s)

	var b strings.Builder
	fmt.Fprintf(&b, "New contact form submission from %s\n\n", c.SiteName)
	fmt.Fprintf(&b, "Name: %s\n", clean.Name)
	fmt.Fprintf(&b, "Email: %s\n", clean.Email)
	fmt.Fprintf(&b, "Subject: %s\n\n", clean.Subject)
	fmt.Fprintf(&b, "Message:\n%s\n\n", clean.Message)
	b.WriteString("---\n")
	fmt.Fprintf(&b, "Submitted: %s\n", env.SubmittedAt.UTC().Format(timestampLayout))
	fmt.Fprintf(&b, "IP Address: %s\n", env.ClientIP)
	fmt.Fprintf(&b, "User Agent: %s\n", env.UserAgent)

	e := email.NewEmail()
	e.From = (&mail.Address{Name: c.SiteName, Address: c.From}).String()
	e.To = []string{c.To}
	e.ReplyTo = []string{(&mail.Address{Name: s.Name, Address: clean.Email}).String()}
	e.Subject = subjectPrefix + clean.Subject
	e.Text = []byte(b.String())
	return e
}

package form_mailer

import (
	"fmt"
	"net/http"
	"strings"
)

// Kind tags the single result a submission request resolves to.
type Kind int

const (
	KindAccepted Kind = iota
	KindInvalidMethod
	KindInvalidOrigin
	KindRateLimited
	KindValidationFailed
	KindSpamDetected
	KindDeliveryFailed
)

func (k Kind) String() string {
	switch k {
	case KindAccepted:
		return "accepted"
	case KindInvalidMethod:
		return "invalid_method"
	case KindInvalidOrigin:
		return "invalid_origin"
	case KindRateLimited:
		return "rate_limited"
	case KindValidationFailed:
		return "validation_failed"
	case KindSpamDetected:
		return "spam_detected"
	case KindDeliveryFailed:
		return "delivery_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	msgAccepted       = "Thank you for your message! I will get back to you soon."
	msgInvalidMethod  = "Method not allowed"
	msgInvalidOrigin  = "Invalid request origin"
	msgSpam           = "Your message appears to contain spam content."
	msgDeliveryFailed = "Failed to send message. Please try again later."
	msgInvalidForm    = "Invalid form submission."
)

// Outcome is the result of one pass through the submission pipeline.
// RetryAfter is set only for KindRateLimited, Errors only for
// KindValidationFailed. Cause is kept for server-side logging and never
// rendered.
type Outcome struct {
	Kind       Kind
	RetryAfter int
	Errors     []string
	Cause      error
}

func Accepted() Outcome      { return Outcome{Kind: KindAccepted} }
func InvalidMethod() Outcome { return Outcome{Kind: KindInvalidMethod} }
func InvalidOrigin() Outcome { return Outcome{Kind: KindInvalidOrigin} }
func SpamDetected() Outcome  { return Outcome{Kind: KindSpamDetected} }

func RateLimited(retryAfter int) Outcome {
	return Outcome{Kind: KindRateLimited, RetryAfter: retryAfter}
}

func ValidationFailed(errs []string) Outcome {
	return Outcome{Kind: KindValidationFailed, Errors: errs}
}

func DeliveryFailed(cause error) Outcome {
	return Outcome{Kind: KindDeliveryFailed, Cause: cause}
}

func (o Outcome) Status() int {
	switch o.Kind {
	case KindAccepted:
		return http.StatusOK
	case KindInvalidMethod:
		return http.StatusMethodNotAllowed
	case KindInvalidOrigin:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidationFailed, KindSpamDetected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message is safe to show to the end user as-is.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindAccepted:
		return msgAccepted
	case KindInvalidMethod:
		return msgInvalidMethod
	case KindInvalidOrigin:
		return msgInvalidOrigin
	case KindRateLimited:
		return fmt.Sprintf("Please wait %d seconds before submitting again.", o.RetryAfter)
	case KindValidationFailed:
		return strings.Join(o.Errors, " ")
	case KindSpamDetected:
		return msgSpam
	default:
		return msgDeliveryFailed
	}
}

// Response is the JSON body of every submission response. Code and
// RetryAfter let the client pick a localized text.
type Response struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (o Outcome) Response() Response {
	return Response{
		Success:    o.Kind == KindAccepted,
		Message:    o.Message(),
		Code:       o.Kind.String(),
		RetryAfter: o.RetryAfter,
	}
}

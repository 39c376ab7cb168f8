package processor

import (
	"net/mail"

	"github.com/sendloop/courier"
	"github.com/sendloop/courier/job"
)

// Validate checks an email payload for deliverability. A nil error
// means the job may proceed to the rate limiter and provider; any
// failure is terminal for the job.
func Validate(email *job.Email) error {
	if email == nil {
		return &courier.ValidationError{Field: "email", Reason: "must not be nil"}
	}
	if !addressValid(email.Recipient) {
		return &courier.ValidationError{Field: "recipient", Reason: "must be a valid email address"}
	}
	if !addressValid(email.Sender) {
		return &courier.ValidationError{Field: "sender", Reason: "must be a valid email address"}
	}
	if email.Subject == "" {
		return &courier.ValidationError{Field: "subject", Reason: "must not be empty"}
	}
	if email.HTML == "" && email.Text == "" {
		return &courier.ValidationError{Field: "body", Reason: "requires html or text content"}
	}
	if email.AccountID == "" {
		return &courier.ValidationError{Field: "account_id", Reason: "must not be empty"}
	}
	if email.AccountAgeDays < 0 {
		return &courier.ValidationError{Field: "account_age_days", Reason: "must not be negative"}
	}
	if email.Size() > job.MaxSize {
		return &courier.ValidationError{Field: "size", Reason: "exceeds 10MB limit"}
	}
	return nil
}

func addressValid(addr string) bool {
	if addr == "" {
		return false
	}
	_, err := mail.ParseAddress(addr)
	return err == nil
}

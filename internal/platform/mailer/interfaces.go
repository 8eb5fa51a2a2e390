package mailer

// Service is the outbound notification channel. Delivery failures are never
// allowed to roll back the state change that triggered them; callers log and
// move on, and the user can ask for a resend.
type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
	SendOTP(toEmail, toName, code, purpose string) error
	SendInvite(toEmail, toName, hostName, when, location, purpose string) error
	SendAppointmentStatus(toEmail, toName, status, reason string) error
}

package mailer

import (
	"github.com/Virang41/visiting/pkg/logger"
)

// DevMailer prints mail to the logs instead of sending it. Selected when
// EMAIL_DEV_MODE is set so OTP flows are usable without a mail provider.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("[DEV MAIL]", "to", toEmail, "name", toName, "subject", subject, "text", text)
	return "dev", nil
}

func (d *DevMailer) SendOTP(toEmail, toName, code, purpose string) error {
	logger.Info("[DEV MAIL] one-time code", "to", toEmail, "name", toName, "code", code, "purpose", purpose)
	return nil
}

func (d *DevMailer) SendInvite(toEmail, toName, hostName, when, location, purpose string) error {
	logger.Info("[DEV MAIL] visit invite", "to", toEmail, "host", hostName, "when", when, "where", location)
	return nil
}

func (d *DevMailer) SendAppointmentStatus(toEmail, toName, status, reason string) error {
	logger.Info("[DEV MAIL] appointment status", "to", toEmail, "status", status, "reason", reason)
	return nil
}

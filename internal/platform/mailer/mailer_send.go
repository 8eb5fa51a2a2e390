package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type Mailer struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	Enabled bool
}

func NewMailer(apiKey, fromName, fromEmail string) *Mailer {
	m := &Mailer{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *Mailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	if !m.Enabled {
		return "", errors.New("mailer disabled (missing MAILERSEND_API_KEY or MAILER_FROM)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)
	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	// MailerSend uses X-Message-Id
	return res.Header.Get("X-Message-Id"), nil
}

func (m *Mailer) SendOTP(toEmail, toName, code, purpose string) error {
	subject := "Your verification code"
	if purpose == "reset" {
		subject = "Your password reset code"
	}
	text := fmt.Sprintf("Hi %s, your one-time code is %s. It expires in 10 minutes.", toName, code)
	html := fmt.Sprintf(`<p>Hi %s,</p><p>Your one-time code is <b>%s</b>.</p><p>It expires in 10 minutes.</p>`, toName, code)
	_, err := m.Send(toEmail, toName, subject, text, html)
	return err
}

func (m *Mailer) SendInvite(toEmail, toName, hostName, when, location, purpose string) error {
	subject := "You have been invited to visit"
	text := fmt.Sprintf("Hi %s, %s has invited you to visit. When: %s. Where: %s. Purpose: %s.",
		toName, hostName, when, location, purpose)
	html := fmt.Sprintf(`<p>Hi %s,</p><p><b>%s</b> has invited you to visit.</p>
        <p>When: %s<br>Where: %s<br>Purpose: %s</p>`, toName, hostName, when, location, purpose)
	_, err := m.Send(toEmail, toName, subject, text, html)
	return err
}

func (m *Mailer) SendAppointmentStatus(toEmail, toName, status, reason string) error {
	subject := fmt.Sprintf("Your appointment was %s", status)
	text := fmt.Sprintf("Hi %s, your appointment was %s.", toName, status)
	if reason != "" {
		text += " Reason: " + reason
	}
	html := fmt.Sprintf(`<p>Hi %s,</p><p>Your appointment was <b>%s</b>.</p>`, toName, status)
	if reason != "" {
		html += fmt.Sprintf("<p>Reason: %s</p>", reason)
	}
	_, err := m.Send(toEmail, toName, subject, text, html)
	return err
}

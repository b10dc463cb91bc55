package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the mail transport settings for the enforcement
// authority's alert inbox.
type SMTPConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Sender   string `json:"sender" yaml:"sender"`
	Password string `json:"password" yaml:"password"`
	Receiver string `json:"receiver" yaml:"receiver"`
}

// Addr returns the host:port dial address.
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Mailer sends alerts by email over SMTP with STARTTLS and plain auth.
//
// Sending is synchronous from the caller's point of view; the engine
// invokes it from a helper goroutine so the observation loop never waits
// on the mail server.
type Mailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates an SMTP-backed Alerter.
func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

func (m *Mailer) CapacityExceeded(_ context.Context, ev CapacityEvent) error {
	body := fmt.Sprintf(
		"Parking capacity has been exceeded.\n\n"+
			"Maximum capacity : %d\n"+
			"Current vehicles : %d\n"+
			"Vehicle          : %s\n"+
			"Time             : %s\n"+
			"Event            : %s\n",
		ev.Max, ev.Count, ev.Identity.Key(), ev.Time.Format(time.RFC3339), ev.ID,
	)
	return m.mail("Parking Capacity Exceeded Alert", body)
}

func (m *Mailer) IllegalExit(_ context.Context, ev IllegalExitEvent) error {
	body := fmt.Sprintf(
		"A vehicle exited without a matching entry record.\n\n"+
			"Vehicle : %s\n"+
			"Time    : %s\n"+
			"Event   : %s\n",
		ev.Identity.Key(), ev.Time.Format(time.RFC3339), ev.ID,
	)
	return m.mail("Illegal Exit Alert", body)
}

func (m *Mailer) mail(subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.Sender)
	fmt.Fprintf(&msg, "To: %s\r\n", m.cfg.Receiver)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", m.cfg.Sender, m.cfg.Password, m.cfg.Host)
	if err := m.send(m.cfg.Addr(), auth, m.cfg.Sender, []string{m.cfg.Receiver}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send alert mail %q: %w", subject, err)
	}
	return nil
}

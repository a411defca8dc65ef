package config

import (
	"crypto/tls"
	"fmt"
	"log"
	"strconv"
	"strings"

	mail "github.com/go-mail/mail/v2"
)

// Mailer delivers one message to a set of addresses. Implementations do not
// retry; a transport failure propagates to the caller.
type Mailer interface {
	Send(to []string, subject, textBody, htmlBody string, cc []string) error
}

// SMTPMailer sends multipart plain/HTML mail over SMTP with STARTTLS.
type SMTPMailer struct {
	host   string
	port   int
	user   string
	pass   string
	sender string
}

// NewSMTPMailer parses an email server spec of the form
// "connection_type,host,port,username,password[,sender]".
func NewSMTPMailer(emailServer string) (*SMTPMailer, error) {
	parts := strings.Split(emailServer, ",")
	if len(parts) < 5 {
		return nil, fmt.Errorf("invalid email server spec %q", emailServer)
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid email server port %q: %w", parts[2], err)
	}
	m := &SMTPMailer{
		host: parts[1],
		port: port,
		user: parts[3],
		pass: parts[4],
	}
	if len(parts) > 5 {
		m.sender = parts[5]
	} else {
		m.sender = parts[3]
	}
	return m, nil
}

func (s *SMTPMailer) Send(to []string, subject, textBody, htmlBody string, cc []string) error {
	if len(to) == 0 {
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.sender)
	m.SetHeader("To", to...)
	if len(cc) > 0 {
		m.SetHeader("Cc", cc...)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	d := mail.NewDialer(s.host, s.port, s.user, s.pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: s.host}

	return d.DialAndSend(m)
}

// LogMailer logs instead of sending; used when no email server is configured.
type LogMailer struct{}

func (LogMailer) Send(to []string, subject, textBody, htmlBody string, cc []string) error {
	log.Printf("Not sending any email! Subject %q would have gone to %v (cc %v)", subject, to, cc)
	return nil
}

// RedirectMailer rewrites every send to a fixed test recipient list.
type RedirectMailer struct {
	Inner Mailer
	To    []string
}

func (r RedirectMailer) Send(to []string, subject, textBody, htmlBody string, cc []string) error {
	log.Printf("Redirecting email %q from %v to test recipients %v", subject, to, r.To)
	return r.Inner.Send(r.To, subject, textBody, htmlBody, nil)
}

// BuildMailer assembles the mailer chain from configuration.
func BuildMailer(cfg *Config) (Mailer, error) {
	var mailer Mailer
	if cfg.EmailServer == "" {
		log.Println("No email host!")
		mailer = LogMailer{}
	} else {
		smtp, err := NewSMTPMailer(cfg.EmailServer)
		if err != nil {
			return nil, err
		}
		log.Printf("Email host: %s", smtp.host)
		mailer = smtp
	}
	if len(cfg.TestEmails) > 0 {
		mailer = RedirectMailer{Inner: mailer, To: cfg.TestEmails}
	}
	return mailer, nil
}

// Package notifications mails reservation and reproduction updates to
// visitors and customers.
package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Mail names, also used as template names and in metrics.
const (
	MailReservationConfirmed      = "reservation_confirmed"
	MailReservationReady          = "reservation_ready"
	MailReproductionPaymentAccept = "reproduction_payment_accepted"
	MailReproductionPaymentRemind = "reproduction_payment_reminder"
	MailReproductionDelivered     = "reproduction_delivered"
	MailReproductionCancelled     = "reproduction_cancelled"
)

var defaultSubjects = map[string]string{
	MailReservationConfirmed:      "Your reservation for %s has been received",
	MailReservationReady:          "Your requested material for %s is ready",
	MailReproductionPaymentAccept: "Payment received for reproduction order %s",
	MailReproductionPaymentRemind: "Reminder: reproduction order %s awaits payment",
	MailReproductionDelivered:     "Your reproduction order %s is ready for download",
	MailReproductionCancelled:     "Reproduction order %s has been cancelled",
}

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	From     string `yaml:"from" json:"from"`
	FromName string `yaml:"from_name" json:"from_name"`
	TLS      bool   `yaml:"tls" json:"tls"`
}

// Validate checks if the SMTP configuration is valid
func (c *SMTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("smtp port is required")
	}
	if c.From == "" {
		return fmt.Errorf("smtp from address is required")
	}
	return nil
}

// EmailService renders and sends requester mails over SMTP. It implements
// delivery.Notifier.
type EmailService struct {
	config    SMTPConfig
	baseURL   string
	subjects  map[string]string
	templates *template.Template
	logger    zerolog.Logger

	// deliver hands a finished message to the mail server.
	deliver func(addr string, to []string, msg []byte) error
}

// NewEmailService creates a new email service. baseURL is the public address
// used in links; subjects overrides the default subject of a mail by name
// and may contain one %s for the request reference.
func NewEmailService(config SMTPConfig, baseURL string, subjects map[string]string, logger zerolog.Logger) (*EmailService, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid smtp config: %w", err)
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.Format("2 January 2006") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	merged := make(map[string]string, len(defaultSubjects))
	for name, subject := range defaultSubjects {
		merged[name] = subject
	}
	for name, subject := range subjects {
		if _, ok := defaultSubjects[name]; ok && subject != "" {
			merged[name] = subject
		}
	}

	s := &EmailService{
		config:    config,
		baseURL:   baseURL,
		subjects:  merged,
		templates: tmpl,
		logger:    logger.With().Str("component", "email_service").Logger(),
	}
	if config.TLS {
		s.deliver = s.sendTLS
	} else {
		s.deliver = s.sendPlain
	}
	return s, nil
}

// MailData is what every requester mail template receives.
type MailData struct {
	Name        string
	Reference   string
	Date        time.Time
	QueueNo     *int
	Items       []string
	Link        string
	OrderURL    string
	Comment     string
	Institution string
}

func (s *EmailService) reservationData(r *models.Reservation) MailData {
	return MailData{
		Name:        r.VisitorName,
		Reference:   r.ID.String()[:8],
		Date:        r.Date,
		QueueNo:     r.QueueNo,
		Items:       labels(r.Items),
		Comment:     r.Comment,
		Institution: s.config.FromName,
	}
}

func (s *EmailService) reproductionData(r *models.Reproduction) MailData {
	return MailData{
		Name:        r.CustomerName,
		Reference:   r.ID.String()[:8],
		Date:        r.Date,
		Items:       labels(r.Items),
		OrderURL:    s.baseURL + "/api/v1/public/reproductions/" + r.Token,
		Comment:     r.Comment,
		Institution: s.config.FromName,
	}
}

func labels(items []*models.LineItem) []string {
	out := make([]string, 0, len(items))
	for _, li := range items {
		out = append(out, li.String())
	}
	return out
}

// ReservationConfirmed mails the visitor that the reservation was received.
func (s *EmailService) ReservationConfirmed(_ context.Context, r *models.Reservation) error {
	data := s.reservationData(r)
	return s.sendMail(r.VisitorEmail, MailReservationConfirmed, data.Date.Format("2 January 2006"), data)
}

// ReservationReady mails the visitor that the material is waiting at the desk.
func (s *EmailService) ReservationReady(_ context.Context, r *models.Reservation) error {
	data := s.reservationData(r)
	return s.sendMail(r.VisitorEmail, MailReservationReady, data.Date.Format("2 January 2006"), data)
}

// ReproductionPaymentAccepted confirms the payment of a reproduction order.
func (s *EmailService) ReproductionPaymentAccepted(_ context.Context, r *models.Reproduction) error {
	data := s.reproductionData(r)
	return s.sendMail(r.CustomerEmail, MailReproductionPaymentAccept, data.Reference, data)
}

// ReproductionPaymentReminder reminds the customer of an unpaid offer.
func (s *EmailService) ReproductionPaymentReminder(_ context.Context, r *models.Reproduction) error {
	data := s.reproductionData(r)
	return s.sendMail(r.CustomerEmail, MailReproductionPaymentRemind, data.Reference, data)
}

// ReproductionDelivered sends the customer the download link.
func (s *EmailService) ReproductionDelivered(_ context.Context, r *models.Reproduction, downloadURL string) error {
	data := s.reproductionData(r)
	data.Link = downloadURL
	return s.sendMail(r.CustomerEmail, MailReproductionDelivered, data.Reference, data)
}

// ReproductionCancelled tells the customer the order was cancelled.
func (s *EmailService) ReproductionCancelled(_ context.Context, r *models.Reproduction) error {
	data := s.reproductionData(r)
	return s.sendMail(r.CustomerEmail, MailReproductionCancelled, data.Reference, data)
}

func (s *EmailService) sendMail(to, name, ref string, data MailData) error {
	subject := s.subjects[name]
	if strings.Contains(subject, "%s") {
		subject = fmt.Sprintf(subject, ref)
	}
	return s.sendTemplate([]string{to}, subject, name+".html", data)
}

// sendTemplate renders a template and sends the email
func (s *EmailService) sendTemplate(to []string, subject, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("execute template %s: %w", templateName, err)
	}

	return s.send(to, subject, body.String())
}

// send sends an email with the given subject and HTML body
func (s *EmailService) send(to []string, subject, htmlBody string) error {
	s.logger.Debug().
		Strs("to", to).
		Str("subject", subject).
		Msg("sending email")

	msg := s.buildMessage(to, subject, htmlBody)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	if err := s.deliver(addr, to, msg); err != nil {
		s.logger.Error().
			Err(err).
			Strs("to", to).
			Str("subject", subject).
			Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info().
		Strs("to", to).
		Str("subject", subject).
		Msg("email sent successfully")

	return nil
}

// buildMessage constructs the email message with headers
func (s *EmailService) buildMessage(to []string, subject, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to[0]))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	return buf.Bytes()
}

// sendPlain sends email without TLS (for port 25 or trusted networks)
func (s *EmailService) sendPlain(addr string, to []string, msg []byte) error {
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	return smtp.SendMail(addr, auth, s.config.From, to, msg)
}

// sendTLS sends email over implicit TLS (port 465)
func (s *EmailService) sendTLS(addr string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err = client.Mail(s.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("smtp rcpt to %s: %w", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("close message writer: %w", err)
	}

	return client.Quit()
}

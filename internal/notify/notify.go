// Package notify is the delivery side of the escalation contract. It takes
// the ActionRecords a decision emitted, renders the level-appropriate
// message, attempts delivery, and stamps each record with the outcome.
package notify

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/mantleflow/risk-service/internal/config"
	"github.com/mantleflow/risk-service/internal/escalation"
	"github.com/sirupsen/logrus"
)

// SMSSender delivers a short text message. No provider ships with the
// service; the dispatcher leaves SMS actions pending when none is wired.
type SMSSender interface {
	SendSMS(phone, body string) error
}

// Message carries the loan context rendered into notifications.
type Message struct {
	BorrowerName string
	CompanyName  string
	Amount       float64
	Currency     string
	DueDate      time.Time
	DaysOverdue  int
}

func (m Message) displayName() string {
	if m.CompanyName != "" {
		return m.CompanyName
	}
	if m.BorrowerName != "" {
		return m.BorrowerName
	}
	return "Valued Customer"
}

// Dispatcher sends escalation notifications via SMTP
type Dispatcher struct {
	cfg    *config.Config
	sms    SMSSender
	logger *logrus.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(cfg *config.Config, sms SMSSender, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		sms:    sms,
		logger: logger,
	}
}

// Dispatch attempts delivery for every action in the decision and returns
// the records with their final status. Auction listing and liquidation stay
// pending; their execution belongs to the marketplace collaborator.
func (d *Dispatcher) Dispatch(decision *escalation.Decision, msg Message) []escalation.ActionRecord {
	subject, body := Render(decision.NewLevel, msg)

	out := make([]escalation.ActionRecord, 0, len(decision.Actions))
	for _, rec := range decision.Actions {
		switch rec.Kind {
		case escalation.ActionEmail:
			if err := d.sendEmail(rec.Recipient, subject, body); err != nil {
				d.logger.Errorf("Failed to send escalation email to %s: %v", rec.Recipient, err)
				rec.Status = escalation.StatusFailed
			} else {
				rec.Status = escalation.StatusSent
			}
		case escalation.ActionSMS:
			if d.sms == nil {
				d.logger.Warnf("No SMS provider configured, leaving SMS to %s pending", rec.Recipient)
				break
			}
			if err := d.sms.SendSMS(rec.Recipient, subject); err != nil {
				d.logger.Errorf("Failed to send escalation SMS to %s: %v", rec.Recipient, err)
				rec.Status = escalation.StatusFailed
			} else {
				rec.Status = escalation.StatusSent
			}
		default:
			// list_collateral_for_auction / trigger_liquidation are
			// executed downstream; the record just marks them due.
			d.logger.Infof("Action %s queued at level %d", rec.Kind, decision.NewLevel)
		}
		out = append(out, rec)
	}
	return out
}

func (d *Dispatcher) sendEmail(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("no recipient address")
	}

	if !d.cfg.SMTPConfigured() {
		d.logger.Warnf("SMTP not configured, simulating email to %s: %s", to, subject)
		return nil
	}

	e := email.NewEmail()
	e.From = d.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", d.cfg.SMTPHost, d.cfg.SMTPPort)
	auth := smtp.PlainAuth("", d.cfg.SMTPUsername, d.cfg.SMTPPassword, d.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	d.logger.Infof("Email sent to %s: %s", to, subject)
	return nil
}

// Render produces the subject and body for a ladder level. Tone hardens as
// the level rises, mirroring the ladder from reminder to liquidation notice.
func Render(level int, msg Message) (subject, body string) {
	name := msg.displayName()
	due := msg.DueDate.Format("2006-01-02")
	amount := fmt.Sprintf("%.2f %s", msg.Amount, msg.Currency)

	switch level {
	case 1:
		subject = "Payment Reminder - MantleFlow"
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"This is a friendly reminder that your loan payment of %s is due on %s.\n"+
				"Please ensure the payment is made on time.\n",
			name, amount, due,
		)
	case 2:
		subject = "URGENT: Loan Payment Due - MantleFlow"
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"This is an URGENT notice: your loan payment of %s is DUE as of %s.\n"+
				"Please pay immediately to avoid overdue interest.\n",
			name, amount, due,
		)
	case 3:
		subject = fmt.Sprintf("FINAL WARNING: Loan %d days overdue - MantleFlow", msg.DaysOverdue)
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"This is the FINAL WARNING before collection proceedings begin.\n"+
				"Your loan payment of %s was due on %s and is now %d days overdue.\n"+
				"Your collateral will be listed for auction unless payment is received within 7 days.\n",
			name, amount, due, msg.DaysOverdue,
		)
	case 4:
		subject = "LIQUIDATION NOTICE - MantleFlow"
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"Because your loan payment of %s is now %d days overdue, we are required to liquidate the pledged collateral.\n"+
				"The collateral is being auctioned.\n",
			name, amount, msg.DaysOverdue,
		)
	}
	body += "\nBest regards,\nMantleFlow Collections"
	return subject, body
}

package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/mantleflow/risk-service/internal/config"
	"github.com/mantleflow/risk-service/internal/escalation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	sent []string
	fail bool
}

func (f *fakeSMS) SendSMS(phone, body string) error {
	if f.fail {
		return errors.New("provider down")
	}
	f.sent = append(f.sent, phone)
	return nil
}

func testMessage() Message {
	return Message{
		BorrowerName: "Nguyen Van A",
		CompanyName:  "Acme Trading Co",
		Amount:       50000,
		Currency:     "USD",
		DueDate:      time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC),
		DaysOverdue:  8,
	}
}

// cfg without SMTP credentials keeps the dispatcher in simulation mode.
func testDispatcher(sms SMSSender) *Dispatcher {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewDispatcher(&config.Config{SenderEmail: "collections@mantleflow.io"}, sms, logger)
}

func decide(t *testing.T, in escalation.Input) *escalation.Decision {
	t.Helper()
	m := escalation.NewMachine()
	d, err := m.Decide(in)
	require.NoError(t, err)
	return d
}

func TestRenderTonePerLevel(t *testing.T) {
	tests := []struct {
		level   int
		subject string
		body    string
	}{
		{1, "Payment Reminder", "friendly reminder"},
		{2, "URGENT", "DUE"},
		{3, "FINAL WARNING", "auction"},
		{4, "LIQUIDATION", "liquidate"},
	}
	for _, tt := range tests {
		subject, body := Render(tt.level, testMessage())
		assert.Containsf(t, subject, tt.subject, "level %d subject", tt.level)
		assert.Containsf(t, body, tt.body, "level %d body", tt.level)
		assert.Contains(t, body, "Acme Trading Co")
		assert.Contains(t, body, "50000.00 USD")
	}
}

func TestRenderFallsBackToBorrowerName(t *testing.T) {
	msg := testMessage()
	msg.CompanyName = ""
	_, body := Render(1, msg)
	assert.Contains(t, body, "Nguyen Van A")

	msg.BorrowerName = ""
	_, body = Render(1, msg)
	assert.Contains(t, body, "Valued Customer")
}

func TestDispatchMarksEmailSentAndDeferredActionsPending(t *testing.T) {
	d := testDispatcher(nil)

	decision := decide(t, escalation.Input{CurrentLevel: 0, DaysOverdue: 5, Email: "debtor@example.com"})
	require.Equal(t, 3, decision.NewLevel)

	actions := d.Dispatch(decision, testMessage())
	require.Len(t, actions, 2)

	byKind := map[escalation.ActionKind]escalation.ActionRecord{}
	for _, a := range actions {
		byKind[a.Kind] = a
	}
	assert.Equal(t, escalation.StatusSent, byKind[escalation.ActionEmail].Status)
	assert.Equal(t, escalation.StatusPending, byKind[escalation.ActionListAuction].Status)
}

func TestDispatchEmailWithoutRecipientFails(t *testing.T) {
	d := testDispatcher(nil)

	decision := decide(t, escalation.Input{CurrentLevel: 0, DaysOverdue: -3})
	actions := d.Dispatch(decision, testMessage())
	require.Len(t, actions, 1)
	assert.Equal(t, escalation.StatusFailed, actions[0].Status)
}

func TestDispatchSMS(t *testing.T) {
	decision := decide(t, escalation.Input{CurrentLevel: 0, DaysOverdue: 0, Email: "debtor@example.com", Phone: "+84123456789"})
	require.Equal(t, 2, decision.NewLevel)

	// No provider wired: SMS stays pending.
	actions := testDispatcher(nil).Dispatch(decision, testMessage())
	byKind := map[escalation.ActionKind]escalation.ActionRecord{}
	for _, a := range actions {
		byKind[a.Kind] = a
	}
	assert.Equal(t, escalation.StatusPending, byKind[escalation.ActionSMS].Status)

	// Working provider: sent.
	sms := &fakeSMS{}
	actions = testDispatcher(sms).Dispatch(decision, testMessage())
	byKind = map[escalation.ActionKind]escalation.ActionRecord{}
	for _, a := range actions {
		byKind[a.Kind] = a
	}
	assert.Equal(t, escalation.StatusSent, byKind[escalation.ActionSMS].Status)
	assert.Equal(t, []string{"+84123456789"}, sms.sent)

	// Failing provider: failed.
	actions = testDispatcher(&fakeSMS{fail: true}).Dispatch(decision, testMessage())
	byKind = map[escalation.ActionKind]escalation.ActionRecord{}
	for _, a := range actions {
		byKind[a.Kind] = a
	}
	assert.Equal(t, escalation.StatusFailed, byKind[escalation.ActionSMS].Status)
}

// Package escalation implements the collection ladder: a monotonic state
// machine that advances a loan through four notification levels as it
// becomes overdue. The machine only decides which actions are due at a
// level; rendering and delivery belong to the notification dispatcher.
package escalation

import (
	"fmt"
	"time"

	"github.com/mantleflow/risk-service/internal/models"
)

// ActionKind identifies one collection action.
type ActionKind string

const (
	ActionEmail       ActionKind = "email"
	ActionSMS         ActionKind = "sms"
	ActionListAuction ActionKind = "list_collateral_for_auction"
	ActionLiquidation ActionKind = "trigger_liquidation"
)

// ActionStatus is set by the dispatch step, not by the machine.
type ActionStatus string

const (
	StatusSent    ActionStatus = "sent"
	StatusPending ActionStatus = "pending"
	StatusFailed  ActionStatus = "failed"
)

// ActionRecord is one action emitted by an escalation decision. The machine
// creates it with StatusPending; the caller's dispatch step updates the
// status after attempting delivery.
type ActionRecord struct {
	Kind              ActionKind   `json:"action"`
	Status            ActionStatus `json:"status"`
	Recipient         string       `json:"recipient,omitempty"`
	RecipientRequired bool         `json:"recipient_required"`
	Timestamp         time.Time    `json:"timestamp"`
}

// Input is the caller-supplied escalation context. Email and phone are
// optional recipients; the SMS action is only emitted when a phone number
// is present.
type Input struct {
	CurrentLevel int
	DaysOverdue  int
	Email        string
	Phone        string
}

// NextEscalation previews the level that will fire next, its trigger, and
// the actions due there. It is derived from the same transition table as
// the decision itself.
type NextEscalation struct {
	Level   int          `json:"level"`
	Trigger string       `json:"trigger_at"`
	Actions []ActionKind `json:"actions"`
}

// Decision is the outcome of one escalation call.
type Decision struct {
	NewLevel int             `json:"new_level"`
	Name     string          `json:"name"`
	Actions  []ActionRecord  `json:"actions"`
	Next     *NextEscalation `json:"next_escalation,omitempty"`
	Message  string          `json:"message"`
}

// MinLevel and MaxLevel bound the ladder. Level 0 means not yet escalated;
// level 4 is terminal (liquidation triggered).
const (
	MinLevel = 0
	MaxLevel = 4
)

// levelSpec is the single source of truth for the ladder. Both the actual
// action derivation and the next-escalation preview read from it, so the
// two can never diverge.
type levelSpec struct {
	name    string
	trigger string
	actions []ActionKind
}

var ladder = map[int]levelSpec{
	1: {name: "Friendly Reminder", trigger: "3 days before due date", actions: []ActionKind{ActionEmail}},
	2: {name: "Urgent Notice", trigger: "Due date", actions: []ActionKind{ActionEmail, ActionSMS}},
	3: {name: "Final Warning", trigger: "7 days overdue", actions: []ActionKind{ActionEmail, ActionListAuction}},
	4: {name: "Liquidation", trigger: "14 days overdue", actions: []ActionKind{ActionEmail, ActionLiquidation}},
}

// Machine computes escalation decisions. It holds no per-loan state; callers
// persist the returned level between invocations.
type Machine struct {
	now func() time.Time
}

// NewMachine returns a machine stamping actions with the wall clock.
func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// NewMachineWithClock returns a machine using the given clock, for tests.
func NewMachineWithClock(now func() time.Time) *Machine {
	return &Machine{now: now}
}

// ImpliedLevel computes the level implied solely by timing. Negative days
// mean the due date has not passed yet.
func ImpliedLevel(daysOverdue int) int {
	switch {
	case daysOverdue <= -3:
		return 1
	case daysOverdue <= 0:
		return 2
	case daysOverdue <= 7:
		return 3
	default:
		return 4
	}
}

// LevelName returns the human-readable name of a ladder level, or "" for
// level 0.
func LevelName(level int) string {
	return ladder[level].name
}

// LevelTrigger returns the human-readable trigger condition of a ladder
// level, or "" for level 0.
func LevelTrigger(level int) string {
	return ladder[level].trigger
}

// LevelActions returns the action kinds due at a ladder level.
func LevelActions(level int) []ActionKind {
	spec, ok := ladder[level]
	if !ok {
		return nil
	}
	out := make([]ActionKind, len(spec.actions))
	copy(out, spec.actions)
	return out
}

// Decide advances the ladder. The new level is the maximum of the current
// level and the level implied by days overdue, so a later call with a
// smaller days-overdue value never regresses the state. Re-invocation at
// level 4 yields the same action set every time.
func (m *Machine) Decide(in Input) (*Decision, error) {
	if in.CurrentLevel < MinLevel || in.CurrentLevel > MaxLevel {
		return nil, models.NewValidationError("current_level",
			"must be within [%d,%d], got %d", MinLevel, MaxLevel, in.CurrentLevel)
	}

	newLevel := in.CurrentLevel
	if implied := ImpliedLevel(in.DaysOverdue); implied > newLevel {
		newLevel = implied
	}

	spec := ladder[newLevel]
	now := m.now()

	var actions []ActionRecord
	for _, kind := range spec.actions {
		rec := ActionRecord{
			Kind:      kind,
			Status:    StatusPending,
			Timestamp: now,
		}
		switch kind {
		case ActionEmail:
			rec.Recipient = in.Email
			rec.RecipientRequired = true
		case ActionSMS:
			if in.Phone == "" {
				continue
			}
			rec.Recipient = in.Phone
			rec.RecipientRequired = true
		}
		actions = append(actions, rec)
	}

	var next *NextEscalation
	if newLevel >= 1 && newLevel < MaxLevel {
		upcoming := ladder[newLevel+1]
		next = &NextEscalation{
			Level:   newLevel + 1,
			Trigger: upcoming.trigger,
			Actions: LevelActions(newLevel + 1),
		}
	}

	return &Decision{
		NewLevel: newLevel,
		Name:     spec.name,
		Actions:  actions,
		Next:     next,
		Message:  fmt.Sprintf("Escalation to Level %d (%s)", newLevel, spec.name),
	}, nil
}

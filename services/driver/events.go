package driver

import "time"

// EventType tags one entry in the run's event log.
type EventType int

const (
	EventDecision EventType = iota
	EventVeto
	EventOrderFill
	EventCashflow
	EventCheckpoint
	EventHalt
)

func (t EventType) String() string {
	switch t {
	case EventDecision:
		return "decision"
	case EventVeto:
		return "veto"
	case EventOrderFill:
		return "fill"
	case EventCashflow:
		return "cashflow"
	case EventCheckpoint:
		return "checkpoint"
	case EventHalt:
		return "halt"
	}
	return "unknown"
}

// Event is one audit entry.
type Event struct {
	Ts      int64
	Type    EventType
	Date    string
	Details map[string]string
}

// EventLog is the in-memory audit trail of a run.
type EventLog struct {
	Events []Event
}

// Append records an event with the current wall clock.
func (l *EventLog) Append(t EventType, date string, details map[string]string) {
	l.Events = append(l.Events, Event{
		Ts:      time.Now().UnixMilli(),
		Type:    t,
		Date:    date,
		Details: details,
	})
}

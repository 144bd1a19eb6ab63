package offline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/guelfi/BarbeariaSaaS/users"
)

type ActionKind string

const (
	ActionLogin    ActionKind = "login"
	ActionRegister ActionKind = "register"
)

// Action is a queued operation waiting for connectivity. It is one of
// LoginAction or RegisterAction.
type Action interface {
	Kind() ActionKind
}

// LoginAction records a login served from the offline cache; replay confirms
// the principal is still active.
type LoginAction struct {
	Email string `json:"email"`
}

func (LoginAction) Kind() ActionKind { return ActionLogin }

// RegisterAction records a client registration made while offline.
type RegisterAction struct {
	User         users.User `json:"user"`
	PasswordHash string     `json:"passwordHash"`
}

func (RegisterAction) Kind() ActionKind { return ActionRegister }

// QueueEntry is an action plus when it was queued.
type QueueEntry struct {
	ID        string
	Action    Action
	Timestamp time.Time
}

type queueEntryJSON struct {
	ID        string          `json:"id"`
	Kind      ActionKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e QueueEntry) MarshalJSON() ([]byte, error) {
	if e.Action == nil {
		return nil, fmt.Errorf("queue entry %s has no action", e.ID)
	}
	payload, err := json.Marshal(e.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(queueEntryJSON{
		ID:        e.ID,
		Kind:      e.Action.Kind(),
		Payload:   payload,
		Timestamp: e.Timestamp,
	})
}

func (e *QueueEntry) UnmarshalJSON(data []byte) error {
	var raw queueEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var action Action
	switch raw.Kind {
	case ActionLogin:
		var a LoginAction
		if err := json.Unmarshal(raw.Payload, &a); err != nil {
			return err
		}
		action = a
	case ActionRegister:
		var a RegisterAction
		if err := json.Unmarshal(raw.Payload, &a); err != nil {
			return err
		}
		action = a
	default:
		return fmt.Errorf("unknown offline action %q", raw.Kind)
	}

	*e = QueueEntry{ID: raw.ID, Action: action, Timestamp: raw.Timestamp}
	return nil
}

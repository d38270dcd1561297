package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

type Action string

const (
	ActionLoginSuccess          Action = "auth.login.success"
	ActionLoginFailure          Action = "auth.login.failure"
	ActionLoginThrottled        Action = "auth.login.throttled"
	ActionLogout                Action = "auth.logout"
	ActionRefresh               Action = "auth.refresh"
	ActionAccessGranted         Action = "auth.access.granted"
	ActionAccessDenied          Action = "auth.access.denied"
	ActionPasswordChange        Action = "auth.password.change"
	ActionPasswordResetRequest  Action = "auth.password.reset.request"
	ActionPasswordReset         Action = "auth.password.reset"
	ActionPasswordResetThrottle Action = "auth.password.reset.throttled"
	ActionSessionRevoke         Action = "auth.session.revoke"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one security-relevant fact. Code carries the machine code sent
// to the client when the event is a denial.
type Event struct {
	ID         string         `json:"id"`
	Action     Action         `json:"action"`
	Outcome    Outcome        `json:"outcome"`
	ActorID    string         `json:"actorId,omitempty"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Method     string         `json:"method,omitempty"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Code       string         `json:"code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Values flattens the event for a redis stream entry.
func (e Event) Values() (map[string]any, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return map[string]any{
		"id":      e.ID,
		"action":  string(e.Action),
		"payload": string(payload),
	}, nil
}

// EventFromValues is the inverse of Values.
func EventFromValues(values map[string]interface{}) (Event, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("audit entry has no payload")
	}
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Event{}, fmt.Errorf("decode audit event: %w", err)
	}
	return e, nil
}

// Package audit records the credentials the sandbox signs and resolves.
//
// The audit trail is separate from the request log. Every event is appended
// to a JSONL file and chained to its predecessor with a SHA-256 hash, so
// edits, deletions and insertions are detectable with VerifyChain.
//
// Key principles:
//   - Audit failure = Operation failure
//   - Never log credential text or clinical content
//   - All timestamps in UTC
package audit

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType names what the sandbox did.
type EventType string

const (
	EventVHLIssued         EventType = "VHL_ISSUED"
	EventVHLResolved       EventType = "VHL_RESOLVED"
	EventCertificateIssued EventType = "CERTIFICATE_ISSUED"
)

// Result is the outcome recorded for an event.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// ResultOf maps a success flag to a Result.
func ResultOf(ok bool) Result {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// Actor is the client that made the request.
type Actor struct {
	Type string `json:"type"`           // "client" or "service"
	ID   string `json:"id"`             // basic auth user, or "anonymous"
	Host string `json:"host,omitempty"` // remote address
}

// Object is what was acted upon.
type Object struct {
	Type string `json:"type"` // "bundle" or "immunization"
	ID   string `json:"id,omitempty"`
}

// Context carries request details. It never holds credential text.
type Context struct {
	RequestID string `json:"request_id,omitempty"`
	Issuer    string `json:"issuer,omitempty"`
	Status    int    `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"` // failure reason
}

// Event is one line of the audit trail.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
	Hash      string    `json:"hash,omitempty"` // empty only while hashing
}

// NewEvent creates an event stamped now, attributed to the sandbox itself
// until WithActor names the client.
func NewEvent(eventType EventType, result Result) *Event {
	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor:     Actor{Type: "service", ID: "hlink-sandbox"},
		Result:    result,
	}
}

// WithObject records what the event is about.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext attaches request details.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate rejects events missing a type, timestamp, actor or result.
func (e *Event) Validate() error {
	switch {
	case e.EventType == "":
		return errors.New("audit: event without event_type")
	case e.Timestamp == "":
		return errors.New("audit: event without timestamp")
	case e.Actor.Type == "", e.Actor.ID == "":
		return errors.New("audit: event without actor")
	case e.Result == "":
		return errors.New("audit: event without result")
	}
	return nil
}

// CanonicalJSON is the form that gets hashed: the event as written, minus
// its own Hash.
func (e *Event) CanonicalJSON() ([]byte, error) {
	c := *e
	c.Hash = ""
	return json.Marshal(&c)
}

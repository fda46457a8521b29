package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

type EventType string

const (
	EventCreated EventType = "CREATED"
	EventUpdated EventType = "UPDATED"
	EventDeleted EventType = "DELETED"
)

// AttributeEventType is the routing attribute carried next to the body.
// Subscriber filters match on it without decoding the body.
const AttributeEventType = "eventType"

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownEventType  = errors.New("unknown event type")
)

// Envelope wraps an opaque, already serialized payload with its event type.
type Envelope struct {
	EventType EventType `json:"eventType"`
	Data      string    `json:"data"`
}

func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// Encode never looks inside payload. The payload travels as a JSON string,
// so it has to be valid UTF-8 to survive the round trip.
func Encode(eventType EventType, payload []byte) ([]byte, error) {
	if eventType == "" {
		return nil, fmt.Errorf("%w: empty event type", ErrMalformedEnvelope)
	}
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid utf-8", ErrMalformedEnvelope)
	}
	return json.Marshal(Envelope{EventType: eventType, Data: string(payload)})
}

func Decode(body []byte) (EventType, []byte, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.EventType == "" {
		return "", nil, fmt.Errorf("%w: missing eventType", ErrMalformedEnvelope)
	}
	return env.EventType, []byte(env.Data), nil
}

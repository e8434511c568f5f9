package domain

import "encoding/json"

// EventType discriminates progress events delivered to observers.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// ProgressEvent is one observer-facing run event. Which fields are meaningful
// depends on Type; MarshalJSON emits only those.
type ProgressEvent struct {
	Type     EventType
	Total    int
	Current  int
	FileName string
	Keep     bool
	Reason   string
	Message  string
}

// Terminal reports whether the event ends a run's event sequence.
func (e ProgressEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// StartEvent announces the number of candidate files.
func StartEvent(total int) ProgressEvent {
	return ProgressEvent{Type: EventStart, Total: total}
}

// ErrorEvent ends a run with a human-readable message.
func ErrorEvent(message string) ProgressEvent {
	return ProgressEvent{Type: EventError, Message: message}
}

// DoneEvent ends a successful run.
func DoneEvent() ProgressEvent {
	return ProgressEvent{Type: EventDone}
}

type startPayload struct {
	Type  EventType `json:"type"`
	Total int       `json:"total"`
}

type progressPayload struct {
	Type     EventType `json:"type"`
	Current  int       `json:"current"`
	FileName string    `json:"fileName"`
	Keep     bool      `json:"keep"`
	Reason   string    `json:"reason"`
}

type errorPayload struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

type donePayload struct {
	Type EventType `json:"type"`
}

// MarshalJSON encodes the variant shape for the event type.
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStart:
		return json.Marshal(startPayload{Type: e.Type, Total: e.Total})
	case EventProgress:
		return json.Marshal(progressPayload{
			Type:     e.Type,
			Current:  e.Current,
			FileName: e.FileName,
			Keep:     e.Keep,
			Reason:   e.Reason,
		})
	case EventError:
		return json.Marshal(errorPayload{Type: e.Type, Message: e.Message})
	default:
		return json.Marshal(donePayload{Type: e.Type})
	}
}

// UnmarshalJSON decodes any variant shape.
func (e *ProgressEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     EventType `json:"type"`
		Total    int       `json:"total"`
		Current  int       `json:"current"`
		FileName string    `json:"fileName"`
		Keep     bool      `json:"keep"`
		Reason   string    `json:"reason"`
		Message  string    `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = ProgressEvent{
		Type:     raw.Type,
		Total:    raw.Total,
		Current:  raw.Current,
		FileName: raw.FileName,
		Keep:     raw.Keep,
		Reason:   raw.Reason,
		Message:  raw.Message,
	}
	return nil
}

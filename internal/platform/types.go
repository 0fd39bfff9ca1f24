package platform

import "encoding/json"

// Envelope is the conventional response shape of the platform: a success
// flag, a human message under one of several keys, and an optional data
// object. Services are inconsistent about which keys they populate, so
// every field is optional.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Text returns the first populated message-like field.
func (e Envelope) Text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	default:
		return e.Detail
	}
}

func ParseEnvelope(body []byte) Envelope {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}
	}
	return envelope
}

type APIError struct {
	StatusCode int
	Envelope   Envelope
	Body       []byte
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if text := e.Envelope.Text(); text != "" {
		return text
	}
	return string(e.Body)
}

package badge

import (
	"encoding/json"
	"time"
)

// wireEvent is the JSON form shared by every push transport:
// {"kind":"inserted","principal":"alice","at":"2026-01-02T03:04:05Z"}.
type wireEvent struct {
	Kind      string    `json:"kind"`
	Principal string    `json:"principal"`
	At        time.Time `json:"at"`
}

// MarshalJSON encodes the event in its wire form.
func (e ChangeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{Kind: e.Kind.String(), Principal: e.Principal, At: e.At})
}

// UnmarshalJSON decodes the wire form. Unknown kinds decode as Updated.
func (e *ChangeEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Kind = ParseChangeKind(w.Kind)
	e.Principal = w.Principal
	e.At = w.At
	return nil
}

// DecodeEvent parses a transport payload. A payload that is not valid JSON
// still announces a change, so it yields an Updated event for fallback
// rather than an error; ok is false in that case.
func DecodeEvent(payload []byte, fallback string) (ev ChangeEvent, ok bool) {
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{Kind: Updated, Principal: fallback, At: time.Now()}, false
	}
	if ev.Principal == "" {
		ev.Principal = fallback
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return ev, true
}

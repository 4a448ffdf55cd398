// Package source provides hardware event sources for capture sessions: a
// synthetic generator and an NDJSON client for a phone companion app.
package source

// Command is sent from the client to the phone.
type Command struct {
	Cmd     string   `json:"cmd"`
	Sensors []string `json:"sensors,omitempty"`
	Rate    string   `json:"rate,omitempty"`
}

// Response is returned by the phone after processing a command.
type Response struct {
	OK      bool     `json:"ok"`
	Device  string   `json:"device,omitempty"`
	Sensors []string `json:"sensors,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Event is streamed from the phone to a subscribed client. Timestamp is
// in nanoseconds on the phone's monotonic clock.
type Event struct {
	Event     string    `json:"event"`
	Sensor    string    `json:"sensor,omitempty"`
	Values    []float64 `json:"values,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Event names.
const (
	EventSample = "sample"
	EventError  = "error"
)

// Command names.
const (
	CmdStatus      = "status"
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

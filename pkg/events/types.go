package events

import "encoding/json"

// Event name constants
const (
	RunPhase  = "run.phase"
	RunAction = "run.action"
	RunResult = "run.result"
)

// Event is a generic SSE event from the daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// RunPhaseEvent is the typed payload for run.phase.
type RunPhaseEvent struct {
	RunID   string `json:"runId"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// RunActionEvent is the typed payload for run.action.
type RunActionEvent struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// RunResultEvent is the typed payload for run.result, published once per
// finished run with both gate outcomes.
type RunResultEvent struct {
	RunID  string          `json:"runId"`
	Passed bool            `json:"passed"`
	Broken bool            `json:"broken"`
	Result json.RawMessage `json:"result"`
	Ts     int64           `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is
// empty, it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

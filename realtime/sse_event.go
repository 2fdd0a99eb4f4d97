package realtime

import (
	"fmt"
	"io"
	"strings"
)

// SSEEvent is one Server-Sent Events frame.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
}

// NewSSEEvent creates an event frame with the given name and data.
func NewSSEEvent(event, data string) SSEEvent {
	return SSEEvent{Event: event, Data: data}
}

// WriteTo writes the frame in text/event-stream format. Multi-line data is
// split over several `data:` lines, as the format requires.
func (e SSEEvent) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if e.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", e.ID)
	}
	if e.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Event)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

package relay

import (
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// Event statuses emitted on the relay stream.
const (
	StatusStarted    = "started"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "error"
)

// Event is one server-sent event of a relay session.
type Event struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Error     string `json:"error,omitempty"`
}

type eventWriter struct {
	w       io.Writer
	flusher func()
}

func newEventWriter(c *echo.Context) (*eventWriter, error) {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := res.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("relay: streaming unsupported")
	}
	res.WriteHeader(http.StatusOK)

	return &eventWriter{w: res, flusher: flusher.Flush}, nil
}

func (s *eventWriter) send(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher()
	return nil
}

// splitRunes returns the longest prefix of b that does not end inside a
// multi-byte UTF-8 sequence, and the remaining bytes.
func splitRunes(b []byte) (complete, rest []byte) {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if utf8.FullRune(b[start:]) {
			return b, nil
		}
		return b[:start], b[start:]
	}
	return b, nil
}

package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

const readSize = 4096

// Session outcomes reported to the SessionRecorder.
const (
	OutcomeCompleted    = "completed"
	OutcomeSuperseded   = "superseded"
	OutcomeError        = "error"
	OutcomeDisconnected = "disconnected"
)

// SessionRecorder is notified when a relay session ends.
type SessionRecorder interface {
	RelaySession(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RelaySession(string) {}

// SessionID accepts both JSON strings and numbers.
type SessionID string

func (s *SessionID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = SessionID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = SessionID(n.String())
	return nil
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Prompt    string    `json:"prompt"`
	SessionID SessionID `json:"session_id"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithRecorder sets the SessionRecorder.
func WithRecorder(r SessionRecorder) Option {
	return func(h *Handler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithClock replaces the clock used to derive default session ids.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler serves the relay API on top of a Client and a SessionStore.
type Handler struct {
	client   *Client
	sessions SessionStore
	recorder SessionRecorder
	now      func() time.Time
}

// NewHandler creates a relay handler.
func NewHandler(client *Client, sessions SessionStore, opts ...Option) *Handler {
	h := &Handler{
		client:   client,
		sessions: sessions,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the relay routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/generate", h.handleGenerate)
	e.POST("/stop", h.handleStop)
	e.GET("/status", h.handleStatus)
	e.GET("/health", h.handleHealth)
}

func (h *Handler) handleGenerate(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "Invalid JSON body")
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return writeError(c, http.StatusBadRequest, "Prompt cannot be empty")
	}

	sessionID := string(req.SessionID)
	if sessionID == "" {
		sessionID = strconv.FormatInt(h.now().Unix(), 10)
	}

	w, err := newEventWriter(c)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, err.Error())
	}

	if err := w.send(Event{Status: StatusStarted, SessionID: sessionID}); err != nil {
		h.recorder.RelaySession(OutcomeDisconnected)
		return nil
	}

	outcome := h.relay(c.Request().Context(), w, req.Prompt, sessionID)
	h.recorder.RelaySession(outcome)
	slog.Info("Relay session finished", "session_id", sessionID, "outcome", outcome)

	return nil
}

// relay forwards one session and returns how it ended.
func (h *Handler) relay(ctx context.Context, w *eventWriter, prompt, sessionID string) string {
	if err := h.sessions.Begin(ctx, sessionID); err != nil {
		slog.Error("Failed to begin relay session", "session_id", sessionID, "error", err)
		_ = w.send(Event{Error: err.Error(), Status: StatusFailed})
		return OutcomeError
	}
	// The request context may already be gone; the session must still be released.
	defer func() {
		if err := h.sessions.End(context.WithoutCancel(ctx), sessionID); err != nil {
			slog.Warn("Failed to end relay session", "session_id", sessionID, "error", err)
		}
	}()

	body, err := h.client.Stream(ctx, prompt)
	if err != nil {
		slog.Warn("Relay upstream failed", "session_id", sessionID, "error", err)
		if w.send(Event{Error: err.Error(), Status: StatusFailed}) != nil {
			return OutcomeDisconnected
		}
		return OutcomeError
	}
	defer body.Close()

	buf := make([]byte, readSize)
	var carry []byte
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if current, err := h.sessions.IsCurrent(ctx, sessionID); err != nil || !current {
				return OutcomeSuperseded
			}

			var text []byte
			text, carry = splitRunes(append(carry, buf[:n]...))
			carry = append([]byte(nil), carry...)
			if len(text) > 0 {
				if err := w.send(Event{Chunk: string(text), Status: StatusGenerating}); err != nil {
					return OutcomeDisconnected
				}
			}
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return OutcomeDisconnected
			}
			slog.Warn("Relay upstream read failed", "session_id", sessionID, "error", rerr)
			_ = w.send(Event{Error: (&ConnectionError{Err: rerr}).Error(), Status: StatusFailed})
			return OutcomeError
		}
	}

	if current, err := h.sessions.IsCurrent(ctx, sessionID); err != nil || !current {
		return OutcomeSuperseded
	}
	if len(carry) > 0 {
		if err := w.send(Event{Chunk: string(carry), Status: StatusGenerating}); err != nil {
			return OutcomeDisconnected
		}
	}
	if err := w.send(Event{Status: StatusCompleted}); err != nil {
		return OutcomeDisconnected
	}
	return OutcomeCompleted
}

func (h *Handler) handleStop(c *echo.Context) error {
	ctx := c.Request().Context()
	if err := h.sessions.Stop(ctx); err != nil {
		slog.Warn("Failed to stop relay session", "error", err)
	}

	result, err := h.client.Stop(ctx)
	if err != nil {
		return c.JSON(http.StatusOK, proxyError(err, "Failed to stop"))
	}

	slog.Info("Relay stop forwarded")
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) handleStatus(c *echo.Context) error {
	result, err := h.client.Status(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusOK, proxyError(err, "Failed to get status"))
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) handleHealth(c *echo.Context) error {
	ctx := c.Request().Context()
	backend := h.client.Health(ctx)

	active, err := h.sessions.Active(ctx)
	if err != nil {
		slog.Warn("Failed to read relay session", "error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"backend_status": backend.Status,
		"is_generating":  active,
	})
}

// proxyError maps a client error to the body returned to relay callers.
// Non-200 answers from the core collapse into fallback.
func proxyError(err error, fallback string) map[string]string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return map[string]string{"error": fallback}
	}
	return map[string]string{"error": err.Error()}
}

func writeError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

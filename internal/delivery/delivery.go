// Package delivery posts record payloads to the remote sheet endpoint (a
// Google Apps Script web app or anything speaking the same contract).
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/MeKo-Tech/scan2sheets/internal/version"
)

// TransportMessage is the error text recorded when no HTTP response arrived.
const TransportMessage = "Network/CORS error"

// DefaultClientName identifies this program in payloads when nothing else
// is configured.
const DefaultClientName = "scan2sheets"

// Kind classifies a delivery failure.
type Kind int

const (
	// Rejected means the endpoint answered but did not confirm with ok:true.
	Rejected Kind = iota
	// Transport means no usable response was received.
	Transport
)

func (k Kind) String() string {
	if k == Transport {
		return "transport"
	}
	return "rejected"
}

// Error describes a failed delivery attempt. Message is the text stored on
// the pending history entry.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("delivery %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("delivery %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Reason returns the user-facing failure text for err: the Message of a
// delivery Error, otherwise err's own text.
func Reason(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Sink delivers one payload per call.
type Sink interface {
	Deliver(ctx context.Context, endpoint string, payload any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, endpoint string, payload any) error

func (f SinkFunc) Deliver(ctx context.Context, endpoint string, payload any) error {
	return f(ctx, endpoint, payload)
}

// ValidateEndpoint checks that endpoint is a non-empty absolute URL.
func ValidateEndpoint(endpoint string) error {
	return validation.Validate(endpoint, validation.Required, is.URL)
}

// HTTPSink posts JSON bodies without a Content-Type header so browsers and
// Apps Script treat them as simple requests.
type HTTPSink struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSink creates a sink with the given request timeout.
func NewHTTPSink(timeout time.Duration, logger *slog.Logger) *HTTPSink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSink{client: &http.Client{Timeout: timeout}, logger: logger}
}

// WithClient replaces the underlying HTTP client.
func (s *HTTPSink) WithClient(c *http.Client) *HTTPSink {
	if c != nil {
		s.client = c
	}
	return s
}

type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Deliver performs one POST. Success requires a 2xx status and a JSON body
// with ok:true; every other outcome is returned as *Error.
func (s *HTTPSink) Deliver(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("delivery: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		attemptsTotal.WithLabelValues(Transport.String()).Inc()
		return &Error{Kind: Transport, Message: TransportMessage, Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Delivery failed", "error", err)
		attemptsTotal.WithLabelValues(Transport.String()).Inc()
		return &Error{Kind: Transport, Message: TransportMessage, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		attemptsTotal.WithLabelValues(Transport.String()).Inc()
		return &Error{Kind: Transport, Status: resp.StatusCode, Message: TransportMessage, Err: err}
	}

	var parsed response
	parseErr := json.Unmarshal(text, &parsed)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	s.logger.Debug("Delivery response",
		"status", resp.StatusCode,
		"ok", parsed.OK,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if success && parseErr == nil && parsed.OK {
		attemptsTotal.WithLabelValues("sent").Inc()
		return nil
	}

	msg := parsed.Error
	if parseErr != nil || msg == "" {
		msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	attemptsTotal.WithLabelValues(Rejected.String()).Inc()
	return &Error{Kind: Rejected, Status: resp.StatusCode, Message: msg}
}

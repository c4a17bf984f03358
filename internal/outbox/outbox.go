// Package outbox records every save and delivery attempt in a capped,
// newest-first history log and re-delivers pending records on demand.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/scan2sheets/internal/delivery"
	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
)

const (
	// HistoryKey is the blob key of the persisted history log.
	HistoryKey = "scan2sheets_history_v1"
	// HistoryLimit caps the number of retained entries.
	HistoryLimit = 50
)

var (
	ErrNotFound        = errors.New("history entry not found")
	ErrNotPending      = errors.New("history entry is not pending")
	ErrNothingPending  = errors.New("no pending entries")
	ErrMissingEndpoint = errors.New("script URL is not set")
	ErrMissingToken    = errors.New("secret token is not set")
	ErrEmptyValue      = errors.New("no value to send")
)

// Op names a history mutation.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
)

// Event describes one committed mutation of the log.
type Event struct {
	Op    Op     `json:"op"`
	Entry *Entry `json:"entry,omitempty"`
	ID    string `json:"id,omitempty"`
	Size  int    `json:"size"`
}

// Listener is notified after every committed mutation. It runs with the
// log locked and must not call back into the Outbox.
type Listener interface {
	HistoryChanged(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HistoryChanged(e Event) { f(e) }

// RetrySummary reports the result of a retry sweep.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Pending   int `json:"pending"`
	// Skipped counts snapshot entries deleted or already sent when their
	// turn came.
	Skipped int `json:"skipped"`
}

// Outbox owns the history log. Log mutations serialize on mu; delivery
// operations additionally serialize on sendMu so at most one attempt is in
// flight.
type Outbox struct {
	mu     sync.Mutex
	sendMu sync.Mutex

	store     kvstore.Store
	sink      delivery.Sink
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	listeners []Listener
}

// Option configures an Outbox.
type Option func(*Outbox)

func WithLogger(l *slog.Logger) Option {
	return func(o *Outbox) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) { o.now = now }
}

// WithIDGenerator overrides entry id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Outbox) { o.newID = fn }
}

// WithListener registers a mutation listener.
func WithListener(l Listener) Option {
	return func(o *Outbox) { o.listeners = append(o.listeners, l) }
}

// New creates an outbox over store that delivers through sink.
func New(store kvstore.Store, sink delivery.Sink, opts ...Option) *Outbox {
	o := &Outbox{
		store:  store,
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Subscribe registers l for future mutations.
func (o *Outbox) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// List returns the log, newest first.
func (o *Outbox) List(ctx context.Context) ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx)
}

// Get returns the entry with id.
func (o *Outbox) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := o.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	if i := indexOf(entries, id); i >= 0 {
		return entries[i], nil
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Pending returns the pending entries, newest first.
func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	entries, err := o.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(entries, func(e Entry) bool { return e.Status != StatusPending }), nil
}

// SaveAsPending records p as pending without attempting delivery.
func (o *Outbox) SaveAsPending(ctx context.Context, p Payload) (Entry, error) {
	return o.insert(ctx, p, StatusPending, "")
}

// CheckSendable reports the first missing precondition for sending p.
func CheckSendable(endpoint string, p Payload) error {
	switch {
	case strings.TrimSpace(endpoint) == "":
		return ErrMissingEndpoint
	case strings.TrimSpace(p.Token) == "":
		return ErrMissingToken
	case strings.TrimSpace(p.Value) == "":
		return ErrEmptyValue
	}
	return nil
}

// AttemptSend delivers p once and records the outcome as a new entry: sent,
// or pending with the failure reason. A delivery failure is not returned as
// an error; inspect the entry's Status. Failed preconditions record nothing.
func (o *Outbox) AttemptSend(ctx context.Context, endpoint string, p Payload) (Entry, error) {
	if err := CheckSendable(endpoint, p); err != nil {
		return Entry{}, err
	}

	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	status, reason := o.deliver(ctx, endpoint, p)
	return o.insert(ctx, p, status, reason)
}

// Retry re-delivers the stored payload of a pending entry and updates that
// entry in place.
func (o *Outbox) Retry(ctx context.Context, endpoint, id string) (Entry, error) {
	if strings.TrimSpace(endpoint) == "" {
		return Entry{}, ErrMissingEndpoint
	}

	o.sendMu.Lock()
	defer o.sendMu.Unlock()
	return o.retryLocked(ctx, endpoint, id)
}

func (o *Outbox) retryLocked(ctx context.Context, endpoint, id string) (Entry, error) {
	entry, err := o.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusPending {
		return entry, fmt.Errorf("%w: %s", ErrNotPending, id)
	}

	status, reason := o.deliver(ctx, endpoint, entry.Payload)
	return o.update(ctx, id, status, reason)
}

// RetryAllPending retries every entry pending at call time, one after the
// other. onEach, when non-nil, sees each entry after its outcome is stored.
func (o *Outbox) RetryAllPending(ctx context.Context, endpoint string, onEach func(Entry)) (RetrySummary, error) {
	var sum RetrySummary
	if strings.TrimSpace(endpoint) == "" {
		return sum, ErrMissingEndpoint
	}

	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	pending, err := o.Pending(ctx)
	if err != nil {
		return sum, err
	}
	if len(pending) == 0 {
		return sum, ErrNothingPending
	}

	ids := make([]string, len(pending))
	for i, e := range pending {
		ids[i] = e.ID
	}
	o.logger.Info("Retrying pending entries", "count", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		entry, err := o.retryLocked(ctx, endpoint, id)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotPending):
			sum.Skipped++
			continue
		case err != nil:
			return sum, err
		}
		sum.Attempted++
		if entry.Status == StatusSent {
			sum.Sent++
		} else {
			sum.Pending++
		}
		if onEach != nil {
			onEach(entry)
		}
	}
	return sum, nil
}

// Delete removes the entry with id. Unknown ids are not an error.
func (o *Outbox) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries, err := o.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(entries, id)
	if i < 0 {
		return nil
	}
	entries = slices.Delete(entries, i, i+1)
	if err := o.save(ctx, entries); err != nil {
		return err
	}
	o.notify(Event{Op: OpDelete, ID: id, Size: len(entries)})
	return nil
}

// ClearAll removes every entry.
func (o *Outbox) ClearAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.Delete(ctx, HistoryKey); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	historySize.Set(0)
	o.notify(Event{Op: OpClear})
	return nil
}

func (o *Outbox) deliver(ctx context.Context, endpoint string, p Payload) (Status, string) {
	if err := o.sink.Deliver(ctx, endpoint, p); err != nil {
		reason := delivery.Reason(err)
		o.logger.Warn("Delivery failed, keeping entry pending", "error", reason)
		return StatusPending, reason
	}
	return StatusSent, ""
}

func (o *Outbox) insert(ctx context.Context, p Payload, status Status, reason string) (Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries, err := o.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:        o.newID(),
		CreatedAt: o.now().UTC(),
		Status:    status,
		Payload:   p,
		Error:     reason,
	}
	entries = slices.Insert(entries, 0, entry)
	if len(entries) > HistoryLimit {
		entries = entries[:HistoryLimit]
	}
	if err := o.save(ctx, entries); err != nil {
		return Entry{}, err
	}
	o.logger.Info("History entry recorded", "id", entry.ID, "status", string(status))
	o.notify(Event{Op: OpInsert, Entry: &entry, ID: entry.ID, Size: len(entries)})
	return entry, nil
}

func (o *Outbox) update(ctx context.Context, id string, status Status, reason string) (Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries, err := o.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	i := indexOf(entries, id)
	if i < 0 {
		// Deleted while the attempt was in flight.
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entries[i].Status = status
	entries[i].Error = reason
	if err := o.save(ctx, entries); err != nil {
		return Entry{}, err
	}
	entry := entries[i]
	o.logger.Info("History entry updated", "id", id, "status", string(status))
	o.notify(Event{Op: OpUpdate, Entry: &entry, ID: id, Size: len(entries)})
	return entry, nil
}

// load reads and validates the log. Malformed entries are dropped.
func (o *Outbox) load(ctx context.Context) ([]Entry, error) {
	data, err := o.store.Get(ctx, HistoryKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		o.logger.Warn("Stored history is not a JSON array, ignoring it", "error", err)
		return []Entry{}, nil
	}

	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		var e Entry
		if err := json.Unmarshal(r, &e); err != nil {
			o.logger.Warn("Dropping undecodable history entry", "index", i, "error", err)
			continue
		}
		e.normalize()
		if err := e.Validate(); err != nil {
			o.logger.Warn("Dropping invalid history entry", "index", i, "id", e.ID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) > HistoryLimit {
		entries = entries[:HistoryLimit]
	}
	return entries, nil
}

func (o *Outbox) save(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := o.store.Put(ctx, HistoryKey, data); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	historySize.Set(float64(len(entries)))
	return nil
}

func (o *Outbox) notify(e Event) {
	for _, l := range o.listeners {
		l.HistoryChanged(e)
	}
}

func indexOf(entries []Entry, id string) int {
	return slices.IndexFunc(entries, func(e Entry) bool { return e.ID == id })
}

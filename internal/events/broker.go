// Package events streams history and settings changes to HTTP clients as
// Server-Sent Events.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/settings"
)

// Event types sent to clients.
const (
	TypeHistoryInsert   = "history.insert"
	TypeHistoryUpdate   = "history.update"
	TypeHistoryDelete   = "history.delete"
	TypeHistoryClear    = "history.clear"
	TypeHistoryReload   = "history.reload"
	TypeSettingsChanged = "settings.changed"
)

// Event is one message broadcast to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans events out to SSE subscribers. A single goroutine owns the
// subscriber set; public methods talk to it over channels.
type Broker struct {
	logger    *slog.Logger
	keepAlive time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. keepAlive is the interval of comment frames
// written to idle streams; zero selects 25s.
func NewBroker(keepAlive time.Duration, logger *slog.Logger) *Broker {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		logger:        logger,
		keepAlive:     keepAlive,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 128),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			sseClients.Set(float64(len(clients)))

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
				sseClients.Set(float64(len(clients)))
			}

		case ev := <-b.publishCh:
			frame, err := encode(ev)
			if err != nil {
				b.logger.Warn("events: encode failed", "type", ev.Type, "error", err)
				continue
			}
			for ch := range clients {
				select {
				case ch <- frame:
				default:
					b.logger.Debug("events: slow subscriber, dropping frame", "type", ev.Type)
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", ev.Type, data), nil
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a new subscriber channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 32)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes ch and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts ev to every subscriber.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// HistoryChanged implements outbox.Listener.
func (b *Broker) HistoryChanged(e outbox.Event) {
	var typ string
	switch e.Op {
	case outbox.OpInsert:
		typ = TypeHistoryInsert
	case outbox.OpUpdate:
		typ = TypeHistoryUpdate
	case outbox.OpDelete:
		typ = TypeHistoryDelete
	case outbox.OpClear:
		typ = TypeHistoryClear
	default:
		return
	}
	b.Publish(Event{Type: typ, Data: e})
}

// BlobChanged maps a storage key changed by another process onto an event.
func (b *Broker) BlobChanged(key string) {
	switch key {
	case outbox.HistoryKey:
		b.Publish(Event{Type: TypeHistoryReload, Data: map[string]string{"key": key}})
	case settings.Key:
		b.Publish(Event{Type: TypeSettingsChanged, Data: map[string]string{"key": key}})
	}
}

// ServeHTTP streams events until the client disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

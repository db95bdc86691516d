package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/velofit/velofit/internal/telemetry/metrics"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one row change pushed by the backend's realtime channel.
type ChangeEvent struct {
	Table     string          `json:"table"`
	Type      ChangeType      `json:"type"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

type realtimeFrame struct {
	Type  string      `json:"type"` // change | heartbeat | error
	Event ChangeEvent `json:"event"`
	Error string      `json:"error"`
}

type subscribeFrame struct {
	Action string `json:"action"`
	Table  string `json:"table"`
	Filter string `json:"filter"`
	Token  string `json:"token"`
}

// Realtime opens row-change subscriptions over a websocket. There is no
// automatic reconnect: a dropped subscription surfaces as a closed events
// channel and the consumer decides whether to subscribe again.
type Realtime struct {
	wsURL          string
	apiKey         string
	tokens         TokenProvider
	dialer         *websocket.Dialer
	metricsManager *metrics.Manager
}

func NewRealtime(wsURL, apiKey string, tokens TokenProvider, metricsManager *metrics.Manager) *Realtime {
	return &Realtime{
		wsURL:          wsURL,
		apiKey:         apiKey,
		tokens:         tokens,
		dialer:         websocket.DefaultDialer,
		metricsManager: metricsManager,
	}
}

// Subscription is one live row-change feed. Events is closed when the
// subscription ends, for whatever reason. Close must be called by the
// consumer that started it; subscriptions are process-scoped and never
// tied to a screen lifecycle implicitly.
type Subscription struct {
	Events <-chan ChangeEvent

	conn      *websocket.Conn
	closeOnce sync.Once
	done      chan struct{}
	readerWG  sync.WaitGroup
}

// Subscribe opens a change feed for one table, server-side filtered with
// the given predicate (e.g. "recipient_id=eq.<uid>").
func (r *Realtime) Subscribe(ctx context.Context, table, filter string) (*Subscription, error) {
	operation := "subscribe " + table

	header := http.Header{}
	header.Set("apikey", r.apiKey)

	conn, resp, err := r.dialer.DialContext(ctx, r.wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &RemoteError{Operation: operation, StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, &RemoteError{Operation: operation, Message: err.Error()}
	}

	if err := conn.WriteJSON(subscribeFrame{
		Action: "subscribe",
		Table:  table,
		Filter: filter,
		Token:  r.tokens.AccessToken(),
	}); err != nil {
		_ = conn.Close()
		return nil, &RemoteError{Operation: operation, Message: fmt.Sprintf("send subscribe: %s", err)}
	}

	events := make(chan ChangeEvent, 16)
	sub := &Subscription{
		Events: events,
		conn:   conn,
		done:   make(chan struct{}),
	}

	r.metricsManager.GaugeOpenSubscriptions.Inc()

	// closes the connection when either the caller's ctx ends or Close is
	// called, which in turn unblocks the reader below
	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		_ = conn.Close()
	}()

	sub.readerWG.Add(1)
	go func() {
		defer sub.readerWG.Done()
		defer close(events)
		defer r.metricsManager.GaugeOpenSubscriptions.Dec()
		defer sub.markDone()

		for {
			var frame realtimeFrame
			if err := conn.ReadJSON(&frame); err != nil {
				select {
				case <-sub.done:
					// deliberate teardown, not an error
				default:
					log.Errorf("realtime %s: read: %s", table, err)
				}
				return
			}

			switch frame.Type {
			case "heartbeat":
				continue
			case "error":
				log.Errorf("realtime %s: %s", table, frame.Error)
				return
			case "change":
				r.metricsManager.CounterRealtimeEvents.Inc()
				select {
				case events <- frame.Event:
				default:
					// consumer fell too far behind; drop the event, the
					// consumer refreshes state on the next one anyway
					log.Warnf("realtime %s: event buffer full, dropping event", table)
				}
			default:
				log.Tracef("realtime %s: ignoring frame type %q", table, frame.Type)
			}
		}
	}()

	return sub, nil
}

func (s *Subscription) markDone() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Close tears the subscription down and waits for the reader to finish,
// so no goroutine outlives the consumer that stops it.
func (s *Subscription) Close() {
	s.markDone()
	s.readerWG.Wait()
}

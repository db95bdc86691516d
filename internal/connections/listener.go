package connections

import (
	"context"
	"errors"
	"sync"

	"github.com/velofit/velofit/internal/backend"
	"github.com/velofit/velofit/internal/statestream"

	log "github.com/sirupsen/logrus"
)

type realtimeSource interface {
	Subscribe(ctx context.Context, table, filter string) (*backend.Subscription, error)
}

type requestLister interface {
	ListForUser(ctx context.Context, userID string) ([]ConnectionRequest, error)
}

// Listener keeps the user's pending connection requests fresh from the
// backend change feed. Every change event triggers a full list refetch
// and replace, never an incremental patch: the event payload is just a
// wake-up signal, the table is the source of truth. Process-scoped, so
// it must be stopped explicitly; it does not die with any one screen.
type Listener struct {
	realtime realtimeSource
	repo     requestLister
	userID   string
	pending  *statestream.Value[[]ConnectionRequest]

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewListener(realtime realtimeSource, repo requestLister, userID string) *Listener {
	return &Listener{
		realtime: realtime,
		repo:     repo,
		userID:   userID,
		pending:  statestream.NewValue[[]ConnectionRequest](),
	}
}

// Pending streams the current pending-request list. Subscribers get the
// latest list on subscribe and a full replacement on every change.
func (l *Listener) Pending() *statestream.Value[[]ConnectionRequest] {
	return l.pending
}

// Start subscribes to the change feed and publishes the initial list.
// Returns an error when the subscription cannot be established; after a
// successful start, a later connection drop ends the listener silently
// and a fresh Start is needed.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return errors.New("listener already started")
	}

	listenCtx, cancel := context.WithCancel(ctx)

	sub, err := l.realtime.Subscribe(listenCtx, table, "recipient_id=eq."+l.userID)
	if err != nil {
		cancel()
		return err
	}

	if err := l.refresh(listenCtx); err != nil {
		cancel()
		sub.Close()
		return err
	}

	stopped := make(chan struct{})
	l.cancel = cancel
	l.stopped = stopped

	go func() {
		defer close(stopped)
		for range sub.Events {
			if err := l.refresh(listenCtx); err != nil {
				log.Errorf("connection listener: refresh after change event: %s", err)
			}
		}
		log.Debugln("connection listener: change feed closed")
	}()

	log.Debugf("connection listener started for user: %s", l.userID)
	return nil
}

// Stop tears the subscription down and waits for the event loop to exit.
// Subscribers of Pending() get their channels closed. Safe to call when
// never started.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	stopped := l.stopped
	l.cancel = nil
	l.stopped = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
	l.pending.Close()
	log.Debugln("connection listener stopped")
}

func (l *Listener) refresh(ctx context.Context) error {
	requests, err := l.repo.ListForUser(ctx, l.userID)
	if err != nil {
		return err
	}
	l.pending.Set(Pending(requests))
	return nil
}

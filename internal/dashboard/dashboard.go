// Package dashboard assembles the home screen state: client count,
// today's schedule, unread messages, pending connection requests and the
// subscription badge, loaded in parallel.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/velofit/velofit/internal/calendar"
	"github.com/velofit/velofit/internal/connections"
	"github.com/velofit/velofit/internal/statestream"
	"github.com/velofit/velofit/internal/subscriptions"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type clientCounter interface {
	Count(ctx context.Context, coachID string) (int, error)
}

type scheduleLister interface {
	ListToday(ctx context.Context, coachID string, now time.Time) ([]calendar.Event, error)
}

type unreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type requestLister interface {
	ListForUser(ctx context.Context, userID string) ([]connections.ConnectionRequest, error)
}

type subscriptionGetter interface {
	Current(ctx context.Context, coachID string) (*subscriptions.Subscription, error)
}

// State is the dashboard's full view state. EssentialsLoaded flips once
// the client count and today's schedule are in; the remaining sections
// patch in whenever their loads return, in no guaranteed order.
type State struct {
	EssentialsLoaded bool
	ClientCount      int
	TodayEvents      []calendar.Event
	UnreadMessages   int
	PendingRequests  []connections.ConnectionRequest
	Subscription     *subscriptions.Subscription

	// SectionErrors maps a failed background section to its message;
	// essential-load failures fail Load itself instead.
	SectionErrors map[string]string
}

type ViewModel struct {
	clients       clientCounter
	schedule      scheduleLister
	chat          unreadCounter
	requests      requestLister
	subscriptions subscriptionGetter
	coachID       string

	state        *statestream.Value[State]
	backgroundWG sync.WaitGroup
}

func NewViewModel(
	clients clientCounter,
	schedule scheduleLister,
	chat unreadCounter,
	requests requestLister,
	subs subscriptionGetter,
	coachID string,
) *ViewModel {
	return &ViewModel{
		clients:       clients,
		schedule:      schedule,
		chat:          chat,
		requests:      requests,
		subscriptions: subs,
		coachID:       coachID,
		state:         statestream.NewValue[State](),
	}
}

func (vm *ViewModel) State() *statestream.Value[State] {
	return vm.state
}

// Load fetches the two essential sections in parallel and returns once
// both are in; the screen can render then. The slower sections keep
// loading in the background and patch the state as they arrive; a failed
// background section records its error and leaves the rest intact.
func (vm *ViewModel) Load(ctx context.Context) error {
	var clientCount int
	var todayEvents []calendar.Event

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		count, err := vm.clients.Count(groupCtx, vm.coachID)
		if err != nil {
			return err
		}
		clientCount = count
		return nil
	})
	group.Go(func() error {
		events, err := vm.schedule.ListToday(groupCtx, vm.coachID, time.Now())
		if err != nil {
			return err
		}
		todayEvents = events
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	vm.state.Update(func(s State) State {
		s.EssentialsLoaded = true
		s.ClientCount = clientCount
		s.TodayEvents = todayEvents
		return s
	})

	vm.loadSection(ctx, "unread", func(ctx context.Context) (func(*State), error) {
		unread, err := vm.chat.UnreadCount(ctx, vm.coachID)
		if err != nil {
			return nil, err
		}
		return func(s *State) { s.UnreadMessages = unread }, nil
	})
	vm.loadSection(ctx, "requests", func(ctx context.Context) (func(*State), error) {
		requests, err := vm.requests.ListForUser(ctx, vm.coachID)
		if err != nil {
			return nil, err
		}
		pending := connections.Pending(requests)
		return func(s *State) { s.PendingRequests = pending }, nil
	})
	vm.loadSection(ctx, "subscription", func(ctx context.Context) (func(*State), error) {
		subscription, err := vm.subscriptions.Current(ctx, vm.coachID)
		if err != nil {
			return nil, err
		}
		return func(s *State) { s.Subscription = subscription }, nil
	})

	return nil
}

// ApplyPendingRequests patches the alerts section from the connection
// listener's stream, keeping the dashboard in sync without a reload.
func (vm *ViewModel) ApplyPendingRequests(pending []connections.ConnectionRequest) {
	vm.state.Update(func(s State) State {
		s.PendingRequests = pending
		return s
	})
}

// Wait blocks until all in-flight background section loads finish.
func (vm *ViewModel) Wait() {
	vm.backgroundWG.Wait()
}

// Close tears the view-model down after Wait; subscriber channels close.
func (vm *ViewModel) Close() {
	vm.state.Close()
}

func (vm *ViewModel) loadSection(ctx context.Context, section string, load func(context.Context) (func(*State), error)) {
	vm.backgroundWG.Add(1)
	go func() {
		defer vm.backgroundWG.Done()

		patch, err := load(ctx)
		if err != nil {
			log.Errorf("dashboard: load %s section: %s", section, err)
			vm.state.Update(func(s State) State {
				updated := s
				updated.SectionErrors = make(map[string]string, len(s.SectionErrors)+1)
				for k, v := range s.SectionErrors {
					updated.SectionErrors[k] = v
				}
				updated.SectionErrors[section] = err.Error()
				return updated
			})
			return
		}

		vm.state.Update(func(s State) State {
			patch(&s)
			return s
		})
	}()
}

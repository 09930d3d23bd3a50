package hydration

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/pkg/enums"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
)

// State is the machine's synchronous snapshot. UserID is set only while the
// status is authenticated.
type State struct {
	Status enums.HydrationStatus `json:"status"`
	UserID *uuid.UUID            `json:"user_id,omitempty"`
}

// Resolved reports whether the session source has answered for this device.
func (s State) Resolved() bool {
	return s.Status.Resolved()
}

// Machine owns a device session's transition from "unknown" to a definitive
// authenticated-or-guest state. Dependents gate on Resolved so that "not yet
// checked" is never read as "checked, no user"; conflating the two makes the
// cart clear itself on every token refresh.
type Machine struct {
	mu          sync.Mutex
	state       State
	subscribers map[int]func(context.Context, State)
	nextID      int
	logg        *logger.Logger
}

// NewMachine starts in the initializing state.
func NewMachine(logg *logger.Logger) (*Machine, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Machine{
		state:       State{Status: enums.HydrationInitializing},
		subscribers: make(map[int]func(context.Context, State)),
		logg:        logg,
	}, nil
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state)
}

// Subscribe registers a callback for resolved transitions and returns its
// unsubscribe func. Callbacks run on the resolving caller's goroutine with its
// context, outside the machine's lock, after the new state is visible through
// State, in registration order.
func (m *Machine) Subscribe(cb func(context.Context, State)) func() {
	if cb == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = cb
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Resolve records the session source's answer: a user ID for authenticated,
// nil for guest. The first call leaves initializing; later calls move between
// authenticated and guest on sign-in and sign-out, never back to
// initializing. A call carrying the identity already held (a token refresh)
// changes nothing and notifies nobody.
func (m *Machine) Resolve(ctx context.Context, userID *uuid.UUID) State {
	m.mu.Lock()
	unchanged := m.state.Resolved() &&
		m.state.Status != enums.HydrationError &&
		sameIdentity(m.state.UserID, userID)
	if unchanged {
		state := copyState(m.state)
		m.mu.Unlock()
		return state
	}

	next := State{Status: enums.HydrationGuest}
	if userID != nil {
		id := *userID
		next = State{Status: enums.HydrationAuthenticated, UserID: &id}
	}
	m.state = next
	state := copyState(next)
	subs := m.subscribersLocked()
	m.mu.Unlock()

	logCtx := m.logg.WithField(ctx, "status", state.Status.String())
	if state.UserID != nil {
		logCtx = m.logg.WithField(logCtx, "user_id", state.UserID.String())
	}
	m.logg.Info(logCtx, "session resolved")

	for _, cb := range subs {
		cb(ctx, copyState(state))
	}
	return state
}

// Fail marks the initial session fetch as irrecoverable. Dependents treat the
// error state as guest with a retry affordance; a later Resolve supersedes
// it. A machine that already resolved keeps its last known identity instead
// of downgrading.
func (m *Machine) Fail(ctx context.Context, err error) State {
	m.mu.Lock()
	if m.state.Resolved() {
		state := copyState(m.state)
		m.mu.Unlock()
		return state
	}
	m.state = State{Status: enums.HydrationError}
	state := copyState(m.state)
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.logg.Error(ctx, "session fetch failed", err)

	for _, cb := range subs {
		cb(ctx, copyState(state))
	}
	return state
}

func (m *Machine) subscribersLocked() []func(context.Context, State) {
	ids := make([]int, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(context.Context, State), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.subscribers[id])
	}
	return subs
}

func copyState(state State) State {
	out := State{Status: state.Status}
	if state.UserID != nil {
		id := *state.UserID
		out.UserID = &id
	}
	return out
}

func sameIdentity(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

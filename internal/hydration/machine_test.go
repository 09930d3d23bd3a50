package hydration

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larkspurhq/storefront-backend/pkg/enums"
	"github.com/larkspurhq/storefront-backend/pkg/logger"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	machine, err := NewMachine(logger.New(logger.Options{
		ServiceName: "hydration-test",
		Output:      io.Discard,
	}))
	require.NoError(t, err)
	return machine
}

func TestNewMachineRequiresLogger(t *testing.T) {
	_, err := NewMachine(nil)
	require.Error(t, err)
}

func TestMachineStartsInitializing(t *testing.T) {
	machine := newTestMachine(t)

	state := machine.State()
	assert.Equal(t, enums.HydrationInitializing, state.Status)
	assert.Nil(t, state.UserID)
	assert.False(t, state.Resolved())
}

func TestResolveAuthenticatedNotifiesSubscribers(t *testing.T) {
	machine := newTestMachine(t)
	userID := uuid.New()

	var seen []State
	machine.Subscribe(func(_ context.Context, state State) {
		seen = append(seen, state)
	})

	state := machine.Resolve(context.Background(), &userID)

	assert.Equal(t, enums.HydrationAuthenticated, state.Status)
	require.NotNil(t, state.UserID)
	assert.Equal(t, userID, *state.UserID)
	require.Len(t, seen, 1)
	assert.Equal(t, enums.HydrationAuthenticated, seen[0].Status)
	assert.True(t, machine.State().Resolved())
}

func TestResolveNilUserIsGuest(t *testing.T) {
	machine := newTestMachine(t)

	state := machine.Resolve(context.Background(), nil)

	assert.Equal(t, enums.HydrationGuest, state.Status)
	assert.Nil(t, state.UserID)
	assert.True(t, state.Resolved())
}

func TestTokenRefreshSameIdentityIsSuppressed(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()
	userID := uuid.New()

	notifications := 0
	machine.Subscribe(func(context.Context, State) { notifications++ })

	machine.Resolve(ctx, &userID)
	refreshed := userID
	machine.Resolve(ctx, &refreshed)
	machine.Resolve(ctx, &refreshed)

	assert.Equal(t, 1, notifications, "a token refresh must not look like a new session")
	assert.Equal(t, enums.HydrationAuthenticated, machine.State().Status)
}

func TestRepeatedGuestResolutionIsSuppressed(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()

	notifications := 0
	machine.Subscribe(func(context.Context, State) { notifications++ })

	machine.Resolve(ctx, nil)
	machine.Resolve(ctx, nil)

	assert.Equal(t, 1, notifications)
}

func TestSignOutMovesToGuestNeverBackToInitializing(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()
	userID := uuid.New()

	var statuses []enums.HydrationStatus
	machine.Subscribe(func(_ context.Context, state State) {
		statuses = append(statuses, state.Status)
	})

	machine.Resolve(ctx, &userID)
	machine.Resolve(ctx, nil)

	require.Equal(t, []enums.HydrationStatus{
		enums.HydrationAuthenticated,
		enums.HydrationGuest,
	}, statuses)
	assert.NotEqual(t, enums.HydrationInitializing, machine.State().Status)
}

func TestSignInAfterGuestTransitions(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()
	userID := uuid.New()

	machine.Resolve(ctx, nil)
	state := machine.Resolve(ctx, &userID)

	assert.Equal(t, enums.HydrationAuthenticated, state.Status)
	require.NotNil(t, state.UserID)
	assert.Equal(t, userID, *state.UserID)
}

func TestIdentitySwitchNotifies(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()

	notifications := 0
	machine.Subscribe(func(context.Context, State) { notifications++ })

	machine.Resolve(ctx, &first)
	machine.Resolve(ctx, &second)

	assert.Equal(t, 2, notifications)
	state := machine.State()
	require.NotNil(t, state.UserID)
	assert.Equal(t, second, *state.UserID)
}

func TestFailFromInitializingIsTerminalUntilSuperseded(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()
	userID := uuid.New()

	var statuses []enums.HydrationStatus
	machine.Subscribe(func(_ context.Context, state State) {
		statuses = append(statuses, state.Status)
	})

	state := machine.Fail(ctx, errors.New("session source down"))
	assert.Equal(t, enums.HydrationError, state.Status)
	assert.True(t, state.Resolved(), "error is a terminal answer, not a pending one")

	state = machine.Resolve(ctx, &userID)
	assert.Equal(t, enums.HydrationAuthenticated, state.Status)

	assert.Equal(t, []enums.HydrationStatus{
		enums.HydrationError,
		enums.HydrationAuthenticated,
	}, statuses)
}

func TestErrorSupersededByGuestResolution(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()

	machine.Fail(ctx, errors.New("session source down"))
	state := machine.Resolve(ctx, nil)

	assert.Equal(t, enums.HydrationGuest, state.Status)
}

func TestFailAfterResolveKeepsIdentity(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()
	userID := uuid.New()

	notifications := 0
	machine.Subscribe(func(context.Context, State) { notifications++ })

	machine.Resolve(ctx, &userID)
	state := machine.Fail(ctx, errors.New("refresh blip"))

	assert.Equal(t, enums.HydrationAuthenticated, state.Status)
	require.NotNil(t, state.UserID)
	assert.Equal(t, userID, *state.UserID)
	assert.Equal(t, 1, notifications, "a refresh failure must not downgrade a resolved session")
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()

	notifications := 0
	unsubscribe := machine.Subscribe(func(context.Context, State) { notifications++ })
	unsubscribe()

	machine.Resolve(ctx, nil)

	assert.Equal(t, 0, notifications)
}

func TestSubscribersNotifiedInRegistrationOrder(t *testing.T) {
	machine := newTestMachine(t)
	ctx := context.Background()

	var order []string
	machine.Subscribe(func(context.Context, State) { order = append(order, "first") })
	machine.Subscribe(func(context.Context, State) { order = append(order, "second") })

	machine.Resolve(ctx, nil)

	assert.Equal(t, []string{"first", "second"}, order)
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	events []Event
	err    error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event Event) error {
	d.events = append(d.events, event)
	return d.err
}

func TestMultiFansOut(t *testing.T) {
	first := &recordingDispatcher{}
	second := &recordingDispatcher{}
	multi := Multi{first, second}

	event := Event{Kind: KindOnboardingApproved, Mission: "Skyhawk", RequestID: "req-1"}
	require.NoError(t, multi.Dispatch(context.Background(), event))

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, event, first.events[0])
}

func TestMultiContinuesPastFailures(t *testing.T) {
	failing := &recordingDispatcher{err: errors.New("webhook down")}
	healthy := &recordingDispatcher{}
	multi := Multi{failing, healthy}

	err := multi.Dispatch(context.Background(), Event{Kind: KindDeploymentFailed, RequestID: "req-1"})
	assert.EqualError(t, err, "webhook down")
	assert.Len(t, healthy.events, 1)
}

func TestLogDispatchNeverFails(t *testing.T) {
	err := Log{}.Dispatch(context.Background(), Event{
		Kind:      KindProvisioningCompleted,
		Mission:   "Skyhawk",
		RequestID: "req-1",
		Detail:    map[string]string{"resources": "4"},
	})
	assert.NoError(t, err)
}

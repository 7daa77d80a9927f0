package turn

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

func newTestPoller(api *fakeAPI, clock *fakeClock, deadline time.Duration) *Poller {
	api.clock = clock
	return NewPoller(api, PollerConfig{
		Deadline:     deadline,
		InitialDelay: 700 * time.Millisecond,
		Multiplier:   1.3,
		MaxDelay:     2200 * time.Millisecond,
		Clock:        clock,
	}, zerolog.Nop())
}

func TestAwaitCompletionCompleted(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunQueued), run(assistant.RunInProgress), run(assistant.RunCompleted)}}
	p := newTestPoller(api, clock, 55*time.Second)

	res, err := p.AwaitCompletion(context.Background(), "t", "run_1")
	require.NoError(t, err)
	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, assistant.RunCompleted, res.Run.Status)
}

func TestAwaitCompletionQueuedStraightToTerminal(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunQueued), run(assistant.RunCompleted)}}
	p := newTestPoller(api, clock, 55*time.Second)

	res, err := p.AwaitCompletion(context.Background(), "t", "run_1")
	require.NoError(t, err)
	assert.Equal(t, Completed, res.Outcome)
	assert.Equal(t, 2, res.Polls)
}

func TestAwaitCompletionBackoffSchedule(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunInProgress)}}
	p := newTestPoller(api, clock, 10*time.Second)

	_, err := p.AwaitCompletion(context.Background(), "t", "run_1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(clock.sleeps), 5)
	assert.Equal(t, 700*time.Millisecond, clock.sleeps[0])
	assert.Equal(t, 910*time.Millisecond, clock.sleeps[1])
	for _, d := range clock.sleeps {
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestAwaitCompletionPendingAtDeadline(t *testing.T) {
	clock := newFakeClock()
	clock.callCost = 150 * time.Millisecond
	api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunInProgress)}}
	p := newTestPoller(api, clock, 55*time.Second)
	start := clock.Now()

	res, err := p.AwaitCompletion(context.Background(), "t", "run_1")
	require.NoError(t, err)
	assert.Equal(t, Pending, res.Outcome)
	assert.Equal(t, assistant.RunInProgress, res.Run.Status)

	total := clock.Now().Sub(start)
	assert.GreaterOrEqual(t, total, 55*time.Second)
	assert.LessOrEqual(t, total, 55*time.Second+2200*time.Millisecond)
}

func TestAwaitCompletionTerminalFailures(t *testing.T) {
	failed := run(assistant.RunFailed)
	failed.LastError = &assistant.RunError{Code: "rate_limit_exceeded", Message: "rate_limited"}

	tests := []struct {
		name     string
		run      assistant.Run
		detail   string
		timedOut bool
	}{
		{name: "failed carries last error", run: failed, detail: "rate_limited"},
		{name: "failed without detail", run: run(assistant.RunFailed), detail: "Assistant run failed"},
		{name: "expired", run: run(assistant.RunExpired), detail: "Run expired", timedOut: true},
		{name: "cancelled", run: run(assistant.RunCancelled), detail: "Run cancelled", timedOut: true},
		{name: "incomplete", run: run(assistant.RunIncomplete), detail: "Run incomplete"},
		{name: "unknown status", run: run("exploded"), detail: `Run ended with unexpected status "exploded"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunInProgress), tt.run}}
			p := newTestPoller(api, clock, 55*time.Second)

			_, err := p.AwaitCompletion(context.Background(), "t", "run_1")
			var runErr *RunFailedError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, tt.detail, runErr.Error())
			assert.Equal(t, tt.timedOut, runErr.TimedOut())
			assert.Equal(t, 2, api.getRuns)
		})
	}
}

func TestAwaitCompletionRequiresAction(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunRequiresAction)}}
	p := newTestPoller(api, clock, 55*time.Second)

	_, err := p.AwaitCompletion(context.Background(), "t", "run_1")
	assert.ErrorIs(t, err, ErrRequiresAction)
	assert.Equal(t, 1, api.getRuns)
}

func TestAwaitCompletionRemoteError(t *testing.T) {
	clock := newFakeClock()
	remote := &assistant.RemoteServiceError{Op: "runs.get", StatusCode: 503}
	api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunQueued)}, getRunErr: remote}
	p := newTestPoller(api, clock, 55*time.Second)

	_, err := p.AwaitCompletion(context.Background(), "t", "run_1")
	assert.ErrorIs(t, err, remote)
}

func TestAwaitCompletionContextCancelled(t *testing.T) {
	clock := newFakeClock()
	api := &fakeAPI{statuses: []assistant.Run{run(assistant.RunInProgress)}}
	p := newTestPoller(api, clock, 55*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.AwaitCompletion(ctx, "t", "run_1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, api.getRuns)
}

func TestPeek(t *testing.T) {
	p := newTestPoller(&fakeAPI{latest: []*assistant.Message{assistantMessage("Hi there")}}, newFakeClock(), time.Second)
	msg, ok, err := p.Peek(context.Background(), "t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "msg_a", msg.ID)

	p = newTestPoller(&fakeAPI{latest: []*assistant.Message{{Role: assistant.RoleUser}}}, newFakeClock(), time.Second)
	_, ok, err = p.Peek(context.Background(), "t")
	require.NoError(t, err)
	assert.False(t, ok)

	p = newTestPoller(&fakeAPI{}, newFakeClock(), time.Second)
	_, ok, err = p.Peek(context.Background(), "t")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAwaitAssistantMessage(t *testing.T) {
	clock := newFakeClock()
	user := &assistant.Message{Role: assistant.RoleUser, Content: []assistant.ContentBlock{{Type: "text", Text: &assistant.TextContent{Value: "q"}}}}
	api := &fakeAPI{latest: []*assistant.Message{user, user, assistantMessage("answer")}}
	p := newTestPoller(api, clock, 55*time.Second)

	res, err := p.AwaitAssistantMessage(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, Completed, res.Outcome)
	require.NotNil(t, res.Message)
	assert.Equal(t, 3, res.Polls)

	clock = newFakeClock()
	p = newTestPoller(&fakeAPI{latest: []*assistant.Message{user}}, clock, 5*time.Second)
	res, err = p.AwaitAssistantMessage(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, Pending, res.Outcome)
	assert.Nil(t, res.Message)
}

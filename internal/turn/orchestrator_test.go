package turn

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

func TestSubmitTurnCreatesThreadOnFirstTurn(t *testing.T) {
	api := &fakeAPI{}
	o := NewOrchestrator(api, "asst_1", "FOLLOW-UP MODE", zerolog.Nop())

	sub, err := o.SubmitTurn(context.Background(), "", "hello", true)
	require.NoError(t, err)
	assert.Equal(t, Submission{ThreadID: "thread_new", RunID: "run_1", FirstTurn: true}, sub)
	assert.Equal(t, 1, api.threadSeq)
	assert.Equal(t, []string{"hello"}, api.messages)
	require.Len(t, api.runReqs, 1)
	assert.Equal(t, "asst_1", api.runReqs[0].AssistantID)
	assert.Empty(t, api.runReqs[0].Instructions, "first turn never gets the follow-up override")
}

func TestSubmitTurnReusesThread(t *testing.T) {
	tests := []struct {
		name     string
		followup bool
		want     string
	}{
		{name: "followup applies override", followup: true, want: "FOLLOW-UP MODE"},
		{name: "plain turn keeps assistant instructions", followup: false, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			o := NewOrchestrator(api, "asst_1", "  FOLLOW-UP MODE\n", zerolog.Nop())

			sub, err := o.SubmitTurn(context.Background(), " thread_9 ", "more", tt.followup)
			require.NoError(t, err)
			assert.Equal(t, "thread_9", sub.ThreadID)
			assert.False(t, sub.FirstTurn)
			assert.Zero(t, api.threadSeq)
			require.Len(t, api.runReqs, 1)
			assert.Equal(t, tt.want, api.runReqs[0].Instructions)
		})
	}
}

func TestSubmitTurnPropagatesRemoteError(t *testing.T) {
	boom := &assistant.RemoteServiceError{Op: "threads.create", StatusCode: 500}
	api := &fakeAPI{createErr: boom}
	o := NewOrchestrator(api, "asst_1", "", zerolog.Nop())

	_, err := o.SubmitTurn(context.Background(), "", "hi", false)
	assert.True(t, errors.Is(err, boom))
	assert.Empty(t, api.messages)
}

func TestAnswer(t *testing.T) {
	o := NewOrchestrator(&fakeAPI{latest: []*assistant.Message{assistantMessage("Try resting.")}}, "a", "", zerolog.Nop())
	_, text, err := o.Answer(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "Try resting.", text.Value)

	var protoErr *assistant.ProtocolError
	empty := NewOrchestrator(&fakeAPI{}, "a", "", zerolog.Nop())
	_, _, err = empty.Answer(context.Background(), "t")
	assert.ErrorAs(t, err, &protoErr)

	userOnly := NewOrchestrator(&fakeAPI{latest: []*assistant.Message{{Role: assistant.RoleUser}}}, "a", "", zerolog.Nop())
	_, _, err = userOnly.Answer(context.Background(), "t")
	assert.ErrorAs(t, err, &protoErr)
}

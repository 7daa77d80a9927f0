// Package turn drives one conversational turn against the remote assistant
// service: thread and message creation, run start, and the deadline-bounded
// wait for the run to finish.
package turn

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

// RemoteAPI is the subset of the assistant client a turn needs.
type RemoteAPI interface {
	CreateThread(ctx context.Context) (assistant.Thread, error)
	CreateMessage(ctx context.Context, threadID, content string) (assistant.Message, error)
	CreateRun(ctx context.Context, threadID string, req assistant.RunRequest) (assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (assistant.Run, error)
	LatestMessage(ctx context.Context, threadID string) (*assistant.Message, error)
}

// Submission identifies a started run.
type Submission struct {
	ThreadID  string
	RunID     string
	FirstTurn bool
}

type Orchestrator struct {
	api                  RemoteAPI
	assistantID          string
	followupInstructions string
	log                  zerolog.Logger
}

func NewOrchestrator(api RemoteAPI, assistantID, followupInstructions string, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		api:                  api,
		assistantID:          assistantID,
		followupInstructions: strings.TrimSpace(followupInstructions),
		log:                  logger,
	}
}

// SubmitTurn appends message to the thread (creating the thread when
// threadID is empty) and starts a run. The follow-up instruction override
// is applied only when followup is set and the thread already existed: a
// first turn always gets the assistant's full answer, whatever the client
// claims.
func (o *Orchestrator) SubmitTurn(ctx context.Context, threadID, message string, followup bool) (Submission, error) {
	sub := Submission{ThreadID: strings.TrimSpace(threadID)}
	if sub.ThreadID == "" {
		thread, err := o.api.CreateThread(ctx)
		if err != nil {
			return Submission{}, err
		}
		sub.ThreadID = thread.ID
		sub.FirstTurn = true
	}

	if _, err := o.api.CreateMessage(ctx, sub.ThreadID, message); err != nil {
		return Submission{}, err
	}

	req := assistant.RunRequest{AssistantID: o.assistantID}
	if followup && !sub.FirstTurn && o.followupInstructions != "" {
		req.Instructions = o.followupInstructions
	}
	run, err := o.api.CreateRun(ctx, sub.ThreadID, req)
	if err != nil {
		return Submission{}, err
	}
	sub.RunID = run.ID

	o.log.Debug().
		Str("thread_id", sub.ThreadID).
		Str("run_id", sub.RunID).
		Bool("first_turn", sub.FirstTurn).
		Bool("followup_override", req.Instructions != "").
		Msg("turn: run started")
	return sub, nil
}

// Answer fetches the newest thread message and returns its text. A missing
// or non-assistant message after a completed run is a protocol error rather
// than an empty answer.
func (o *Orchestrator) Answer(ctx context.Context, threadID string) (assistant.Message, assistant.TextContent, error) {
	msg, err := o.api.LatestMessage(ctx, threadID)
	if err != nil {
		return assistant.Message{}, assistant.TextContent{}, err
	}
	return answerFrom(msg)
}

func answerFrom(msg *assistant.Message) (assistant.Message, assistant.TextContent, error) {
	if msg == nil {
		return assistant.Message{}, assistant.TextContent{}, &assistant.ProtocolError{Op: "messages.list", Err: errors.New("thread has no messages")}
	}
	if msg.Role != assistant.RoleAssistant {
		return assistant.Message{}, assistant.TextContent{}, &assistant.ProtocolError{Op: "messages.list", Err: errors.New("latest message is not from the assistant")}
	}
	text, ok := msg.Text()
	if !ok {
		return assistant.Message{}, assistant.TextContent{}, &assistant.ProtocolError{Op: "messages.list", Err: errors.New("assistant message has no text content")}
	}
	return *msg, text, nil
}

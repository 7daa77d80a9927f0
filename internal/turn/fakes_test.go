package turn

import (
	"context"
	"sync"
	"time"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// callCost is added to the clock on every remote call.
	callCost time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAPI struct {
	clock *fakeClock

	threadSeq int
	messages  []string
	runReqs   []assistant.RunRequest
	statuses  []assistant.Run
	getRuns   int
	latest    []*assistant.Message
	listCalls int
	createErr error
	getRunErr error
}

func (f *fakeAPI) CreateThread(context.Context) (assistant.Thread, error) {
	if f.createErr != nil {
		return assistant.Thread{}, f.createErr
	}
	f.threadSeq++
	return assistant.Thread{ID: "thread_new"}, nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, _ string, content string) (assistant.Message, error) {
	f.messages = append(f.messages, content)
	return assistant.Message{ID: "msg_user", Role: assistant.RoleUser}, nil
}

func (f *fakeAPI) CreateRun(_ context.Context, threadID string, req assistant.RunRequest) (assistant.Run, error) {
	f.runReqs = append(f.runReqs, req)
	return assistant.Run{ID: "run_1", ThreadID: threadID, Status: assistant.RunQueued}, nil
}

// GetRun replays statuses in order and repeats the last one forever.
func (f *fakeAPI) GetRun(context.Context, string, string) (assistant.Run, error) {
	if f.clock != nil {
		f.clock.advance(f.clock.callCost)
	}
	if f.getRunErr != nil {
		return assistant.Run{}, f.getRunErr
	}
	i := f.getRuns
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.getRuns++
	return f.statuses[i], nil
}

func (f *fakeAPI) LatestMessage(context.Context, string) (*assistant.Message, error) {
	if f.clock != nil {
		f.clock.advance(f.clock.callCost)
	}
	i := f.listCalls
	f.listCalls++
	if len(f.latest) == 0 {
		return nil, nil
	}
	if i >= len(f.latest) {
		i = len(f.latest) - 1
	}
	return f.latest[i], nil
}

func run(status assistant.RunStatus) assistant.Run {
	return assistant.Run{ID: "run_1", Status: status}
}

func assistantMessage(text string) *assistant.Message {
	return &assistant.Message{
		ID:   "msg_a",
		Role: assistant.RoleAssistant,
		Content: []assistant.ContentBlock{
			{Type: "text", Text: &assistant.TextContent{Value: text}},
		},
	}
}

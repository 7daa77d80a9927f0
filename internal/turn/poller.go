package turn

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

// Clock lets tests drive the governor without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Outcome of a governed wait.
type Outcome int

const (
	Completed Outcome = iota
	Pending
)

func (o Outcome) String() string {
	if o == Pending {
		return "pending"
	}
	return "completed"
}

// Result describes how a governed wait ended.
type Result struct {
	Outcome Outcome
	Run     assistant.Run
	Message *assistant.Message
	Polls   int
	Elapsed time.Duration
}

type PollerConfig struct {
	Deadline     time.Duration
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Clock        Clock
}

// Poller waits for runs within a fixed wall-clock budget. When the budget
// runs out it reports Pending instead of failing, so the caller can answer
// before its hosting platform kills the invocation.
type Poller struct {
	api          RemoteAPI
	deadline     time.Duration
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	clock        Clock
	log          zerolog.Logger
}

func NewPoller(api RemoteAPI, cfg PollerConfig, logger zerolog.Logger) *Poller {
	p := &Poller{
		api:          api,
		deadline:     cfg.Deadline,
		initialDelay: cfg.InitialDelay,
		multiplier:   cfg.Multiplier,
		maxDelay:     cfg.MaxDelay,
		clock:        cfg.Clock,
		log:          logger,
	}
	if p.deadline <= 0 {
		p.deadline = 55 * time.Second
	}
	if p.initialDelay <= 0 {
		p.initialDelay = 700 * time.Millisecond
	}
	if p.multiplier < 1 {
		p.multiplier = 1.3
	}
	if p.maxDelay < p.initialDelay {
		p.maxDelay = p.initialDelay
	}
	if p.clock == nil {
		p.clock = SystemClock
	}
	return p
}

// Deadline returns the wall-clock budget of one governed wait.
func (p *Poller) Deadline() time.Duration { return p.deadline }

func (p *Poller) nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * p.multiplier)
	if next > p.maxDelay {
		next = p.maxDelay
	}
	return next
}

// govern calls check after each backoff sleep until it reports done, returns
// an error, or the budget is spent. Sleeps are clipped to the remaining
// budget so the wait never overruns the deadline by more than one check.
func (p *Poller) govern(ctx context.Context, check func(context.Context) (bool, error)) (polls int, elapsed time.Duration, pending bool, err error) {
	start := p.clock.Now()
	delay := p.initialDelay
	for {
		elapsed = p.clock.Now().Sub(start)
		remaining := p.deadline - elapsed
		if remaining <= 0 {
			return polls, elapsed, true, nil
		}
		wait := delay
		if wait > remaining {
			wait = remaining
		}
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return polls, p.clock.Now().Sub(start), false, err
		}
		delay = p.nextDelay(delay)
		polls++
		done, err := check(ctx)
		if err != nil || done {
			return polls, p.clock.Now().Sub(start), false, err
		}
	}
}

// AwaitCompletion polls the run until it completes, fails, or the deadline
// passes. Statuses the governor does not know are treated as terminal
// failures rather than polled forever.
func (p *Poller) AwaitCompletion(ctx context.Context, threadID, runID string) (Result, error) {
	var last assistant.Run
	check := func(ctx context.Context) (bool, error) {
		run, err := p.api.GetRun(ctx, threadID, runID)
		if err != nil {
			return false, err
		}
		if run.Status != last.Status {
			p.log.Debug().
				Str("run_id", runID).
				Str("from", string(last.Status)).
				Str("to", string(run.Status)).
				Msg("turn: run status changed")
		}
		last = run
		switch {
		case run.Status == assistant.RunCompleted:
			return true, nil
		case !run.Status.Terminal():
			return false, nil
		default:
			return true, runFailure(run)
		}
	}

	polls, elapsed, pending, err := p.govern(ctx, check)
	res := Result{Outcome: Completed, Run: last, Polls: polls, Elapsed: elapsed}
	if err != nil {
		return res, err
	}
	if pending {
		res.Outcome = Pending
		p.log.Info().
			Str("thread_id", threadID).
			Str("run_id", runID).
			Int("polls", polls).
			Dur("elapsed", elapsed).
			Msg("turn: deadline reached, run still pending")
	}
	return res, nil
}

// Peek reports the newest message of the thread if it was written by the
// assistant. It does not wait.
func (p *Poller) Peek(ctx context.Context, threadID string) (*assistant.Message, bool, error) {
	msg, err := p.api.LatestMessage(ctx, threadID)
	if err != nil {
		return nil, false, err
	}
	if msg == nil || msg.Role != assistant.RoleAssistant {
		return nil, false, nil
	}
	if _, ok := msg.Text(); !ok {
		return nil, false, nil
	}
	return msg, true, nil
}

// AwaitAssistantMessage polls the thread until an assistant message shows
// up or the deadline passes. It serves clients that come back for the
// answer to a run that was still pending on their previous request.
func (p *Poller) AwaitAssistantMessage(ctx context.Context, threadID string) (Result, error) {
	var found *assistant.Message
	check := func(ctx context.Context) (bool, error) {
		msg, ok, err := p.Peek(ctx, threadID)
		if err != nil || !ok {
			return false, err
		}
		found = msg
		return true, nil
	}

	polls, elapsed, pending, err := p.govern(ctx, check)
	res := Result{Outcome: Completed, Message: found, Polls: polls, Elapsed: elapsed}
	if err != nil {
		return res, err
	}
	if pending {
		res.Outcome = Pending
	}
	return res, nil
}

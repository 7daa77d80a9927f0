package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/mascot/config"
	"github.com/mohammad-safakhou/mascot/internal/assemble"
	"github.com/mohammad-safakhou/mascot/internal/assistant"
	"github.com/mohammad-safakhou/mascot/internal/curation"
	"github.com/mohammad-safakhou/mascot/internal/registry"
	"github.com/mohammad-safakhou/mascot/internal/turn"
)

const maxRequestBytes = 64 << 10

type mascotRequest struct {
	Message       string `json:"message"`
	ThreadID      string `json:"thread_id"`
	Followup      bool   `json:"followup"`
	CategoryLabel string `json:"categoryLabel"`
	Peek          bool   `json:"peek"`
}

type mascotResponse struct {
	Output   string            `json:"output"`
	Sources  []curation.Source `json:"sources"`
	ThreadID string            `json:"thread_id"`
}

type pendingResponse struct {
	Pending  bool   `json:"pending"`
	ThreadID string `json:"thread_id"`
}

// registryLoader is satisfied by *registry.Loader.
type registryLoader interface {
	Load(ctx context.Context, origin string) ([]registry.Entry, error)
}

type fileLookup interface {
	GetFile(ctx context.Context, fileID string) (assistant.File, error)
}

// MascotHandler serves one chat turn: start or peek a run, wait within the
// deadline, then attach curated sources to the answer.
type MascotHandler struct {
	assistantCfg config.AssistantConfig
	orch         *turn.Orchestrator
	poller       *turn.Poller
	registry     registryLoader
	files        fileLookup
	curator      *curation.Curator
	liveness     *curation.LivenessChecker
	metrics      *Metrics
	log          zerolog.Logger
}

func (h *MascotHandler) Register(e *echo.Echo) {
	e.Any("/api/mascot", h.handle)
	e.Any("/api/chat", h.handle)
}

func (h *MascotHandler) handle(c echo.Context) error {
	deadline := time.Now().Add(h.poller.Deadline())
	if c.Request().Method != http.MethodPost {
		return echo.NewHTTPError(http.StatusMethodNotAllowed, "Use POST")
	}
	var req mascotRequest
	if err := decodeBody(c.Request().Body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body").SetInternal(err)
	}
	req.Message = strings.TrimSpace(req.Message)
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	if !req.Peek && req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing message")
	}
	if req.Peek && req.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing thread_id")
	}
	if err := h.assistantCfg.Validate(); err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	if req.Peek {
		return h.peek(ctx, c, req, deadline)
	}
	return h.submit(ctx, c, req, deadline)
}

func (h *MascotHandler) submit(ctx context.Context, c echo.Context, req mascotRequest, deadline time.Time) error {
	sub, err := h.orch.SubmitTurn(ctx, req.ThreadID, req.Message, req.Followup)
	if err != nil {
		h.metrics.observeTurn("error", 0)
		return httpError(err)
	}
	res, err := h.poller.AwaitCompletion(ctx, sub.ThreadID, sub.RunID)
	if err != nil {
		h.metrics.observeTurn(outcomeLabel(err), res.Polls)
		return httpError(err)
	}
	if res.Outcome == turn.Pending {
		h.metrics.observeTurn("pending", res.Polls)
		return c.JSON(http.StatusAccepted, pendingResponse{Pending: true, ThreadID: sub.ThreadID})
	}
	h.metrics.observeTurn("completed", res.Polls)

	_, text, err := h.orch.Answer(ctx, sub.ThreadID)
	if err != nil {
		return httpError(err)
	}
	return h.answer(ctx, c, req, sub.ThreadID, text, deadline)
}

func (h *MascotHandler) peek(ctx context.Context, c echo.Context, req mascotRequest, deadline time.Time) error {
	res, err := h.poller.AwaitAssistantMessage(ctx, req.ThreadID)
	if err != nil {
		return httpError(err)
	}
	if res.Outcome == turn.Pending || res.Message == nil {
		h.metrics.observeTurn("pending", res.Polls)
		return c.JSON(http.StatusAccepted, pendingResponse{Pending: true, ThreadID: req.ThreadID})
	}
	h.metrics.observeTurn("peeked", res.Polls)
	text, _ := res.Message.Text()
	return h.answer(ctx, c, req, req.ThreadID, text, deadline)
}

func (h *MascotHandler) answer(ctx context.Context, c echo.Context, req mascotRequest, threadID string, text assistant.TextContent, deadline time.Time) error {
	sources := h.sources(ctx, c, req, text.Annotations, deadline)

	markers := make([]string, 0, len(text.Annotations))
	for _, a := range text.Annotations {
		markers = append(markers, a.Text)
	}
	result := assemble.Assemble(assemble.StripMarkers(text.Value, markers), sources)
	h.metrics.observeAnswer(len(sources), result.Neutralized)

	h.log.Info().
		Str("thread_id", threadID).
		Int("sources", len(sources)).
		Int("neutralized", result.Neutralized).
		Msg("mascot: answered")
	return c.JSON(http.StatusOK, mascotResponse{Output: result.Text, Sources: sources, ThreadID: threadID})
}

// sources never fails the turn: registry and liveness problems only reduce
// the list.
func (h *MascotHandler) sources(ctx context.Context, c echo.Context, req mascotRequest, annotations []assistant.Annotation, deadline time.Time) []curation.Source {
	links := []curation.Source{}
	category := curation.ResolveCategory(req.CategoryLabel, req.Message)
	if req.Message != "" || category != "" {
		entries, err := h.registry.Load(ctx, requestOrigin(c))
		if err != nil {
			h.log.Warn().Err(err).Msg("mascot: registry unavailable, answering without curated links")
		}
		links = h.curator.Curate(entries, category, req.Message, 0)
		if h.liveness != nil {
			links = h.validate(ctx, entries, links, deadline)
		}
	}

	var resolve curation.FileResolver
	if h.files != nil {
		resolve = func(ctx context.Context, id string) (string, error) {
			f, err := h.files.GetFile(ctx, id)
			return f.Filename, err
		}
	}
	files := curation.FileSources(ctx, annotations, resolve)
	return curation.Merge(links, files, h.curator.Max())
}

// validate checks the curated links within what is left of the request
// deadline. When none survives, live preferred entries take their place.
func (h *MascotHandler) validate(ctx context.Context, entries []registry.Entry, links []curation.Source, deadline time.Time) []curation.Source {
	if time.Until(deadline) <= 0 {
		h.log.Warn().Int("links", len(links)).Msg("mascot: deadline spent, skipping liveness checks")
		return links
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	links = h.liveness.Validate(ctx, links)
	if len(curation.Linked(links)) > 0 {
		return links
	}
	fallback := curation.Linked(h.liveness.Validate(ctx, h.curator.Preferred(entries, 0)))
	if len(fallback) == 0 {
		return links
	}
	h.log.Info().Int("preferred", len(fallback)).Msg("mascot: curated links unavailable, using preferred sources")
	return fallback
}

func requestOrigin(c echo.Context) string {
	host := c.Request().Host
	if host == "" {
		return ""
	}
	return c.Scheme() + "://" + host
}

func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxRequestBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

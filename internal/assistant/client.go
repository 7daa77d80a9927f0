// Package assistant is a client for the remote thread/message/run API
// (OpenAI Assistants v2 wire format).
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	betaHeader     = "assistants=v2"
	maxBodyBytes   = 4 << 20
)

// Observer receives one callback per outbound call. Status is 0 when the
// call failed before a response arrived.
type Observer interface {
	ObserveCall(op string, status int, elapsed time.Duration)
}

type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds every single outbound call, independently of any
	// deadline carried by the caller's context.
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   Observer
}

type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	observer   Observer
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
		observer:   cfg.Observer,
	}
}

func (c *Client) CreateThread(ctx context.Context) (Thread, error) {
	var thread Thread
	if err := c.doJSON(ctx, "threads.create", http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return Thread{}, err
	}
	if thread.ID == "" {
		return Thread{}, &ProtocolError{Op: "threads.create", Err: errors.New("missing thread id")}
	}
	return thread, nil
}

func (c *Client) CreateMessage(ctx context.Context, threadID, content string) (Message, error) {
	body := map[string]string{"role": RoleUser, "content": content}
	var msg Message
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.doJSON(ctx, "messages.create", http.MethodPost, path, body, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (c *Client) CreateRun(ctx context.Context, threadID string, req RunRequest) (Run, error) {
	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.doJSON(ctx, "runs.create", http.MethodPost, path, req, &run); err != nil {
		return Run{}, err
	}
	if run.ID == "" {
		return Run{}, &ProtocolError{Op: "runs.create", Err: errors.New("missing run id")}
	}
	return run, nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.doJSON(ctx, "runs.get", http.MethodGet, path, nil, &run); err != nil {
		return Run{}, err
	}
	if run.Status == "" {
		return Run{}, &ProtocolError{Op: "runs.get", Err: errors.New("missing run status")}
	}
	return run, nil
}

// LatestMessage returns the newest message of the thread, or nil when the
// thread has none.
func (c *Client) LatestMessage(ctx context.Context, threadID string) (*Message, error) {
	var list messageList
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc&limit=1"
	if err := c.doJSON(ctx, "messages.list", http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	msg := list.Data[0]
	return &msg, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var file File
	if err := c.doJSON(ctx, "files.get", http.MethodGet, "/files/"+url.PathEscape(fileID), nil, &file); err != nil {
		return File{}, err
	}
	return file, nil
}

// OpenFileContent streams the raw content of an uploaded file. The caller
// must close the returned body. The per-call timeout does not apply here
// since the body is consumed after return; ctx bounds the transfer.
func (c *Client) OpenFileContent(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	const op = "files.content"
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return nil, "", err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0, start)
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	c.observe(op, resp.StatusCode, start)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", &RemoteServiceError{Op: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return resp.Body, contentType, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", betaHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0, start)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.observe(op, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteServiceError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(strings.TrimSpace(string(raw)), maxErrorBody),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) observe(op string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveCall(op, status, time.Since(start))
	}
}

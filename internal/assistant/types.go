package assistant

import "strings"

// RunStatus is the lifecycle state reported for a run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCancelling     RunStatus = "cancelling"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunExpired        RunStatus = "expired"
	RunCancelled      RunStatus = "cancelled"
	RunIncomplete     RunStatus = "incomplete"
	RunRequiresAction RunStatus = "requires_action"
)

// Terminal reports whether polling must stop. Only queued, in_progress and
// cancelling are non-terminal; an unknown status is treated as terminal so
// a protocol change cannot keep a request spinning until the deadline.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return false
	default:
		return true
	}
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Thread struct {
	ID string `json:"id"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    RunStatus `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// RunRequest starts a run. Instructions, when set, override the assistant's
// configured instructions for this run only.
type RunRequest struct {
	AssistantID  string `json:"assistant_id"`
	Instructions string `json:"instructions,omitempty"`
}

type FileCitation struct {
	FileID string `json:"file_id"`
	Quote  string `json:"quote,omitempty"`
}

type FilePath struct {
	FileID string `json:"file_id"`
}

// Annotation marks a span of the text that cites an uploaded file.
type Annotation struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	FileCitation *FileCitation `json:"file_citation,omitempty"`
	FilePath     *FilePath     `json:"file_path,omitempty"`
}

// FileID returns the cited file, or "" for annotation kinds without one.
func (a Annotation) FileID() string {
	switch {
	case a.FileCitation != nil:
		return strings.TrimSpace(a.FileCitation.FileID)
	case a.FilePath != nil:
		return strings.TrimSpace(a.FilePath.FileID)
	}
	return ""
}

type TextContent struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations"`
}

type ContentBlock struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

type Message struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	RunID     string         `json:"run_id"`
	Role      string         `json:"role"`
	CreatedAt int64          `json:"created_at"`
	Content   []ContentBlock `json:"content"`
}

// Text returns the first non-empty text block and its annotations.
func (m Message) Text() (TextContent, bool) {
	for _, block := range m.Content {
		if block.Type == "text" && block.Text != nil && strings.TrimSpace(block.Text.Value) != "" {
			return *block.Text, true
		}
	}
	return TextContent{}, false
}

type messageList struct {
	Data []Message `json:"data"`
}

// File is the metadata of an uploaded file.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Purpose  string `json:"purpose"`
}

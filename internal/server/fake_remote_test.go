package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeRemote imitates the assistant service closely enough for end-to-end
// handler tests.
type fakeRemote struct {
	mu        sync.Mutex
	statuses  []string
	runPolls  int
	lastError string
	reply     string
	// replyReady gates the assistant message; nil means always ready.
	replyReady  func() bool
	annotations string
	failCreate  int
	runBodies   []map[string]any
	calls       []string
}

func (f *fakeRemote) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeRemote) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/v1")
	f.calls = append(f.calls, r.Method+" "+path)

	switch {
	case r.Method == http.MethodPost && path == "/threads":
		if f.failCreate != 0 {
			w.WriteHeader(f.failCreate)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream broke"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"thread_1"}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/messages"):
		_, _ = io.WriteString(w, `{"id":"msg_u","role":"user"}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/runs"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.runBodies = append(f.runBodies, body)
		_, _ = io.WriteString(w, `{"id":"run_1","status":"queued"}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/runs/"):
		i := f.runPolls
		if i >= len(f.statuses) {
			i = len(f.statuses) - 1
		}
		f.runPolls++
		status := f.statuses[i]
		run := map[string]any{"id": "run_1", "status": status}
		if status == "failed" && f.lastError != "" {
			run["last_error"] = map[string]string{"code": "rate_limit_exceeded", "message": f.lastError}
		}
		_ = json.NewEncoder(w).Encode(run)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/messages"):
		if f.replyReady != nil && !f.replyReady() {
			_, _ = io.WriteString(w, `{"data":[{"id":"msg_u","role":"user","content":[{"type":"text","text":{"value":"q","annotations":[]}}]}]}`)
			return
		}
		annotations := f.annotations
		if annotations == "" {
			annotations = "[]"
		}
		reply, _ := json.Marshal(f.reply)
		_, _ = io.WriteString(w, `{"data":[{"id":"msg_a","role":"assistant","content":[{"type":"text","text":{"value":`+string(reply)+`,"annotations":`+annotations+`}}]}]}`)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/content"):
		if strings.Contains(path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "No such File object")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.7 fake")
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/files/"):
		id := strings.TrimPrefix(path, "/files/")
		_, _ = io.WriteString(w, `{"id":"`+id+`","filename":"Return to play.pdf"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRemote) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

package curation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

func TestFileSources(t *testing.T) {
	annotations := []assistant.Annotation{
		{Type: "file_citation", FileCitation: &assistant.FileCitation{FileID: "file_a"}},
		{Type: "file_citation", FileCitation: &assistant.FileCitation{FileID: "file_a"}},
		{Type: "file_path", FilePath: &assistant.FilePath{FileID: "file_b"}},
		{Type: "url_citation"},
	}
	resolve := func(_ context.Context, id string) (string, error) {
		if id == "file_a" {
			return "Return to play guide.pdf", nil
		}
		return "", errors.New("not found")
	}

	got := FileSources(context.Background(), annotations, resolve)
	assert.Equal(t, []Source{
		{Title: "Return to play guide.pdf", FileID: "file_a"},
		{Title: "file_b", FileID: "file_b"},
	}, got)
}

func TestMerge(t *testing.T) {
	links := []Source{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	files := []Source{{FileID: "f1"}, {FileID: "f2"}}
	assert.Len(t, Merge(links, files, 4), 4)
	assert.Len(t, Merge(links, files, 0), 5)
	assert.Len(t, Merge(nil, files, 4), 2)
}

package curation

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

// FileResolver looks up a human-readable name for an uploaded file.
type FileResolver func(ctx context.Context, fileID string) (string, error)

// FileSources turns message annotations into file-backed sources, one per
// file id. Names are resolved best-effort; the id stands in for a name the
// resolver cannot provide.
func FileSources(ctx context.Context, annotations []assistant.Annotation, resolve FileResolver) []Source {
	var out []Source
	seen := make(map[string]struct{})
	for _, a := range annotations {
		id := a.FileID()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		title := id
		if resolve != nil {
			if name, err := resolve(ctx, id); err == nil && strings.TrimSpace(name) != "" {
				title = strings.TrimSpace(name)
			}
		}
		out = append(out, Source{Title: title, FileID: id})
	}
	return out
}

// Merge appends file sources after link sources while the total stays
// within max.
func Merge(links, files []Source, max int) []Source {
	out := make([]Source, 0, len(links)+len(files))
	out = append(out, links...)
	for _, f := range files {
		if max > 0 && len(out) >= max {
			break
		}
		out = append(out, f)
	}
	return out
}

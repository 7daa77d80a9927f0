package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/mascot/config"
	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

type fileContent interface {
	OpenFileContent(ctx context.Context, fileID string) (io.ReadCloser, string, error)
}

// FileHandler proxies uploaded files cited in answers so the browser never
// needs the service credential.
type FileHandler struct {
	assistantCfg config.AssistantConfig
	files        fileContent
}

func (h *FileHandler) Register(e *echo.Echo) {
	e.GET("/api/file", h.download)
}

func (h *FileHandler) download(c echo.Context) error {
	id := firstNonEmpty(c.QueryParam("file_id"), c.QueryParam("id"), c.QueryParam("fid"))
	if strings.TrimSpace(h.assistantCfg.APIKey) == "" || id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing OPENAI_API_KEY or file_id")
	}

	body, contentType, err := h.files.OpenFileContent(c.Request().Context(), id)
	if err != nil {
		var remote *assistant.RemoteServiceError
		if errors.As(err, &remote) {
			msg := remote.Body
			if msg == "" {
				msg = "file fetch error"
			}
			return echo.NewHTTPError(remote.StatusCode, msg).SetInternal(err)
		}
		return httpError(err)
	}
	defer body.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", id+".pdf"))
	return c.Stream(http.StatusOK, contentType, body)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

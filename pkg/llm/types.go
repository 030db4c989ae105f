// Package llm provides language model backends behind a priority-ordered
// fallback manager. A backend reports three outcomes: a usable result, an
// empty result (the model declined or produced nothing), or an error. The
// manager treats the last two differently only in how it logs them; both
// mean "try the next backend".
package llm

import (
	"context"
	"path/filepath"
	"strings"
)

// TextRequest asks a backend to generate text for a prompt.
type TextRequest struct {
	Prompt string
	System string
}

// ImageRequest asks a backend to describe or caption an image file.
type ImageRequest struct {
	Path   string
	Prompt string
	System string
}

// VideoRequest asks a backend to describe a video file.
type VideoRequest struct {
	Path   string
	Prompt string
	System string
}

// Result is a backend response. An Empty result with a nil error means the
// backend had nothing usable to say; callers fall back or skip.
type Result struct {
	Text     string
	Provider string
}

// Empty reports whether the result carries no usable text.
func (r Result) Empty() bool {
	return r.Text == ""
}

// Provider is a single language backend.
type Provider interface {
	Name() string
	GenerateText(ctx context.Context, req TextRequest) (Result, error)
	AnalyzeImage(ctx context.Context, req ImageRequest) (Result, error)
	AnalyzeVideo(ctx context.Context, req VideoRequest) (Result, error)
}

// imageMediaType maps a file extension to its MIME type, empty for unknown.
func imageMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}

func videoMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	default:
		return ""
	}
}

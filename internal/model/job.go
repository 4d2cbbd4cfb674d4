package model

import (
	"strings"
	"time"
)

// Job represents a single URL-to-audio conversion unit and its tracked state
type Job struct {
	ID          string        `json:"id"`
	SourceURL   string        `json:"source_url"`
	Status      JobStatus     `json:"status"`
	Progress    float64       `json:"progress"` // 0 to 100
	OutputPath  string        `json:"-"`        // internal path, not exposed via API
	Title       string        `json:"title,omitempty"`
	Metadata    TrackMetadata `json:"metadata,omitempty"`
	SizeBytes   int64         `json:"size,omitempty"`
	Error       string        `json:"error,omitempty"`
	PlaylistID  string        `json:"playlist_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	LastUpdated time.Time     `json:"last_updated"`
}

// DisplayTitle returns title, filename, or URL in order of preference
func (j *Job) DisplayTitle() string {
	if j.Title != "" && !strings.HasPrefix(j.Title, "http") {
		return j.Title
	}

	if j.OutputPath != "" {
		parts := strings.FieldsFunc(j.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return j.SourceURL
}

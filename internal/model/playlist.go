package model

import (
	"time"
)

// Playlist represents an aggregate grouping of jobs created from one
// playlist URL. MemberJobIDs is fixed at creation: insertion order is
// enumeration order, and members are never added or removed afterwards.
type Playlist struct {
	ID           string   `json:"id"`
	SourceURL    string   `json:"source_url"`
	Title        string   `json:"title"`
	Uploader     string   `json:"uploader,omitempty"`
	MemberJobIDs []string `json:"download_ids"`
	ArchivePath  string   `json:"-"`
	ArchiveErr   string   `json:"archive_error,omitempty"`

	// ArchiveStarted claims the one-shot archive build for this playlist
	ArchiveStarted bool `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(id, sourceURL string) *Playlist {
	now := time.Now()
	return &Playlist{
		ID:        id,
		SourceURL: sourceURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeriveStatus computes the aggregate status from member job statuses.
// The result is never stored: it is recomputed on every read so it
// cannot drift from the members.
func (p *Playlist) DeriveStatus(members []JobStatus) PlaylistStatus {
	if p.ArchiveErr != "" {
		return PlaylistStatusError
	}

	completed := 0
	for _, st := range members {
		switch st {
		case JobStatusError:
			return PlaylistStatusError
		case JobStatusCompleted:
			completed++
		}
	}

	if len(members) > 0 && completed == len(members) {
		return PlaylistStatusCompleted
	}
	return PlaylistStatusProcessing
}

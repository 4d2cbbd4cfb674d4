package model

import (
	"fmt"
	"strconv"
	"time"
)

// Default values applied when neither the incoming nor the existing
// metadata carries a field
const (
	DefaultTitle = "Unknown Title"
	DefaultAlbum = "Unknown Album"
	DefaultGenre = "Unknown Genre"
)

// TrackMetadata holds descriptive metadata written into the audio
// file's tag container. Empty fields mean "not known".
type TrackMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Year        string `json:"year,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Comment     string `json:"comment,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// IsZero reports whether no field is populated
func (m TrackMetadata) IsZero() bool {
	return m == TrackMetadata{}
}

// Merge combines incoming metadata with existing tag values. Incoming
// fields take precedence, absent fields fall back to the existing value,
// then to fixed defaults.
func (m TrackMetadata) Merge(existing TrackMetadata) TrackMetadata {
	out := m
	if out.Title == "" {
		out.Title = existing.Title
	}
	if out.Artist == "" {
		out.Artist = existing.Artist
	}
	if out.Album == "" {
		out.Album = existing.Album
	}
	if out.Year == "" {
		out.Year = existing.Year
	}
	if out.Genre == "" {
		out.Genre = existing.Genre
	}
	if out.Comment == "" {
		out.Comment = existing.Comment
	}
	if out.DurationSec == 0 {
		out.DurationSec = existing.DurationSec
	}

	if out.Title == "" {
		out.Title = DefaultTitle
	}
	if out.Album == "" {
		out.Album = DefaultAlbum
	}
	if out.Genre == "" {
		out.Genre = DefaultGenre
	}
	if out.Year == "" {
		out.Year = strconv.Itoa(time.Now().Year())
	}
	return out
}

// DurationString returns the duration formatted as HH:MM:SS or MM:SS,
// or an empty string if unknown
func (m TrackMetadata) DurationString() string {
	if m.DurationSec <= 0 {
		return ""
	}

	hours := m.DurationSec / 3600
	minutes := (m.DurationSec % 3600) / 60
	seconds := m.DurationSec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

package extract

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/ytget/yt-audio-server/internal/model"
)

// VideoInfo is the strict record decoded from the one-shot info query.
// Absent fields stay zero; defaulting happens once, in Metadata.
type VideoInfo struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Uploader   string   `json:"uploader"`
	Duration   float64  `json:"duration"`
	UploadDate string   `json:"upload_date"` // YYYYMMDD
	Categories []string `json:"categories"`
	WebpageURL string   `json:"webpage_url"`
}

// DecodeVideoInfo parses the JSON document printed by the info query
func DecodeVideoInfo(data []byte) (VideoInfo, error) {
	var info VideoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return VideoInfo{}, errors.Wrap(err, "decode video info")
	}
	return info, nil
}

// Metadata converts the raw info record into track metadata with the
// defaulting rules applied: placeholder title, current-year fallback,
// first category as genre, source URL recorded in the comment.
func (v VideoInfo) Metadata(sourceURL string) model.TrackMetadata {
	meta := model.TrackMetadata{
		Title:       v.Title,
		Artist:      v.Uploader,
		Comment:     sourceURL,
		DurationSec: int(v.Duration),
	}

	if meta.Title == "" {
		meta.Title = model.DefaultTitle
	}

	if len(v.UploadDate) >= 4 {
		meta.Year = v.UploadDate[:4]
	} else {
		meta.Year = strconv.Itoa(time.Now().Year())
	}

	if len(v.Categories) > 0 {
		meta.Genre = v.Categories[0]
	}

	return meta
}

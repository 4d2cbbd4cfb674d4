package playlist

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ytget/yt-audio-server/internal/extract"
	"github.com/ytget/yt-audio-server/internal/model"
	"github.com/ytget/yt-audio-server/internal/registry"
)

// PlaylistURLParam marks a URL as referring to a playlist
const PlaylistURLParam = "list="

// ErrNoItemsFound means enumeration of a playlist URL yielded no items
var ErrNoItemsFound = errors.New("no playlist items found")

// watchURLFormat reconstructs a watch URL from a bare item id
const watchURLFormat = "https://www.youtube.com/watch?v=%s"

// Item is one entry of a flat playlist enumeration
type Item struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Uploader         string  `json:"uploader"`
	URL              string  `json:"url"`
	Duration         float64 `json:"duration"`
	PlaylistTitle    string  `json:"playlist_title"`
	PlaylistUploader string  `json:"playlist_uploader"`
}

// Submitter schedules a created job for extraction
type Submitter interface {
	Submit(jobID string, quality int)
}

// Expander turns a playlist URL into one child job per member track
type Expander struct {
	registry *registry.Registry
	runner   extract.Runner
}

// NewExpander creates a playlist expander backed by the given registry
// and extraction runner
func NewExpander(reg *registry.Registry, runner extract.Runner) *Expander {
	return &Expander{registry: reg, runner: runner}
}

// IsPlaylistURL reports whether the URL refers to a playlist
func IsPlaylistURL(url string) bool {
	return strings.Contains(url, PlaylistURLParam)
}

// ExtractPlaylistID returns the playlist identifier encoded in the URL,
// or an empty string when the URL carries none
func ExtractPlaylistID(url string) string {
	_, after, found := strings.Cut(url, PlaylistURLParam)
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "&")
	return id
}

// Enumerate lists the playlist members without downloading anything.
// Malformed lines in the tool output are skipped; an empty result is an
// error so the caller can reject the URL up front.
func (e *Expander) Enumerate(ctx context.Context, url string) ([]Item, error) {
	out, err := e.runner.Enumerate(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "enumerate playlist %s", url)
	}

	var items []Item
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item Item
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			zap.S().Named("playlist").Debugw("skipping malformed enumeration line", "error", err)
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, errors.Wrapf(ErrNoItemsFound, "playlist %s", url)
	}
	return items, nil
}

// Materialize creates the playlist record and one child job per item,
// then submits every child for extraction. The member list is fixed at
// creation; items discovered later never join.
func (e *Expander) Materialize(sourceURL string, items []Item, quality int, submitter Submitter) model.Playlist {
	pl := e.registry.CreatePlaylist(sourceURL)

	title := items[0].PlaylistTitle
	if title == "" {
		title = ExtractPlaylistID(sourceURL)
	}
	uploader := items[0].PlaylistUploader

	memberIDs := make([]string, 0, len(items))
	for _, item := range items {
		url := item.URL
		if url == "" {
			url = fmt.Sprintf(watchURLFormat, item.ID)
		}

		job := e.registry.Create(url)
		e.registry.Update(job.ID, func(j *model.Job) {
			j.PlaylistID = pl.ID
			j.Title = item.Title
			j.Metadata = model.TrackMetadata{
				Title:       item.Title,
				Artist:      uploader,
				Album:       title,
				DurationSec: int(item.Duration),
			}
		})
		memberIDs = append(memberIDs, job.ID)
	}

	e.registry.UpdatePlaylist(pl.ID, func(p *model.Playlist) {
		p.Title = title
		p.Uploader = uploader
		p.MemberJobIDs = memberIDs
	})

	for _, id := range memberIDs {
		submitter.Submit(id, quality)
	}

	updated, _ := e.registry.GetPlaylist(pl.ID)
	return updated
}

// Expand enumerates the playlist URL and materializes the result
func (e *Expander) Expand(ctx context.Context, sourceURL string, quality int, submitter Submitter) (model.Playlist, error) {
	items, err := e.Enumerate(ctx, sourceURL)
	if err != nil {
		return model.Playlist{}, err
	}
	return e.Materialize(sourceURL, items, quality, submitter), nil
}

package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/ytget/yt-audio-server/internal/model"
	"github.com/ytget/yt-audio-server/internal/playlist"
)

// StartRequest is the download submission body
type StartRequest struct {
	URLs    []string `json:"urls" validate:"required,min=1,dive,required,url"`
	Quality int      `json:"quality" validate:"eq=0|gte=96,lte=320"`
}

// StartResponse acknowledges accepted download jobs
type StartResponse struct {
	DownloadIDs []string          `json:"downloadIds"`
	Playlists   []PlaylistSummary `json:"playlists,omitempty"`
	Message     string            `json:"message"`
}

// PlaylistSummary describes one expanded playlist in the start response
type PlaylistSummary struct {
	PlaylistID string `json:"playlistId"`
	Title      string `json:"title"`
	TrackCount int    `json:"trackCount"`
}

// StatusEntry is one per-id element of the status response
type StatusEntry struct {
	ID          string  `json:"id"`
	Status      string  `json:"status,omitempty"`
	Progress    float64 `json:"progress"`
	Title       string  `json:"title,omitempty"`
	Error       string  `json:"error,omitempty"`
	Size        int64   `json:"size,omitempty"`
	Duration    string  `json:"duration,omitempty"`
	LastUpdated string  `json:"lastUpdated,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "malformed request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	// Enumerate every playlist URL before creating anything so a bad
	// playlist fails the whole request with zero side effects.
	type expansion struct {
		url   string
		items []playlist.Item
	}
	var singles []string
	var expansions []expansion
	for _, url := range req.URLs {
		if !playlist.IsPlaylistURL(url) {
			singles = append(singles, url)
			continue
		}
		items, err := s.expander.Enumerate(r.Context(), url)
		if err != nil {
			zap.S().Named("api_server").Warnw("playlist enumeration failed", "url", url, "error", err)
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: fmt.Sprintf("playlist enumeration failed for %s", url)})
			return
		}
		expansions = append(expansions, expansion{url: url, items: items})
	}

	resp := StartResponse{DownloadIDs: []string{}}
	for _, url := range singles {
		// A URL already being processed is not resubmitted.
		if existing, ok := s.registry.FindActiveByURL(url); ok {
			resp.DownloadIDs = append(resp.DownloadIDs, existing.ID)
			continue
		}
		job := s.registry.Create(url)
		resp.DownloadIDs = append(resp.DownloadIDs, job.ID)
		s.sup.Submit(job.ID, req.Quality)
	}
	for _, exp := range expansions {
		pl := s.expander.Materialize(exp.url, exp.items, req.Quality, s.sup)
		resp.DownloadIDs = append(resp.DownloadIDs, pl.MemberJobIDs...)
		resp.Playlists = append(resp.Playlists, PlaylistSummary{
			PlaylistID: pl.ID,
			Title:      pl.Title,
			TrackCount: len(pl.MemberJobIDs),
		})
	}
	resp.Message = fmt.Sprintf("accepted %d download(s)", len(resp.DownloadIDs))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	idsParam := strings.TrimSpace(r.URL.Query().Get("ids"))
	if idsParam == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "ids query parameter is required"})
		return
	}

	var entries []StatusEntry
	for _, id := range strings.Split(idsParam, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		job, ok := s.registry.Get(id)
		if !ok {
			entries = append(entries, StatusEntry{ID: id, Error: "not found"})
			continue
		}
		entries = append(entries, statusEntryOf(job))
	}

	render.JSON(w, r, entries)
}

func statusEntryOf(job model.Job) StatusEntry {
	entry := StatusEntry{
		ID:          job.ID,
		Status:      job.Status.String(),
		Progress:    job.Progress,
		Title:       job.Title,
		Error:       job.Error,
		Size:        job.SizeBytes,
		LastUpdated: job.LastUpdated.UTC().Format(time.RFC3339),
	}
	if job.Metadata.DurationSec > 0 {
		entry.Duration = job.Metadata.DurationString()
	}
	return entry
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, ok := s.registry.Get(id)
	if !ok || job.Status != model.JobStatusCompleted {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "not found"})
		return
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		zap.S().Named("api_server").Warnw("artifact missing for completed job", "job_id", id, "path", job.OutputPath)
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "not found"})
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Error: "not found"})
		return
	}

	filename := filepath.Base(job.OutputPath)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", fi.Size()))

	// A client disconnect mid-stream is not a job failure.
	if _, err := io.Copy(w, f); err != nil {
		zap.S().Named("api_server").Debugw("artifact stream interrupted", "job_id", id, "error", err)
	}
}

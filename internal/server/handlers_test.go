package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-audio-server/internal/config"
	"github.com/ytget/yt-audio-server/internal/extract"
	"github.com/ytget/yt-audio-server/internal/model"
	"github.com/ytget/yt-audio-server/internal/playlist"
	"github.com/ytget/yt-audio-server/internal/registry"
)

type fakeRunner struct {
	enumerateOut []byte
	enumerateErr error
}

func (r *fakeRunner) Probe(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRunner) Enumerate(ctx context.Context, url string) ([]byte, error) {
	return r.enumerateOut, r.enumerateErr
}

func (r *fakeRunner) Download(ctx context.Context, spec extract.DownloadSpec) (extract.Handle, error) {
	return nil, errors.New("not implemented")
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []string
	quality   []int
}

func (s *fakeSubmitter) Submit(jobID string, quality int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, jobID)
	s.quality = append(s.quality, quality)
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

type testEnv struct {
	server    *Server
	registry  *registry.Registry
	submitter *fakeSubmitter
	handler   http.Handler
}

func newTestEnv(t *testing.T, runner extract.Runner) *testEnv {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)

	reg := registry.New()
	sub := &fakeSubmitter{}
	srv := New(cfg, reg, playlist.NewExpander(reg, runner), sub)
	return &testEnv{
		server:    srv,
		registry:  reg,
		submitter: sub,
		handler:   srv.Router(),
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestStartSingleURL(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})

	rec := env.do(t, http.MethodPost, "/downloads/start",
		[]byte(`{"urls":["https://example.com/watch?v=abc"],"quality":192}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.DownloadIDs, 1)
	assert.Empty(t, resp.Playlists)

	assert.Equal(t, 1, env.submitter.count())
	assert.Equal(t, []int{192}, env.submitter.quality)

	job, ok := env.registry.Get(resp.DownloadIDs[0])
	require.True(t, ok)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, "https://example.com/watch?v=abc", job.SourceURL)
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty urls", body: `{"urls":[],"quality":0}`},
		{name: "missing urls", body: `{"quality":0}`},
		{name: "invalid url", body: `{"urls":["not a url"],"quality":0}`},
		{name: "quality below range", body: `{"urls":["https://example.com/watch?v=abc"],"quality":50}`},
		{name: "quality above range", body: `{"urls":["https://example.com/watch?v=abc"],"quality":400}`},
		{name: "malformed json", body: `{"urls":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeRunner{})
			rec := env.do(t, http.MethodPost, "/downloads/start", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, env.registry.List(nil), "no jobs may be created on a rejected request")
			assert.Zero(t, env.submitter.count())
		})
	}
}

func TestStartQualityZeroMeansBest(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	rec := env.do(t, http.MethodPost, "/downloads/start",
		[]byte(`{"urls":["https://example.com/watch?v=abc"],"quality":0}`))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int{0}, env.submitter.quality)
}

func TestStartDuplicateActiveURL(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	body := []byte(`{"urls":["https://example.com/watch?v=abc"],"quality":0}`)

	first := env.do(t, http.MethodPost, "/downloads/start", body)
	require.Equal(t, http.StatusAccepted, first.Code)
	var firstResp StartResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := env.do(t, http.MethodPost, "/downloads/start", body)
	require.Equal(t, http.StatusAccepted, second.Code)
	var secondResp StartResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	assert.Equal(t, firstResp.DownloadIDs, secondResp.DownloadIDs, "live URL reuses its job id")
	assert.Equal(t, 1, env.submitter.count(), "duplicate must not be resubmitted")
}

const playlistEnumeration = `{"id":"vid1","title":"Track One","url":"https://www.youtube.com/watch?v=vid1","playlist_title":"Best Of","playlist_uploader":"Some Channel"}
{"id":"vid2","title":"Track Two","url":"https://www.youtube.com/watch?v=vid2","playlist_title":"Best Of","playlist_uploader":"Some Channel"}
{"id":"vid3","title":"Track Three","url":"https://www.youtube.com/watch?v=vid3","playlist_title":"Best Of","playlist_uploader":"Some Channel"}`

func TestStartPlaylistURL(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{enumerateOut: []byte(playlistEnumeration)})

	rec := env.do(t, http.MethodPost, "/downloads/start",
		[]byte(`{"urls":["https://www.youtube.com/playlist?list=PLabc"],"quality":0}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.DownloadIDs, 3)
	require.Len(t, resp.Playlists, 1)
	assert.Equal(t, "Best Of", resp.Playlists[0].Title)
	assert.Equal(t, 3, resp.Playlists[0].TrackCount)
	assert.Equal(t, 3, env.submitter.count())
}

func TestStartPlaylistEnumerationEmpty(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{enumerateOut: nil})

	rec := env.do(t, http.MethodPost, "/downloads/start",
		[]byte(`{"urls":["https://www.youtube.com/playlist?list=PLempty"],"quality":0}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.registry.List(nil))
	assert.Zero(t, env.submitter.count())
}

func TestStartMixedURLsFailingPlaylistCreatesNothing(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{enumerateErr: errors.New("exit status 1")})

	rec := env.do(t, http.MethodPost, "/downloads/start",
		[]byte(`{"urls":["https://example.com/watch?v=abc","https://www.youtube.com/playlist?list=PLbad"],"quality":0}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.registry.List(nil), "enumeration failure must precede job creation")
	assert.Zero(t, env.submitter.count())
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})

	job := env.registry.Create("https://example.com/watch?v=abc")
	env.registry.Update(job.ID, func(j *model.Job) {
		j.Status = model.JobStatusCompleted
		j.Progress = 100
		j.Title = "Test Track"
		j.SizeBytes = 4096
		j.Metadata.DurationSec = 245
	})

	rec := env.do(t, http.MethodGet, "/downloads/status?ids="+job.ID+",dl-unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []StatusEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	assert.Equal(t, job.ID, entries[0].ID)
	assert.Equal(t, "completed", entries[0].Status)
	assert.Equal(t, float64(100), entries[0].Progress)
	assert.Equal(t, "Test Track", entries[0].Title)
	assert.Equal(t, int64(4096), entries[0].Size)
	assert.Equal(t, "04:05", entries[0].Duration)
	assert.NotEmpty(t, entries[0].LastUpdated)

	assert.Equal(t, "dl-unknown", entries[1].ID)
	assert.Equal(t, "not found", entries[1].Error)
}

func TestStatusMissingIDs(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	rec := env.do(t, http.MethodGet, "/downloads/status", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFile(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})

	dir := t.TempDir()
	path := filepath.Join(dir, "Test_Track.mp3")
	content := []byte("mp3 audio payload")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	job := env.registry.Create("https://example.com/watch?v=abc")
	env.registry.Update(job.ID, func(j *model.Job) {
		j.Status = model.JobStatusCompleted
		j.OutputPath = path
	})

	rec := env.do(t, http.MethodGet, "/downloads/"+job.ID+"/file", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Test_Track.mp3")
	assert.Equal(t, "17", rec.Header().Get("Content-Length"))
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestFileNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})

	running := env.registry.Create("https://example.com/watch?v=abc")
	env.registry.Update(running.ID, func(j *model.Job) {
		j.Status = model.JobStatusRunning
	})

	missing := env.registry.Create("https://example.com/watch?v=def")
	env.registry.Update(missing.ID, func(j *model.Job) {
		j.Status = model.JobStatusCompleted
		j.OutputPath = filepath.Join(t.TempDir(), "gone.mp3")
	})

	tests := []struct {
		name string
		id   string
	}{
		{name: "unknown id", id: "dl-unknown"},
		{name: "job not completed", id: running.ID},
		{name: "file missing on disk", id: missing.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/downloads/"+tt.id+"/file", nil)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

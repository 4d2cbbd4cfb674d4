package registry

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/yt-audio-server/internal/model"
)

// Number of lock shards. Status polls must stay responsive while many
// extractions mutate jobs, so records are spread over independent locks
// instead of one coarse mutex.
const shardCount = 16

// ID prefixes
const (
	JobIDPrefix      = "dl-"
	PlaylistIDPrefix = "pl-"
)

type shard struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// Registry is the process-scoped concurrent store of job records.
// Jobs are never deleted during the life of the process; callers always
// receive snapshot copies, never the stored record itself.
type Registry struct {
	shards [shardCount]*shard

	playlistsMu sync.RWMutex
	playlists   map[string]*model.Playlist
}

// New creates an empty registry
func New() *Registry {
	r := &Registry{
		playlists: make(map[string]*model.Playlist),
	}
	for i := range r.shards {
		r.shards[i] = &shard{jobs: make(map[string]*model.Job)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Create allocates a new queued job for the given source URL. Job ids are
// UUIDv7 based and never reused.
func (r *Registry) Create(sourceURL string) model.Job {
	now := time.Now()
	job := &model.Job{
		ID:          generateID(JobIDPrefix),
		SourceURL:   sourceURL,
		Status:      model.JobStatusQueued,
		CreatedAt:   now,
		LastUpdated: now,
	}

	s := r.shardFor(job.ID)
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return *job
}

// Get returns a snapshot of the job with the given id
func (r *Registry) Get(id string) (model.Job, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// Update applies the mutator to the job record atomically and stamps
// LastUpdated. It returns false if the job is unknown.
func (r *Registry) Update(id string, fn func(*model.Job)) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	job.LastUpdated = time.Now()
	return true
}

// Finalize applies a terminal transition atomically. It returns false if
// the job is unknown or already terminal, so at most one terminal
// transition ever applies to a job.
func (r *Registry) Finalize(id string, fn func(*model.Job)) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false
	}
	fn(job)
	job.LastUpdated = time.Now()
	return true
}

// List returns snapshots for the given ids in order, skipping unknown ids.
// A nil ids slice returns every job ordered by creation time.
func (r *Registry) List(ids []string) []model.Job {
	if ids != nil {
		out := make([]model.Job, 0, len(ids))
		for _, id := range ids {
			if job, ok := r.Get(id); ok {
				out = append(out, job)
			}
		}
		return out
	}

	var out []model.Job
	for _, s := range r.shards {
		s.mu.RLock()
		for _, job := range s.jobs {
			out = append(out, *job)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// FindActiveByURL returns a non-terminal job for the URL if one exists,
// so duplicate submissions reuse the in-flight job.
func (r *Registry) FindActiveByURL(url string) (model.Job, bool) {
	for _, s := range r.shards {
		s.mu.RLock()
		for _, job := range s.jobs {
			if job.SourceURL == url && !job.Status.IsTerminal() {
				snapshot := *job
				s.mu.RUnlock()
				return snapshot, true
			}
		}
		s.mu.RUnlock()
	}
	return model.Job{}, false
}

// CreatePlaylist allocates a new playlist record for the given source URL
func (r *Registry) CreatePlaylist(sourceURL string) model.Playlist {
	p := model.NewPlaylist(generateID(PlaylistIDPrefix), sourceURL)

	r.playlistsMu.Lock()
	r.playlists[p.ID] = p
	r.playlistsMu.Unlock()

	return snapshotPlaylist(p)
}

// GetPlaylist returns a snapshot of the playlist with the given id
func (r *Registry) GetPlaylist(id string) (model.Playlist, bool) {
	r.playlistsMu.RLock()
	defer r.playlistsMu.RUnlock()

	p, ok := r.playlists[id]
	if !ok {
		return model.Playlist{}, false
	}
	return snapshotPlaylist(p), true
}

// UpdatePlaylist applies the mutator to the playlist record atomically.
// It returns false if the playlist is unknown.
func (r *Registry) UpdatePlaylist(id string, fn func(*model.Playlist)) bool {
	r.playlistsMu.Lock()
	defer r.playlistsMu.Unlock()

	p, ok := r.playlists[id]
	if !ok {
		return false
	}
	fn(p)
	p.UpdatedAt = time.Now()
	return true
}

// PlaylistStatus derives the aggregate status of a playlist from the
// current statuses of its member jobs
func (r *Registry) PlaylistStatus(id string) (model.PlaylistStatus, bool) {
	p, ok := r.GetPlaylist(id)
	if !ok {
		return "", false
	}

	statuses := make([]model.JobStatus, 0, len(p.MemberJobIDs))
	for _, jobID := range p.MemberJobIDs {
		if job, ok := r.Get(jobID); ok {
			statuses = append(statuses, job.Status)
		}
	}
	return p.DeriveStatus(statuses), true
}

func snapshotPlaylist(p *model.Playlist) model.Playlist {
	out := *p
	out.MemberJobIDs = append([]string(nil), p.MemberJobIDs...)
	return out
}

// generateID produces a prefixed UUIDv7 identifier. UUIDv7 includes a
// timestamp, so ids sort chronologically.
func generateID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to timestamp if UUID generation fails
		return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
	}
	return prefix + id.String()
}

package extract

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ytget/yt-audio-server/internal/model"
	"github.com/ytget/yt-audio-server/internal/platform"
	"github.com/ytget/yt-audio-server/internal/registry"
	"github.com/ytget/yt-audio-server/pkg/metrics"
)

// Timeout for the one-shot info query
const infoQueryTimeout = 60 * time.Second

// Output file extension
const outputExtension = ".mp3"

// Archive file extension
const archiveExtension = ".zip"

// Tagger writes descriptive metadata into a finished audio file.
// Failures are recoverable: the owning job stays completed.
type Tagger interface {
	WriteTags(path string, meta model.TrackMetadata) error
}

// Archiver packages a directory of per-track outputs into one archive
type Archiver interface {
	Build(sourceDir, outPath string) error
}

// Supervisor runs exactly one extraction subprocess per job and
// reconciles its outcome into job state. It retains a live handle per
// running job so a cancellation request can terminate the subprocess.
type Supervisor struct {
	registry    *registry.Registry
	runner      Runner
	tagger      Tagger
	archiver    Archiver
	paths       *platform.PathAllocator
	downloadDir string

	baseCtx context.Context
	sem     *semaphore.Weighted

	procsMu  sync.Mutex
	procs    map[string]Handle
	canceled map[string]bool
}

// New creates a supervisor. maxParallel caps the number of simultaneous
// extraction subprocesses without changing the job state machine.
func New(ctx context.Context, reg *registry.Registry, runner Runner, tagger Tagger, archiver Archiver, downloadDir string, maxParallel int64) *Supervisor {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Supervisor{
		registry:    reg,
		runner:      runner,
		tagger:      tagger,
		archiver:    archiver,
		paths:       platform.NewPathAllocator(),
		downloadDir: downloadDir,
		baseCtx:     ctx,
		sem:         semaphore.NewWeighted(maxParallel),
		procs:       make(map[string]Handle),
		canceled:    make(map[string]bool),
	}
}

// Submit schedules the job's extraction as an independent asynchronous
// unit of work, bounded by the parallel extraction cap. One job's
// failure never blocks or fails siblings.
func (s *Supervisor) Submit(jobID string, quality int) {
	go func() {
		if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
			s.failJob(jobID, "", ErrCanceled)
			return
		}
		defer s.sem.Release(1)

		if err := s.Run(s.baseCtx, jobID, quality); err != nil {
			zap.S().Named("supervisor").Warnw("job failed", "job_id", jobID, "error", err)
		}
		s.finishPlaylistIfDone(jobID)
	}()
}

// Run executes the full extraction pipeline for one job: info query,
// download with progress scaling, output verification, tagging, and
// finalization. Any returned error has already been recorded on the job.
func (s *Supervisor) Run(ctx context.Context, jobID string, quality int) error {
	job, ok := s.registry.Get(jobID)
	if !ok {
		return errors.Errorf("unknown job %s", jobID)
	}
	metrics.IncreaseJobsTotalMetric("started")

	// Info query failure is tolerated: fall back to placeholder metadata
	// rather than aborting the job.
	meta := s.probe(ctx, job.SourceURL)
	meta = applyPlaylistHints(meta, job.Metadata)

	dir := s.downloadDir
	if job.PlaylistID != "" {
		dir = filepath.Join(s.downloadDir, job.PlaylistID)
	}
	if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
		wrapped := errors.Wrap(err, "create output directory")
		s.failJob(jobID, "", wrapped)
		return wrapped
	}

	outputPath := s.paths.Allocate(dir, platform.SanitizeTitle(meta.Title), outputExtension)
	s.registry.Update(jobID, func(j *model.Job) {
		j.Title = meta.Title
		j.Metadata = meta
		j.OutputPath = outputPath
		j.Status = model.JobStatusRunning
		j.Progress = ProgressInfoDone
	})

	handle, err := s.runner.Download(ctx, DownloadSpec{
		URL:        job.SourceURL,
		OutputPath: outputPath,
		Quality:    quality,
	})
	if err != nil {
		wrapped := errors.Wrap(err, "launch extraction")
		s.failJob(jobID, outputPath, wrapped)
		return wrapped
	}

	s.track(jobID, handle)
	metrics.ExtractionStarted()

	// Standard error is recorded for diagnostics only, never parsed for
	// state.
	diag := newTailBuffer()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(handle.Stderr())
		for scanner.Scan() {
			diag.Append(scanner.Text())
		}
	}()

	scanner := bufio.NewScanner(handle.Stdout())
	for scanner.Scan() {
		if pct, ok := ParseProgressLine(scanner.Text()); ok {
			s.setProgress(jobID, ScaleProgress(pct))
		}
	}

	wg.Wait()
	waitErr := handle.Wait()
	s.untrack(jobID)
	metrics.ExtractionFinished()

	if s.consumeCanceled(jobID) {
		s.failJob(jobID, outputPath, ErrCanceled)
		return ErrCanceled
	}

	if waitErr != nil {
		code := exitCodeOf(waitErr)
		wrapped := errors.Wrapf(ErrExtractionFailed, "exit code %d", code)
		if tail := diag.String(); tail != "" {
			zap.S().Named("supervisor").Debugw("extraction diagnostics", "job_id", jobID, "stderr", tail)
		}
		s.failJobWithReason(jobID, outputPath, fmt.Sprintf("exit code %d", code))
		return wrapped
	}

	fi, statErr := os.Stat(outputPath)
	if statErr != nil {
		s.failJob(jobID, outputPath, ErrOutputMissing)
		return ErrOutputMissing
	}
	if fi.Size() == 0 {
		s.failJob(jobID, outputPath, ErrOutputEmpty)
		return ErrOutputEmpty
	}

	// Completion is defined by extraction success; the authoritative tag
	// write is best-effort enrichment.
	s.registry.Update(jobID, func(j *model.Job) {
		j.Status = model.JobStatusTagging
		j.Progress = ProgressExtracted
	})
	if err := s.tagger.WriteTags(outputPath, meta); err != nil {
		zap.S().Named("supervisor").Warnw("tag write failed", "job_id", jobID, "path", outputPath, "error", err)
	}

	size := fi.Size()
	if fi, err := os.Stat(outputPath); err == nil {
		size = fi.Size() // tagging rewrites the file
	}
	s.registry.Finalize(jobID, func(j *model.Job) {
		j.Status = model.JobStatusCompleted
		j.Progress = ProgressDone
		j.SizeBytes = size
	})
	metrics.IncreaseJobsTotalMetric("completed")
	return nil
}

// Cancel terminates the job's live subprocess. The job lands in error
// state with a distinguishable reason and its partial output is removed.
func (s *Supervisor) Cancel(jobID string) error {
	s.procsMu.Lock()
	handle, ok := s.procs[jobID]
	if ok {
		s.canceled[jobID] = true
	}
	s.procsMu.Unlock()

	if !ok {
		return errors.Errorf("no running extraction for job %s", jobID)
	}
	return handle.Kill()
}

// probe resolves title and descriptive metadata, falling back to
// placeholder values when the info query fails
func (s *Supervisor) probe(ctx context.Context, url string) model.TrackMetadata {
	ctx, cancel := context.WithTimeout(ctx, infoQueryTimeout)
	defer cancel()

	out, err := s.runner.Probe(ctx, url)
	if err != nil {
		zap.S().Named("supervisor").Warnw("info query failed", "url", url, "error", err)
		return VideoInfo{}.Metadata(url)
	}
	info, err := DecodeVideoInfo(out)
	if err != nil {
		zap.S().Named("supervisor").Warnw("info query returned malformed output", "url", url, "error", err)
		return VideoInfo{}.Metadata(url)
	}
	return info.Metadata(url)
}

// applyPlaylistHints merges playlist-level metadata hints set at child
// job creation: the playlist title is authoritative as album, the
// uploader is only a placeholder artist.
func applyPlaylistHints(meta, hints model.TrackMetadata) model.TrackMetadata {
	if hints.IsZero() {
		return meta
	}
	if hints.Album != "" {
		meta.Album = hints.Album
	}
	if meta.Artist == "" {
		meta.Artist = hints.Artist
	}
	if meta.Title == model.DefaultTitle && hints.Title != "" {
		meta.Title = hints.Title
	}
	if meta.DurationSec == 0 {
		meta.DurationSec = hints.DurationSec
	}
	return meta
}

// setProgress advances job progress; progress is monotonically
// non-decreasing while the job is running
func (s *Supervisor) setProgress(jobID string, progress float64) {
	s.registry.Update(jobID, func(j *model.Job) {
		if j.Status == model.JobStatusRunning && progress > j.Progress {
			j.Progress = progress
		}
	})
}

func (s *Supervisor) failJob(jobID, outputPath string, reason error) {
	s.failJobWithReason(jobID, outputPath, reason.Error())
}

// failJobWithReason records a terminal failure and removes the partial
// output file so no file ever remains at the path of an errored job
func (s *Supervisor) failJobWithReason(jobID, outputPath string, message string) {
	if outputPath != "" {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			zap.S().Named("supervisor").Warnw("failed to remove partial output", "path", outputPath, "error", err)
		}
		s.paths.Release(outputPath)
	}

	applied := s.registry.Finalize(jobID, func(j *model.Job) {
		j.Status = model.JobStatusError
		j.Error = message
	})
	if applied {
		metrics.IncreaseJobsTotalMetric("error")
	}
}

func (s *Supervisor) track(jobID string, handle Handle) {
	s.procsMu.Lock()
	s.procs[jobID] = handle
	s.procsMu.Unlock()
}

func (s *Supervisor) untrack(jobID string) {
	s.procsMu.Lock()
	delete(s.procs, jobID)
	s.procsMu.Unlock()
}

func (s *Supervisor) consumeCanceled(jobID string) bool {
	s.procsMu.Lock()
	defer s.procsMu.Unlock()
	canceled := s.canceled[jobID]
	delete(s.canceled, jobID)
	return canceled
}

// finishPlaylistIfDone builds the playlist archive once the last member
// reaches a terminal state and all members completed. The build is
// claimed atomically so it runs at most once per playlist.
func (s *Supervisor) finishPlaylistIfDone(jobID string) {
	job, ok := s.registry.Get(jobID)
	if !ok || job.PlaylistID == "" {
		return
	}
	pl, ok := s.registry.GetPlaylist(job.PlaylistID)
	if !ok {
		return
	}

	for _, memberID := range pl.MemberJobIDs {
		member, ok := s.registry.Get(memberID)
		if !ok || !member.Status.IsTerminal() {
			return
		}
		if member.Status != model.JobStatusCompleted {
			return
		}
	}

	claimed := false
	s.registry.UpdatePlaylist(pl.ID, func(p *model.Playlist) {
		if !p.ArchiveStarted {
			p.ArchiveStarted = true
			claimed = true
		}
	})
	if !claimed {
		return
	}

	sourceDir := filepath.Join(s.downloadDir, pl.ID)
	outPath := filepath.Join(s.downloadDir, pl.ID+archiveExtension)
	if err := s.archiver.Build(sourceDir, outPath); err != nil {
		zap.S().Named("supervisor").Errorw("archive build failed", "playlist_id", pl.ID, "error", err)
		s.registry.UpdatePlaylist(pl.ID, func(p *model.Playlist) {
			p.ArchiveErr = err.Error()
		})
		return
	}
	s.registry.UpdatePlaylist(pl.ID, func(p *model.Playlist) {
		p.ArchivePath = outPath
	})
}

// exitCodeOf extracts the subprocess exit code from a Wait error
func exitCodeOf(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

// tailBuffer keeps a bounded amount of diagnostic output
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
}

const tailBufferMaxLines = 20

func newTailBuffer() *tailBuffer {
	return &tailBuffer{}
}

func (b *tailBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > tailBufferMaxLines {
		b.lines = b.lines[len(b.lines)-tailBufferMaxLines:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

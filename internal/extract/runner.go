package extract

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/pkg/errors"
)

// Default extraction tool binary
const DefaultBinary = "yt-dlp"

// DownloadSpec describes one long-running extraction invocation
type DownloadSpec struct {
	URL        string
	OutputPath string
	Quality    int // target bitrate in kbps; 0 means best available
}

// Handle is a live extraction subprocess. At most one handle exists per
// job at any time.
type Handle interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Kill() error
}

// Runner abstracts the extraction tool invocations so the supervisor can
// be exercised without the real binary
type Runner interface {
	// Probe runs the one-shot info query and returns its JSON output
	Probe(ctx context.Context, url string) ([]byte, error)

	// Enumerate runs the one-shot flat playlist listing and returns its
	// output, one JSON item descriptor per line
	Enumerate(ctx context.Context, url string) ([]byte, error)

	// Download launches the long-running extraction invocation
	Download(ctx context.Context, spec DownloadSpec) (Handle, error)
}

// ToolRunner invokes the extraction binary. Every invocation passes the
// URL as a discrete argument; nothing is ever routed through a shell.
type ToolRunner struct {
	binary string
}

// NewToolRunner creates a runner for the given binary name, defaulting
// to yt-dlp
func NewToolRunner(binary string) *ToolRunner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ToolRunner{binary: binary}
}

// CheckTool reports whether the extraction binary is on PATH
func (r *ToolRunner) CheckTool() (string, error) {
	path, err := exec.LookPath(r.binary)
	if err != nil {
		return "", errors.Wrapf(err, "missing dependency: %s is not installed or not on PATH", r.binary)
	}
	return path, nil
}

func (r *ToolRunner) Probe(ctx context.Context, url string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binary, "--dump-json", "--no-playlist", "--skip-download", url)
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, "info query")
	}
	return out, nil
}

func (r *ToolRunner) Enumerate(ctx context.Context, url string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binary, "--flat-playlist", "--dump-json", url)
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, "playlist enumeration")
	}
	return out, nil
}

func (r *ToolRunner) Download(ctx context.Context, spec DownloadSpec) (Handle, error) {
	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", audioQualityArg(spec.Quality),
		"--newline",
		"--no-playlist",
		"--no-mtime",
		"--embed-metadata",
		"--embed-thumbnail",
		"-o", spec.OutputPath,
		spec.URL,
	}
	cmd := exec.CommandContext(ctx, r.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "setup stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "setup stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", r.binary)
	}

	return &processHandle{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// audioQualityArg maps the quality hint onto the tool's audio quality
// flag. Zero means "best available".
func audioQualityArg(quality int) string {
	if quality <= 0 {
		return "0"
	}
	return fmt.Sprintf("%dK", quality)
}

type processHandle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (h *processHandle) Stdout() io.Reader { return h.stdout }
func (h *processHandle) Stderr() io.Reader { return h.stderr }

func (h *processHandle) Wait() error {
	return h.cmd.Wait()
}

func (h *processHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

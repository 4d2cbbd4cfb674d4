package model

// JobStatus represents the lifecycle state of a download job
type JobStatus string

const (
	// JobStatusQueued means the job is created but extraction has not started
	JobStatusQueued JobStatus = "queued"

	// JobStatusRunning means the extraction subprocess is in progress
	JobStatusRunning JobStatus = "running"

	// JobStatusTagging means extraction succeeded and tags are being written
	JobStatusTagging JobStatus = "tagging"

	// JobStatusCompleted means the job finished successfully
	JobStatusCompleted JobStatus = "completed"

	// JobStatusError means the job failed with an error
	JobStatusError JobStatus = "error"
)

// String returns the string representation of JobStatus
func (js JobStatus) String() string {
	return string(js)
}

// IsActive returns true if the job is in an active state
func (js JobStatus) IsActive() bool {
	return js == JobStatusRunning || js == JobStatusTagging
}

// IsTerminal returns true if no further transitions can occur
func (js JobStatus) IsTerminal() bool {
	return js == JobStatusCompleted || js == JobStatusError
}

// PlaylistStatus represents the aggregate status of a playlist,
// always derived from member job statuses
type PlaylistStatus string

const (
	PlaylistStatusProcessing PlaylistStatus = "processing"
	PlaylistStatusCompleted  PlaylistStatus = "completed"
	PlaylistStatusError      PlaylistStatus = "error"
)

// String returns the string representation of PlaylistStatus
func (ps PlaylistStatus) String() string {
	return string(ps)
}

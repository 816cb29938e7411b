package domain

import "time"

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeTextToImage  JobType = "text_to_image"
	JobTypeImageToImage JobType = "image_to_image"
	JobTypeTextToVideo  JobType = "text_to_video"
	JobTypeImageToVideo JobType = "image_to_video"
)

// MediaKind is the coarse media class a job produces. Concurrency limits and
// account capacity are tracked per media kind, not per job type.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media maps a job type onto its media kind.
func (t JobType) Media() MediaKind {
	switch t {
	case JobTypeTextToVideo, JobTypeImageToVideo:
		return MediaVideo
	default:
		return MediaImage
	}
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeTextToImage, JobTypeImageToImage, JobTypeTextToVideo, JobTypeImageToVideo:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is a sink state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition encodes the one-way status DAG. Terminal states accept no
// further transitions; pending never moves directly to completed.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusCancelled || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	default:
		return false
	}
}

// Job encapsulates the lifecycle of a brokered generation request.
type Job struct {
	ID              string
	UserID          string
	Type            JobType
	ModelID         string
	Status          JobStatus
	CreditsCost     int64
	CreditsRefunded bool
	ProviderJobID   *string
	AccountID       *string
	OutputURL       *string
	ErrorMessage    *string
	Prompt          string
	SourceURL       string
	Width           int
	Height          int
	DurationSeconds int
	Slow            bool
	Attempts        int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Active reports whether the job currently occupies a concurrency slot.
func (j *Job) Active() bool {
	return j.Status == JobStatusProcessing
}

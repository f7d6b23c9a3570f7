package mediaapi

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Format is a requested output container.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMP3  Format = "mp3"
	FormatWebM Format = "webm"
	FormatMKV  Format = "mkv"
	FormatAVI  Format = "avi"
	FormatM4A  Format = "m4a"
)

// ExtractionRequest is the body of POST /proxy/extract.
type ExtractionRequest struct {
	URL     string `json:"url" validate:"required,url"`
	Format  Format `json:"format" validate:"required,oneof=mp4 mp3 webm mkv avi m4a"`
	Quality string `json:"quality,omitempty" validate:"omitempty,max=16"`
}

var validate = validator.New()

// Validate checks the request before it is sent.
func (r ExtractionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// JobStatus is the server-reported lifecycle state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusPending    JobStatus = "pending" // server spelling of queued
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobResult describes the produced artifact of a completed job.
type JobResult struct {
	Filename    string `json:"filename,omitempty"`
	Filesize    int64  `json:"filesize,omitzero"`
	SizeBytes   int64  `json:"size_bytes,omitzero"`
	DownloadURL string `json:"download_url,omitempty"`
	Format      string `json:"format,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// Size returns the artifact size in bytes, whichever field the server used.
func (r *JobResult) Size() int64 {
	if r == nil {
		return 0
	}
	if r.Filesize > 0 {
		return r.Filesize
	}
	return r.SizeBytes
}

// Job is one snapshot of GET /proxy/jobs/{id}.
type Job struct {
	ID       string     `json:"job_id,omitempty"`
	Status   JobStatus  `json:"status"`
	Progress int        `json:"progress"`
	Result   *JobResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// jobWire tolerates fractional progress values.
type jobWire struct {
	ID       string     `json:"job_id"`
	Status   JobStatus  `json:"status"`
	Progress float64    `json:"progress"`
	Result   *JobResult `json:"result"`
	Error    string     `json:"error"`
}

// Detection is the response of POST /proxy/detect.
type Detection struct {
	Platform string         `json:"platform"`
	Title    string         `json:"title,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

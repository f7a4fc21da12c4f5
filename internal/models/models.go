package models

import "time"

type JobStatus string

const (
	StatusQueued    JobStatus = "QUEUED"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusExpired   JobStatus = "EXPIRED"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	case StatusQueued, StatusRunning:
		return false
	}
	return false
}

// IsActive reports whether the backend is still working on the job.
func (s JobStatus) IsActive() bool {
	switch s {
	case StatusQueued, StatusRunning:
		return true
	case StatusCompleted, StatusFailed, StatusExpired:
		return false
	}
	return false
}

type Job struct {
	Id              string     `json:"id"`
	Url             string     `json:"url"`
	Format          string     `json:"format"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Title           string     `json:"title,omitempty"`
	OutputFileName  string     `json:"outputFileName,omitempty"`
	FileSizeBytes   int64      `json:"fileSizeBytes,omitempty"`
	DownloadedBytes int64      `json:"downloadedBytes,omitempty"`
	TotalBytes      int64      `json:"totalBytes,omitempty"`
	Speed           float64    `json:"speed,omitempty"`
	EtaSec          int        `json:"etaSec,omitempty"`
	LogTail         []string   `json:"logTail,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
}

// ApplyProgressRules enforces the lifecycle invariants on Progress: never
// decreasing relative to prev while the job is active, pinned to 100 on
// COMPLETED and 0 on FAILED/EXPIRED.
func (j *Job) ApplyProgressRules(prev int) {
	switch j.Status {
	case StatusCompleted:
		j.Progress = 100
	case StatusFailed, StatusExpired:
		j.Progress = 0
	case StatusQueued, StatusRunning:
		if j.Progress < prev {
			j.Progress = prev
		}
		if j.Progress < 0 {
			j.Progress = 0
		}
		if j.Progress > 100 {
			j.Progress = 100
		}
	}
}

type VideoFormat struct {
	Itag           string  `json:"itag"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	Fps            int     `json:"fps"`
	Vcodec         string  `json:"vcodec"`
	Acodec         string  `json:"acodec"`
	TbrKbps        float64 `json:"tbrKbps"`
	FilesizeBytes  int64   `json:"filesizeBytes"`
	FilesizeApprox int64   `json:"filesizeApprox"`
	Progressive    bool    `json:"progressive"`
	Note           string  `json:"note,omitempty"`
}

type AudioFormat struct {
	Itag           string  `json:"itag"`
	Ext            string  `json:"ext"`
	AbrKbps        float64 `json:"abrKbps"`
	FilesizeBytes  int64   `json:"filesizeBytes"`
	FilesizeApprox int64   `json:"filesizeApprox"`
}

type FormatCatalog struct {
	VideoId      string        `json:"videoId"`
	Title        string        `json:"title"`
	DurationSec  int           `json:"durationSec"`
	ThumbnailUrl string        `json:"thumbnailUrl"`
	Videos       []VideoFormat `json:"videos"`
	Audios       []AudioFormat `json:"audios"`
}

// Size returns the exact file size when known, otherwise the approximation.
func (v VideoFormat) Size() int64 {
	if v.FilesizeBytes > 0 {
		return v.FilesizeBytes
	}
	return v.FilesizeApprox
}

func (a AudioFormat) Size() int64 {
	if a.FilesizeBytes > 0 {
		return a.FilesizeBytes
	}
	return a.FilesizeApprox
}

// BestVideo picks the highest-resolution video entry, breaking ties by file
// size. Returns false when the catalog has no video formats.
func (c *FormatCatalog) BestVideo() (VideoFormat, bool) {
	if len(c.Videos) == 0 {
		return VideoFormat{}, false
	}
	best := c.Videos[0]
	for _, v := range c.Videos[1:] {
		if v.Height > best.Height {
			best = v
			continue
		}
		if v.Height == best.Height && v.Size() > best.Size() {
			best = v
		}
	}
	return best, true
}

type JobPage struct {
	Jobs     []Job `json:"jobs"`
	Total    int   `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// JobsView is the classified rendering of the latest job page, mirroring the
// queue tabs in the UI.
type JobsView struct {
	Active    []Job `json:"active"`
	Completed []Job `json:"completed"`
	Failed    []Job `json:"failed"`
	Expired   []Job `json:"expired"`
	Total     int   `json:"total"`
}

type DownloadInfo struct {
	Url         string `json:"fileUrl"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Health struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

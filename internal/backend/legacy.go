package backend

import (
	"encoding/json"
	"fmt"
	"time"

	"ytqgo/internal/models"
)

// legacyWire decodes the older snake_case dialect with its four-state job
// model (pending/processing/completed/failed). It exists purely as a
// translation boundary; nothing outside this file knows about the old shape.
type legacyWire struct{}

type legacyJob struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
	Title        string `json:"title"`
	Filename     string `json:"filename"`
	FileSize     int64  `json:"file_size"`
	ErrorMessage string `json:"error_message"`
}

type legacyJobList struct {
	Jobs  []legacyJob `json:"jobs"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

type legacyFormat struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	Width    int     `json:"width"`
	Fps      int     `json:"fps"`
	Vcodec   string  `json:"vcodec"`
	Acodec   string  `json:"acodec"`
	Abr      float64 `json:"abr"`
	Tbr      float64 `json:"tbr"`
	Filesize int64   `json:"filesize"`
	Note     string  `json:"format_note"`
}

type legacyFormats struct {
	VideoID   string         `json:"video_id"`
	Title     string         `json:"title"`
	Duration  int            `json:"duration"`
	Thumbnail string         `json:"thumbnail"`
	Formats   []legacyFormat `json:"formats"`
}

type legacyDownload struct {
	FileURL     string `json:"file_url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

func (legacyWire) Job(raw []byte) (models.Job, error) {
	var lj legacyJob
	if err := json.Unmarshal(raw, &lj); err != nil {
		return models.Job{}, &APIError{Kind: KindUpstream, Message: "malformed job payload", Err: err}
	}
	return lj.normalize()
}

func (legacyWire) JobPage(raw []byte) (models.JobPage, error) {
	var list legacyJobList
	if err := json.Unmarshal(raw, &list); err != nil {
		return models.JobPage{}, &APIError{Kind: KindUpstream, Message: "malformed job list payload", Err: err}
	}
	page := models.JobPage{
		Jobs:     make([]models.Job, 0, len(list.Jobs)),
		Total:    list.Total,
		Page:     list.Page,
		PageSize: list.Limit,
	}
	for _, lj := range list.Jobs {
		job, err := lj.normalize()
		if err != nil {
			return models.JobPage{}, err
		}
		page.Jobs = append(page.Jobs, job)
	}
	return page, nil
}

func (legacyWire) Catalog(raw []byte) (models.FormatCatalog, error) {
	var lf legacyFormats
	if err := json.Unmarshal(raw, &lf); err != nil {
		return models.FormatCatalog{}, &APIError{Kind: KindUpstream, Message: "malformed formats payload", Err: err}
	}
	catalog := models.FormatCatalog{
		VideoId:      lf.VideoID,
		Title:        lf.Title,
		DurationSec:  lf.Duration,
		ThumbnailUrl: lf.Thumbnail,
	}
	for _, f := range lf.Formats {
		if f.Vcodec != "" && f.Vcodec != "none" {
			catalog.Videos = append(catalog.Videos, models.VideoFormat{
				Itag:          f.FormatID,
				Ext:           f.Ext,
				Height:        f.Height,
				Width:         f.Width,
				Fps:           f.Fps,
				Vcodec:        f.Vcodec,
				Acodec:        f.Acodec,
				TbrKbps:       f.Tbr,
				FilesizeBytes: f.Filesize,
				Progressive:   f.Acodec != "" && f.Acodec != "none",
				Note:          f.Note,
			})
			continue
		}
		if f.Acodec != "" && f.Acodec != "none" {
			catalog.Audios = append(catalog.Audios, models.AudioFormat{
				Itag:          f.FormatID,
				Ext:           f.Ext,
				AbrKbps:       f.Abr,
				FilesizeBytes: f.Filesize,
			})
		}
	}
	return catalog, nil
}

func (legacyWire) Download(raw []byte) (models.DownloadInfo, error) {
	var ld legacyDownload
	if err := json.Unmarshal(raw, &ld); err != nil {
		return models.DownloadInfo{}, &APIError{Kind: KindUpstream, Message: "malformed download payload", Err: err}
	}
	return models.DownloadInfo{
		Url:         ld.FileURL,
		Filename:    ld.Filename,
		ContentType: ld.ContentType,
		Size:        ld.FileSize,
	}, nil
}

func (lj legacyJob) normalize() (models.Job, error) {
	status, err := legacyStatus(lj.Status)
	if err != nil {
		return models.Job{}, err
	}
	job := models.Job{
		Id:             lj.ID,
		Url:            lj.URL,
		Format:         lj.Format,
		Status:         status,
		Progress:       lj.Progress,
		CreatedAt:      legacyTime(lj.CreatedAt),
		UpdatedAt:      legacyTime(lj.UpdatedAt),
		Title:          lj.Title,
		OutputFileName: lj.Filename,
		FileSizeBytes:  lj.FileSize,
		ErrorMessage:   lj.ErrorMessage,
	}
	if t := legacyTime(lj.StartedAt); !t.IsZero() {
		job.StartedAt = &t
	}
	if t := legacyTime(lj.FinishedAt); !t.IsZero() {
		job.CompletedAt = &t
	}
	return job, nil
}

func legacyStatus(raw string) (models.JobStatus, error) {
	switch raw {
	case "pending":
		return models.StatusQueued, nil
	case "processing":
		return models.StatusRunning, nil
	case "completed":
		return models.StatusCompleted, nil
	case "failed":
		return models.StatusFailed, nil
	}
	return "", &APIError{
		Kind:    KindUpstream,
		Code:    "unknown_status",
		Message: fmt.Sprintf("unknown legacy job status %q", raw),
	}
}

func legacyTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

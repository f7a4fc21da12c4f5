package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"ytqgo/internal/backend"
	"ytqgo/internal/models"
	"ytqgo/internal/track"
	"ytqgo/internal/websocket"
)

type stubBackend struct {
	mu            sync.Mutex
	healthCalls   int
	downloadCalls int
	listErr       error
	jobs          map[string]models.Job
}

func newStubBackend() *stubBackend {
	return &stubBackend{jobs: map[string]models.Job{
		"running-1": {Id: "running-1", Url: "https://youtu.be/r", Status: models.StatusRunning, Progress: 40},
		"done-1":    {Id: "done-1", Url: "https://youtu.be/d", Status: models.StatusCompleted, Progress: 100},
		"noname-1": {Id: "noname-1", Url: "https://youtu.be/n", Status: models.StatusCompleted, Progress: 100,
			Title: "Unnamed: Clip", Format: "webm"},
	}}
}

func (s *stubBackend) Health(ctx context.Context) (models.Health, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCalls++
	return models.Health{Status: "ok", Timestamp: time.Now()}, nil
}

func (s *stubBackend) ResolveFormats(ctx context.Context, url string) (models.FormatCatalog, error) {
	if url == "" {
		return models.FormatCatalog{}, &backend.APIError{Kind: backend.KindValidation, Message: "url is required"}
	}
	return models.FormatCatalog{
		VideoId: "abc123",
		Title:   "Sample",
		Videos: []models.VideoFormat{
			{Itag: "22", Ext: "mp4", Height: 720},
			{Itag: "137", Ext: "mp4", Height: 1080},
		},
	}, nil
}

func (s *stubBackend) SubmitJob(ctx context.Context, url, format string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := models.Job{Id: "new-1", Url: url, Format: format, Status: models.StatusQueued}
	s.jobs[job.Id] = job
	return job, nil
}

func (s *stubBackend) ListJobs(ctx context.Context, page, pageSize int) (models.JobPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return models.JobPage{}, s.listErr
	}
	jobs := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return models.JobPage{Jobs: jobs, Total: len(jobs), Page: page, PageSize: pageSize}, nil
}

func (s *stubBackend) JobDetail(ctx context.Context, id string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, &backend.APIError{Kind: backend.KindNotFound, StatusCode: 404, Message: "job not found"}
	}
	return job, nil
}

func (s *stubBackend) ResolveDownload(ctx context.Context, id string) (models.DownloadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadCalls++
	info := models.DownloadInfo{Url: "https://files.example.com/" + id, Size: 1024}
	if id != "noname-1" {
		info.Filename = id + ".mp4"
	}
	return info, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubBackend, *track.Tracker) {
	t.Helper()
	be := newStubBackend()
	tracker := track.New(track.Options{
		Backend:      be,
		JobInterval:  time.Hour,
		ListInterval: time.Hour,
	})
	t.Cleanup(tracker.Stop)

	hub := websocket.NewHub()
	go hub.Run()

	r := chi.NewRouter()
	r.Get("/health", HealthHandler(tracker))
	r.Post("/formats", FormatsHandler(tracker))
	r.Post("/jobs", SubmitJobHandler(tracker, hub))
	r.Get("/jobs", ListJobsHandler(tracker))
	r.Get("/jobs/{id}", JobDetailHandler(tracker))
	r.Get("/jobs/{id}/download", DownloadHandler(tracker))
	r.Delete("/jobs/{id}", UnwatchJobHandler(tracker, hub))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, be, tracker
}

func TestHealthHandlerCachesProbe(t *testing.T) {
	srv, be, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		res, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("health request failed: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.StatusCode)
		}
	}

	be.mu.Lock()
	calls := be.healthCalls
	be.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected one backend probe for repeated health requests, got %d", calls)
	}
}

func TestFormatsHandler(t *testing.T) {
	srv, _, _ := newTestServer(t)

	res, err := http.Post(srv.URL+"/formats", "application/json",
		strings.NewReader(`{"url": "https://youtu.be/abc123"}`))
	if err != nil {
		t.Fatalf("formats request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	var catalog struct {
		models.FormatCatalog
		Recommended *models.VideoFormat `json:"recommended"`
	}
	if err := json.NewDecoder(res.Body).Decode(&catalog); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if catalog.VideoId != "abc123" || len(catalog.Videos) != 2 {
		t.Errorf("unexpected catalog: %+v", catalog)
	}
	if catalog.Recommended == nil || catalog.Recommended.Itag != "137" {
		t.Errorf("expected the 1080p entry recommended, got %+v", catalog.Recommended)
	}
}

func TestFormatsHandlerValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	res, err := http.Post(srv.URL+"/formats", "application/json", strings.NewReader(`{"url": ""}`))
	if err != nil {
		t.Fatalf("formats request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty url, got %d", res.StatusCode)
	}
}

func TestSubmitJobHandler(t *testing.T) {
	srv, _, _ := newTestServer(t)

	res, err := http.Post(srv.URL+"/jobs", "application/json",
		strings.NewReader(`{"url": "https://youtu.be/abc123", "format": "137+140"}`))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.StatusCode)
	}

	var job models.Job
	if err := json.NewDecoder(res.Body).Decode(&job); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if job.Id != "new-1" || job.Status != models.StatusQueued {
		t.Errorf("unexpected job: %+v", job)
	}
}

func TestSubmitJobHandlerRejectsEmptyURL(t *testing.T) {
	srv, _, _ := newTestServer(t)

	res, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(`{"url": "  "}`))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for blank url, got %d", res.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["error"] != "validation" {
		t.Errorf("expected validation error kind, got %q", body["error"])
	}
}

func TestListJobsHandler(t *testing.T) {
	srv, _, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/jobs?page=0&pageSize=10")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	var body struct {
		models.JobPage
		View models.JobsView `json:"view"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Total != 3 {
		t.Errorf("expected 3 jobs, got %d", body.Total)
	}
	if len(body.View.Active) != 1 || len(body.View.Completed) != 2 {
		t.Errorf("unexpected view split: %+v", body.View)
	}
}

func TestListJobsHandlerKeepsSnapshotOnFetchError(t *testing.T) {
	srv, be, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/jobs")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	res.Body.Close()

	// the next refresh fails; the submit below triggers it via invalidation
	be.mu.Lock()
	be.listErr = &backend.APIError{Kind: backend.KindNetwork, Message: "connection refused"}
	be.mu.Unlock()

	res, err = http.Post(srv.URL+"/jobs", "application/json",
		strings.NewReader(`{"url": "https://youtu.be/x", "format": "22"}`))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	res.Body.Close()

	deadline := time.Now().Add(time.Second)
	for {
		res, err = http.Get(srv.URL + "/jobs")
		if err != nil {
			t.Fatalf("list request failed: %v", err)
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("fetch errors must not turn the list into a %d", res.StatusCode)
		}
		var body struct {
			models.JobPage
			FetchError string `json:"fetchError"`
		}
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		res.Body.Close()

		if body.FetchError != "" {
			if body.Total != 3 {
				t.Errorf("last good snapshot dropped: total %d", body.Total)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("fetch error never surfaced alongside the snapshot")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJobDetailHandlerNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/jobs/ghost")
	if err != nil {
		t.Fatalf("detail request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", res.StatusCode)
	}
}

func TestDownloadHandlerGatedOnCompletion(t *testing.T) {
	srv, be, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/jobs/running-1/download")
	if err != nil {
		t.Fatalf("download request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 while job is running, got %d", res.StatusCode)
	}
	be.mu.Lock()
	if be.downloadCalls != 0 {
		t.Errorf("backend download resolved for an unfinished job")
	}
	be.mu.Unlock()

	res, err = http.Get(srv.URL + "/jobs/done-1/download")
	if err != nil {
		t.Fatalf("download request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for completed job, got %d", res.StatusCode)
	}

	var info models.DownloadInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if info.Filename != "done-1.mp4" {
		t.Errorf("unexpected download info: %+v", info)
	}
}

func TestDownloadHandlerGeneratesMissingFilename(t *testing.T) {
	srv, _, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/jobs/noname-1/download")
	if err != nil {
		t.Fatalf("download request failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}

	var info models.DownloadInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if info.Filename != "Unnamed_ Clip.webm" {
		t.Errorf("expected a generated filename from the job title, got %q", info.Filename)
	}
}

func TestUnwatchJobHandler(t *testing.T) {
	srv, _, tracker := newTestServer(t)

	tracker.Watch("running-1")
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/jobs/running-1", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unwatch request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", res.StatusCode)
	}
	if _, ok := tracker.Snapshot("running-1"); ok {
		t.Errorf("expected watcher to be evicted after unwatch")
	}
}

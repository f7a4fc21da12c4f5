package track

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ytqgo/internal/backend"
	"ytqgo/internal/models"
)

const (
	DefaultJobInterval  = 3 * time.Second
	DefaultListInterval = 5 * time.Second
	DefaultCatalogTTL   = 5 * time.Minute
	DefaultPageSize     = 10
)

// Backend is the transport capability set the tracker needs. *backend.Client
// satisfies it; tests swap in fakes.
type Backend interface {
	Health(ctx context.Context) (models.Health, error)
	ResolveFormats(ctx context.Context, url string) (models.FormatCatalog, error)
	SubmitJob(ctx context.Context, url, format string) (models.Job, error)
	ListJobs(ctx context.Context, page, pageSize int) (models.JobPage, error)
	JobDetail(ctx context.Context, id string) (models.Job, error)
	ResolveDownload(ctx context.Context, id string) (models.DownloadInfo, error)
}

// Options configures a Tracker. Zero values fall back to the defaults above.
type Options struct {
	Backend      Backend
	Scheduler    Scheduler
	JobInterval  time.Duration
	ListInterval time.Duration
	CatalogTTL   time.Duration

	// OnJob fires on every tracked-job snapshot change, OnJobs on every job
	// list refresh. Both may be nil. They run on tracker goroutines and must
	// not call back into the tracker.
	OnJob  func(Snapshot)
	OnJobs func()
}

// Tracker is the client-side job lifecycle engine: it owns one watcher per
// observed job id, the list aggregator and the format-catalog cache, and
// gates download resolution on completion.
type Tracker struct {
	backend     Backend
	sched       Scheduler
	jobInterval time.Duration
	onJob       func(Snapshot)

	catalogs *CatalogCache
	list     *ListTracker

	mu       sync.Mutex
	watchers map[string]*watcherRef
	stopped  bool
}

type watcherRef struct {
	watcher *JobWatcher
	refs    int
}

func New(opts Options) *Tracker {
	sched := opts.Scheduler
	if sched == nil {
		sched = NewScheduler()
	}
	jobInterval := opts.JobInterval
	if jobInterval <= 0 {
		jobInterval = DefaultJobInterval
	}
	listInterval := opts.ListInterval
	if listInterval <= 0 {
		listInterval = DefaultListInterval
	}
	catalogTTL := opts.CatalogTTL
	if catalogTTL <= 0 {
		catalogTTL = DefaultCatalogTTL
	}
	onJob := opts.OnJob
	if onJob == nil {
		onJob = func(Snapshot) {}
	}

	t := &Tracker{
		backend:     opts.Backend,
		sched:       sched,
		jobInterval: jobInterval,
		onJob:       onJob,
		catalogs:    NewCatalogCache(catalogTTL, opts.Backend.ResolveFormats),
		watchers:    make(map[string]*watcherRef),
	}
	t.list = NewListTracker(listInterval, sched, opts.Backend.ListJobs, opts.OnJobs)
	return t
}

// Start begins polling the job list on the default pagination window.
func (t *Tracker) Start() {
	go t.list.Start(0, DefaultPageSize)
}

// Stop halts the list aggregator and every job watcher.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	refs := make([]*watcherRef, 0, len(t.watchers))
	for _, ref := range t.watchers {
		refs = append(refs, ref)
	}
	t.watchers = make(map[string]*watcherRef)
	t.mu.Unlock()

	for _, ref := range refs {
		ref.watcher.Stop()
	}
	t.list.Stop()
}

func (t *Tracker) Health(ctx context.Context) (models.Health, error) {
	return t.backend.Health(ctx)
}

// ResolveFormats goes through the per-URL catalog cache.
func (t *Tracker) ResolveFormats(ctx context.Context, url string) (models.FormatCatalog, error) {
	return t.catalogs.Resolve(ctx, url)
}

// Submit creates a backend job, invalidates the list cache (after the job is
// durably created, never before) and starts watching the new id.
func (t *Tracker) Submit(ctx context.Context, url, format string) (models.Job, error) {
	if strings.TrimSpace(url) == "" {
		return models.Job{}, &backend.APIError{
			Kind:    backend.KindValidation,
			Code:    "validation_error",
			Message: "url is required",
		}
	}

	job, err := t.backend.SubmitJob(ctx, url, format)
	if err != nil {
		return models.Job{}, err
	}
	slog.Info("Job submitted", "id", job.Id, "url", url, "format", format)

	t.list.Invalidate()
	t.watch(job.Id, &job)
	return job, nil
}

// Watch starts (or joins) observation of a job id. Each Watch must be paired
// with an Unwatch; the underlying poller stops when the last observer leaves.
func (t *Tracker) Watch(id string) {
	t.watch(id, nil)
}

func (t *Tracker) watch(id string, seed *models.Job) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if ref, ok := t.watchers[id]; ok {
		ref.refs++
		t.mu.Unlock()
		return
	}
	w := NewJobWatcher(id, t.jobInterval, t.sched, t.backend.JobDetail, t.onJob)
	t.watchers[id] = &watcherRef{watcher: w, refs: 1}
	t.mu.Unlock()

	if seed != nil {
		w.Seed(*seed)
	}
	go w.Start()
}

// Unwatch drops one observer. When nobody is left watching the id, the
// poller is stopped and the snapshot evicted; pending fetches are cancelled
// with no further side effects.
func (t *Tracker) Unwatch(id string) {
	t.mu.Lock()
	ref, ok := t.watchers[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	ref.refs--
	if ref.refs > 0 {
		t.mu.Unlock()
		return
	}
	delete(t.watchers, id)
	t.mu.Unlock()

	ref.watcher.Stop()
	slog.Debug("Stopped watching job", "id", id)
}

// Snapshot returns the latest observed state of a tracked job.
func (t *Tracker) Snapshot(id string) (Snapshot, bool) {
	t.mu.Lock()
	ref, ok := t.watchers[id]
	t.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return ref.watcher.Snapshot(), true
}

// Detail returns the tracked snapshot for id, fetching and starting a
// watcher when the job is not yet observed.
func (t *Tracker) Detail(ctx context.Context, id string) (models.Job, error) {
	if snap, ok := t.Snapshot(id); ok && snap.HasJob {
		return snap.Job, nil
	}

	job, err := t.backend.JobDetail(ctx, id)
	if err != nil {
		return models.Job{}, err
	}
	job.ApplyProgressRules(0)
	t.watch(id, &job)
	return job, nil
}

// Page returns the aggregator's current page, switching the pagination
// window first when the caller asks for a different one.
func (t *Tracker) Page(page, pageSize int) (models.JobPage, error) {
	t.list.SetPage(page, pageSize)
	return t.list.Page()
}

// Jobs returns the classified view of the latest job list snapshot.
func (t *Tracker) Jobs() models.JobsView {
	return t.list.View()
}

// ResolveDownload returns a fresh artifact descriptor, gated on the job
// having reached COMPLETED. The descriptor is never cached because the
// signed URL may be short-lived or single-use.
func (t *Tracker) ResolveDownload(ctx context.Context, id string) (models.DownloadInfo, error) {
	status, known := t.status(id)
	if !known {
		job, err := t.backend.JobDetail(ctx, id)
		if err != nil {
			return models.DownloadInfo{}, err
		}
		status = job.Status
	}
	if status != models.StatusCompleted {
		return models.DownloadInfo{}, backend.NotReadyError(id)
	}
	return t.backend.ResolveDownload(ctx, id)
}

func (t *Tracker) status(id string) (models.JobStatus, bool) {
	snap, ok := t.Snapshot(id)
	if !ok || !snap.HasJob {
		return "", false
	}
	return snap.Job.Status, true
}

package track

import (
	"context"
	"sync"
	"time"

	"ytqgo/internal/models"
)

// FetchPage retrieves one page of the backend's job list.
type FetchPage func(ctx context.Context, page, pageSize int) (models.JobPage, error)

type pageKey struct {
	page     int
	pageSize int
}

// ListTracker mirrors the paginated job list through periodic refetch,
// independent of any single job's watcher. The pagination parameters are part
// of the cache key: changing them always goes back to the backend, since it
// owns ordering and totals.
type ListTracker struct {
	fetch    FetchPage
	sched    Scheduler
	interval time.Duration
	notify   func()

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	key      pageKey
	snap     models.JobPage
	err      error
	hasPage  bool
	gen      uint64
	applied  uint64
	inflight bool
	task     Task
	stopped  bool
}

func NewListTracker(interval time.Duration, sched Scheduler, fetch FetchPage, notify func()) *ListTracker {
	if notify == nil {
		notify = func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ListTracker{
		fetch:    fetch,
		sched:    sched,
		interval: interval,
		notify:   notify,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins polling the given page immediately.
func (l *ListTracker) Start(page, pageSize int) {
	l.mu.Lock()
	l.key = pageKey{page: page, pageSize: pageSize}
	l.mu.Unlock()
	l.poll()
}

// SetPage switches the tracked pagination window. A changed key drops the
// cached page and triggers an immediate fresh fetch; responses still in
// flight for the old key are discarded when they land.
func (l *ListTracker) SetPage(page, pageSize int) {
	key := pageKey{page: page, pageSize: pageSize}
	l.mu.Lock()
	if l.stopped || l.key == key {
		l.mu.Unlock()
		return
	}
	l.key = key
	l.snap = models.JobPage{}
	l.hasPage = false
	l.err = nil
	l.gen++ // logically supersede anything in flight
	if l.task != nil {
		l.task.Cancel()
		l.task = nil
	}
	l.mu.Unlock()
	l.poll()
}

// Invalidate forces a refetch ahead of schedule, e.g. right after a job
// submission succeeded. The refetch runs in the background so the caller
// (typically a submission in flight) is not held up by it.
func (l *ListTracker) Invalidate() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	if l.task != nil {
		l.task.Cancel()
		l.task = nil
	}
	l.mu.Unlock()
	go l.poll()
}

func (l *ListTracker) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	if l.task != nil {
		l.task.Cancel()
		l.task = nil
	}
	l.cancel()
}

// Page returns the latest snapshot and the last fetch error. Right after a
// pagination change, before the fresh fetch lands, the returned page is
// empty rather than the previous window's data.
func (l *ListTracker) Page() (models.JobPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasPage {
		return models.JobPage{Page: l.key.page, PageSize: l.key.pageSize}, l.err
	}
	return l.snap, l.err
}

// View classifies the latest snapshot. The buckets are pure filters, not
// separately tracked state.
func (l *ListTracker) View() models.JobsView {
	l.mu.Lock()
	defer l.mu.Unlock()

	view := models.JobsView{Total: l.snap.Total}
	for _, job := range l.snap.Jobs {
		switch job.Status {
		case models.StatusQueued, models.StatusRunning:
			view.Active = append(view.Active, job)
		case models.StatusCompleted:
			view.Completed = append(view.Completed, job)
		case models.StatusFailed:
			view.Failed = append(view.Failed, job)
		case models.StatusExpired:
			view.Expired = append(view.Expired, job)
		}
	}
	return view
}

func (l *ListTracker) poll() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	if l.inflight {
		l.reschedule(l.interval)
		l.mu.Unlock()
		return
	}
	l.inflight = true
	l.gen++
	gen := l.gen
	key := l.key
	ctx := l.ctx
	l.mu.Unlock()

	page, err := l.fetch(ctx, key.page, key.pageSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight = false
	if l.stopped || gen <= l.applied {
		return
	}
	if key != l.key {
		// the window moved while this fetch was in flight; discard the
		// response and go straight at the new key instead of waiting out
		// a full interval
		l.reschedule(0)
		return
	}
	l.applied = gen

	if err != nil {
		l.err = err
	} else {
		l.snap = page
		l.err = nil
		l.hasPage = true
	}
	l.reschedule(l.interval)
	l.notify()
}

// reschedule replaces any pending task so skips never fork a second polling
// chain. Callers hold l.mu.
func (l *ListTracker) reschedule(d time.Duration) {
	if l.task != nil {
		l.task.Cancel()
	}
	l.task = l.sched.Schedule(d, l.poll)
}

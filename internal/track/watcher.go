package track

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ytqgo/internal/models"
)

// Snapshot is what observers see for a tracked job: the last good state plus
// the last fetch error, which are deliberately separate. Err set means "we
// don't know the current state"; a FAILED Job means "we know, and it failed".
type Snapshot struct {
	Job       models.Job
	HasJob    bool
	Err       error
	FetchedAt time.Time
}

// FetchJob retrieves the current server-side state of one job.
type FetchJob func(ctx context.Context, id string) (models.Job, error)

// JobWatcher polls a single job until it reaches a terminal status. The
// transition rules live entirely on the server; the watcher only mirrors
// what each fetch reports.
//
// Polling contract:
//   - first fetch happens immediately on Start
//   - while the job is active, the next fetch is scheduled interval after the
//     previous one completes
//   - if a fetch is still in flight when the next one is due, the due fetch
//     is skipped and rescheduled (no request pile-up)
//   - on the first terminal observation exactly one more fetch captures the
//     final fields, then scheduling stops for good
//   - Stop cancels the pending task and the in-flight request; afterwards the
//     snapshot never mutates again
type JobWatcher struct {
	id       string
	fetch    FetchJob
	sched    Scheduler
	interval time.Duration
	notify   func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	snap         Snapshot
	gen          uint64
	applied      uint64
	inflight     bool
	task         Task
	stopped      bool
	terminalSeen bool
	done         bool
}

func NewJobWatcher(id string, interval time.Duration, sched Scheduler, fetch FetchJob, notify func(Snapshot)) *JobWatcher {
	if notify == nil {
		notify = func(Snapshot) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobWatcher{
		id:       id,
		fetch:    fetch,
		sched:    sched,
		interval: interval,
		notify:   notify,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *JobWatcher) ID() string {
	return w.id
}

// Seed installs an already-known job state, typically the submission
// response, so observers have something to show before the first poll lands.
func (w *JobWatcher) Seed(job models.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.snap.HasJob {
		return
	}
	job.ApplyProgressRules(0)
	w.snap = Snapshot{Job: job, HasJob: true, FetchedAt: time.Now()}
	if job.Status.IsTerminal() {
		w.terminalSeen = true
	}
	w.notify(w.snap)
}

// Start issues the first fetch synchronously and schedules the rest.
func (w *JobWatcher) Start() {
	w.poll()
}

// Stop permanently halts polling. Any pending scheduled fetch is cancelled
// and an in-flight response is discarded, so no state mutation can happen
// after Stop returns.
func (w *JobWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.task != nil {
		w.task.Cancel()
		w.task = nil
	}
	w.cancel()
}

// Snapshot returns the latest observed state.
func (w *JobWatcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

func (w *JobWatcher) poll() {
	w.mu.Lock()
	if w.stopped || w.done {
		w.mu.Unlock()
		return
	}
	if w.inflight {
		// previous fetch still running; keep the cadence without stacking
		// a second request
		w.reschedule(w.interval)
		w.mu.Unlock()
		return
	}
	w.inflight = true
	w.gen++
	gen := w.gen
	ctx := w.ctx
	w.mu.Unlock()

	job, err := w.fetch(ctx, w.id)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight = false
	if w.stopped || gen <= w.applied {
		// cancelled, or a newer fetch already landed
		return
	}
	w.applied = gen

	if err != nil {
		// a failed fetch is not a job transition: keep the last good state,
		// surface the error, stay on schedule
		w.snap.Err = err
		w.snap.FetchedAt = time.Now()
		w.reschedule(w.interval)
		w.notify(w.snap)
		return
	}

	prev := 0
	if w.snap.HasJob {
		prev = w.snap.Job.Progress
	}
	if w.terminalSeen && !job.Status.IsTerminal() {
		// terminal is absorbing; a stray non-terminal payload cannot
		// resurrect the job
		slog.Warn("Ignoring non-terminal payload for finished job", "id", w.id, "status", job.Status)
		w.done = true
		return
	}
	job.ApplyProgressRules(prev)
	w.snap = Snapshot{Job: job, HasJob: true, FetchedAt: time.Now()}

	switch {
	case !job.Status.IsTerminal():
		w.reschedule(w.interval)
	case !w.terminalSeen:
		// one more fetch to capture the final fields
		w.terminalSeen = true
		w.reschedule(0)
	default:
		w.done = true
		if w.task != nil {
			w.task.Cancel()
			w.task = nil
		}
		slog.Debug("Job watcher finished", "id", w.id, "status", job.Status)
	}
	w.notify(w.snap)
}

// reschedule replaces any pending task so skips never fork a second polling
// chain. Callers hold w.mu.
func (w *JobWatcher) reschedule(d time.Duration) {
	if w.task != nil {
		w.task.Cancel()
	}
	w.task = w.sched.Schedule(d, w.poll)
}

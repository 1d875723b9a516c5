package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// reconcileJob is one background polling loop for one payment record.
type reconcileJob struct {
	cancel   context.CancelFunc
	attempts int
}

// Reconciler polls the gateway for every in-flight record on a fixed interval
// until the record turns terminal or the attempt budget runs out, at which point
// the stuck leg is force-failed. Job identity is the record id: watching a record
// that already has a job replaces the job and resets its attempt count.
type Reconciler struct {
	applier     TransitionApplier
	repo        RepositoryAPI
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger

	mu   sync.Mutex
	jobs map[int64]*reconcileJob
	wg   sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

func NewReconciler(repo RepositoryAPI, interval time.Duration, maxAttempts int, logger *slog.Logger) *Reconciler {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Reconciler{
		repo:        repo,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		jobs:        make(map[int64]*reconcileJob),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
	}
}

// Bind attaches the transition applier after construction; the applier and the
// reconciler reference each other.
func (r *Reconciler) Bind(applier TransitionApplier) {
	r.applier = applier
}

// Watch starts (or restarts) polling for a record. Restarting replaces the
// existing job and resets its attempt count. A single job follows the record
// across both legs; the attempt budget covers the whole settlement.
func (r *Reconciler) Watch(recordID int64) {
	ctx, cancel := context.WithCancel(r.baseCtx)
	job := &reconcileJob{cancel: cancel}

	r.mu.Lock()
	if existing, ok := r.jobs[recordID]; ok {
		existing.cancel()
	}
	r.jobs[recordID] = job
	r.mu.Unlock()

	r.logger.Info("reconciliation started", "payment_id", recordID, "interval", r.interval)

	r.wg.Add(1)
	go r.run(ctx, recordID, job)
}

// Cancel stops polling for a record. Safe to call for records that are not
// being watched, and safe to call from inside a job's own tick.
func (r *Reconciler) Cancel(recordID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[recordID]
	if !ok {
		return
	}
	job.cancel()
	delete(r.jobs, recordID)
}

// Resume re-attaches polling jobs to every record left in flight by a previous
// process. Called once on startup, after the applier is bound.
func (r *Reconciler) Resume(ctx context.Context) error {
	records, err := r.repo.GetInFlight()
	if err != nil {
		return err
	}

	for _, rec := range records {
		r.logger.Info("resuming reconciliation for in-flight payment",
			"payment_id", rec.ID, "status", rec.Status)
		r.Watch(rec.ID)
	}

	if len(records) > 0 {
		r.logger.Info("reconciliation resumed", "count", len(records))
	}
	return nil
}

// Shutdown cancels every job and waits for the polling goroutines to drain.
func (r *Reconciler) Shutdown() {
	r.baseCancel()
	r.wg.Wait()

	r.mu.Lock()
	r.jobs = make(map[int64]*reconcileJob)
	r.mu.Unlock()

	r.logger.Info("reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context, recordID int64, job *reconcileJob) {
	defer r.wg.Done()
	defer r.cleanup(recordID, job)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job.attempts++
		terminal, err := r.applier.Reconcile(ctx, recordID)
		if err != nil {
			r.logger.Warn("reconcile attempt failed",
				"payment_id", recordID,
				"attempt", job.attempts,
				"error", err)
		}
		if terminal {
			r.logger.Info("reconciliation finished", "payment_id", recordID, "attempts", job.attempts)
			return
		}

		if job.attempts >= r.maxAttempts {
			r.logger.Warn("reconciliation attempt budget exhausted",
				"payment_id", recordID, "attempts", job.attempts)
			if err := r.applier.ForceTimeout(ctx, recordID); err != nil {
				r.logger.Error("failed to force timeout", "payment_id", recordID, "error", err)
			}
			return
		}
	}
}

// cleanup removes the job from the map only if it is still the current one;
// Watch may have replaced it while this goroutine was winding down.
func (r *Reconciler) cleanup(recordID int64, job *reconcileJob) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.jobs[recordID]; ok && current == job {
		delete(r.jobs, recordID)
	}
}

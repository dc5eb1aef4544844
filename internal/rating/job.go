package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/onnwee/panditseva/internal/jobs"
)

// ReconcileJobConfig configures the aggregate reconcile job.
type ReconcileJobConfig struct {
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for performance tracking.
	Metrics *Metrics
	// Locker must be the locker used by Service so a repair never
	// interleaves with a submission for the same subject.
	Locker SubjectLocker
}

// DefaultReconcileInterval is the default interval between reconcile cycles.
const DefaultReconcileInterval = 5 * time.Minute

// DefaultReconcileTimeout is the default timeout for a single reconcile cycle.
const DefaultReconcileTimeout = 30 * time.Second

// driftTolerance is the largest difference between a stored and a
// recomputed aggregate that is not treated as drift.
const driftTolerance = 1e-9

// ReconcileJob recomputes the mean rating of subjects that received reviews
// and repairs stored aggregates that no longer match their reviews, for
// example after a partial write or a manual edit. Run it on a schedule
// with Periodic.
type ReconcileJob struct {
	config ReconcileJobConfig
	dirty  *DirtyTracker
	store  ReviewStore
}

// NewReconcileJob creates a new aggregate reconcile job.
func NewReconcileJob(config ReconcileJobConfig, dirty *DirtyTracker, store ReviewStore) *ReconcileJob {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Locker == nil {
		config.Locker = NewKeyedMutex()
	}
	return &ReconcileJob{config: config, dirty: dirty, store: store}
}

// Periodic wraps the job in a jobs.Periodic that runs it every interval,
// bounding each cycle by DefaultReconcileTimeout.
func (j *ReconcileJob) Periodic(interval time.Duration, metrics *jobs.Metrics) *jobs.Periodic {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return jobs.NewPeriodic(jobs.PeriodicConfig{
		JobType:  jobs.JobTypeRatingReconcile,
		Interval: interval,
		Timeout:  DefaultReconcileTimeout,
		Run:      j.Run,
		Metrics:  metrics,
		Logger:   j.config.Logger,
	})
}

// Run reconciles every dirty subject once. Subjects that fail or are not
// reached before ctx expires stay dirty for the next cycle.
func (j *ReconcileJob) Run(ctx context.Context) error {
	subjects := j.dirty.DirtySubjects()
	if len(subjects) == 0 {
		return nil
	}

	startTime := time.Now()
	total := len(subjects)
	var processed, repaired int
	var errs []error

	j.config.Logger.Info("reconciling rating aggregates", "dirty_count", total)

	for i, subject := range subjects {
		if err := ctx.Err(); err != nil {
			j.config.Logger.Error("rating reconcile timeout exceeded",
				"processed", i,
				"total", total)
			j.incErrors()
			j.recordCycle(startTime, processed)
			return fmt.Errorf("reconcile stopped after %d of %d subjects: %w", i, total, err)
		}

		fixed, err := j.reconcileSubject(ctx, subject, startTime)
		if err != nil {
			j.config.Logger.Error("failed to reconcile rating aggregate",
				"subject", subject.Key(),
				"error", err)
			j.incErrors()
			errs = append(errs, fmt.Errorf("%s: %w", subject.Key(), err))
			continue
		}
		if fixed {
			repaired++
		}
		processed++
	}
	j.recordCycle(startTime, processed)

	j.config.Logger.Info("rating reconcile completed",
		"duration_seconds", time.Since(startTime).Seconds(),
		"subjects_processed", processed,
		"subjects_failed", total-processed,
		"aggregates_repaired", repaired)
	return errors.Join(errs...)
}

func (j *ReconcileJob) incErrors() {
	if j.config.Metrics != nil {
		j.config.Metrics.IncReconcileErrors()
	}
}

func (j *ReconcileJob) recordCycle(startTime time.Time, processed int) {
	if j.config.Metrics == nil {
		return
	}
	j.config.Metrics.IncReconcileTotal()
	j.config.Metrics.ObserveReconcileDuration(time.Since(startTime).Seconds())
	j.config.Metrics.SetLastReconcileTimestamp(float64(time.Now().Unix()))
	j.config.Metrics.SetLastReconcileSubjectCount(float64(processed))
}

// reconcileSubject recomputes the mean for subject and overwrites the stored
// aggregate when it drifted. Reports whether a repair was made.
func (j *ReconcileJob) reconcileSubject(ctx context.Context, subject Subject, cycleStart time.Time) (bool, error) {
	unlock, err := j.config.Locker.Lock(ctx, subject.Key())
	if err != nil {
		return false, err
	}
	defer unlock()

	reviews, err := j.store.ListBySubject(ctx, subject)
	if err != nil {
		return false, err
	}
	want := Mean(subject, reviews)

	stored, err := j.store.Aggregate(ctx, subject)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}

	repaired := false
	if errors.Is(err, ErrNotFound) || math.Abs(stored-want) > driftTolerance {
		if err := j.store.SetAggregate(ctx, subject, want); err != nil {
			return false, err
		}
		repaired = true
		if j.config.Metrics != nil {
			j.config.Metrics.IncReconcileRepaired()
		}
		j.config.Logger.Warn("repaired drifted rating aggregate",
			"subject", subject.Key(),
			"stored", stored,
			"recomputed", want,
			"reviews", len(reviews))
	}

	j.dirty.ClearDirty(subject, cycleStart)
	return repaired, nil
}

package applier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/corpadmin/migration-api/internal/config"
	"github.com/corpadmin/migration-api/internal/database"
	"github.com/corpadmin/migration-api/internal/inspect"
	"github.com/corpadmin/migration-api/internal/ledger"
	"github.com/corpadmin/migration-api/internal/logging"
	"github.com/corpadmin/migration-api/internal/migration"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// ProgressEvent is emitted for each pending script processed.
type ProgressEvent struct {
	Script   *migration.Script
	Status   string
	Duration time.Duration
	Error    error
}

// Store is the datastore side of the applier: the ledger table plus the
// lock that serializes runs.
type Store interface {
	EnsureTable(ctx context.Context) error
	GetApplied(ctx context.Context) ([]ledger.Record, error)
	Apply(ctx context.Context, s *migration.Script) (ledger.Outcome, error)
	TryLock(ctx context.Context, name string) (ledger.Releaser, error)
}

// Drift is an applied script whose body no longer matches the recorded checksum.
type Drift struct {
	Filename string `json:"filename"`
	Recorded string `json:"recorded_checksum"`
	Current  string `json:"current_checksum"`
}

// Result summarizes one run. Applied is in execution order and, when the run
// fails, holds the scripts that completed before the failure.
type Result struct {
	RunID    string
	Applied  []string
	Pending  []string
	Count    int
	Drift    []Drift
	Findings []inspect.Finding
}

// Applier applies the pending scripts of one migrations directory.
type Applier struct {
	store      Store
	dir        string
	ext        string
	lockName   string
	inspect    bool
	dryRun     bool
	log        logrus.FieldLogger
	onProgress func(ProgressEvent)
	newRunID   func() string
	group      singleflight.Group
}

// Option configures an Applier.
type Option func(*Applier)

// WithExtension sets the file extension of migration scripts.
func WithExtension(ext string) Option {
	return func(a *Applier) { a.ext = ext }
}

// WithInspection enables pg_query inspection of pending scripts.
func WithInspection(b bool) Option {
	return func(a *Applier) { a.inspect = b }
}

// WithDryRun enables dry-run mode where no SQL is executed.
func WithDryRun(b bool) Option {
	return func(a *Applier) { a.dryRun = b }
}

// WithProgressCallback sets a function called for each script processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(a *Applier) { a.onProgress = fn }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Applier) { a.log = l }
}

// New creates an Applier for the scripts in dir.
func New(store Store, dir string, opts ...Option) *Applier {
	a := &Applier{
		store:    store,
		dir:      dir,
		ext:      config.DefaultExtension,
		lockName: database.LockName(dir),
		log:      logging.Discard(),
		newRunID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// ApplyPending executes every script in the directory that has no ledger
// record, in lexicographic filename order, stopping at the first failure.
// Concurrent callers in the same process share one run; runs in other
// processes are excluded by a datastore lock and get ErrLockNotAcquired.
//
// On failure the returned Result is still populated and the error is an
// *ApplyError when a script failed.
func (a *Applier) ApplyPending(ctx context.Context) (*Result, error) {
	v, err, shared := a.group.Do(a.dir, func() (any, error) {
		return a.run(ctx)
	})

	res, _ := v.(*Result)

	if shared && res != nil {
		a.log.WithField("run_id", res.RunID).Debug("joined in-flight migration run")
	}

	return res, err
}

func (a *Applier) run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: a.newRunID(), Applied: []string{}}
	log := a.log.WithField("run_id", res.RunID)

	lock, err := a.store.TryLock(ctx, a.lockName)
	if err != nil {
		return res, fmt.Errorf("acquiring migration lock: %w", err)
	}

	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.WithError(relErr).Warn("releasing migration lock")
		}
	}()

	if err := a.store.EnsureTable(ctx); err != nil {
		return res, err
	}

	pending, err := a.diff(ctx, log, res)
	if err != nil {
		return res, err
	}

	log.WithField("pending", len(pending)).Info("migration run started")

	for i := range pending {
		s := &pending[i]

		a.inspectScript(log, s, res)

		if a.dryRun {
			res.Pending = append(res.Pending, s.Filename)
			a.fireProgress(ProgressEvent{Script: s, Status: StatusSkipped})

			continue
		}

		if err := a.applyOne(ctx, log, s); err != nil {
			res.Count = len(res.Applied)

			return res, err
		}

		res.Applied = append(res.Applied, s.Filename)
	}

	res.Count = len(res.Applied)
	log.WithField("count", res.Count).Info("migration run finished")

	return res, nil
}

// diff returns the scripts without a ledger record and records drift for
// the ones that have one.
func (a *Applier) diff(ctx context.Context, log logrus.FieldLogger, res *Result) ([]migration.Script, error) {
	records, err := a.store.GetApplied(ctx)
	if err != nil {
		return nil, err
	}

	applied := make(map[string]ledger.Record, len(records))
	for _, r := range records {
		applied[r.Filename] = r
	}

	scripts, err := migration.LoadFromDir(a.dir, a.ext)
	if err != nil {
		return nil, err
	}

	var pending []migration.Script

	for _, s := range scripts {
		rec, ok := applied[s.Filename]
		if !ok {
			pending = append(pending, s)

			continue
		}

		if d, drifted := checkDrift(rec, &s); drifted {
			res.Drift = append(res.Drift, d)
			log.WithFields(logrus.Fields{
				"filename":          d.Filename,
				"recorded_checksum": d.Recorded,
				"current_checksum":  d.Current,
			}).Warn("applied migration changed on disk")
		}
	}

	return pending, nil
}

// checkDrift compares a ledger record with the script on disk. Records
// written without a checksum are never reported.
func checkDrift(rec ledger.Record, s *migration.Script) (Drift, bool) {
	if rec.Checksum == "" || rec.Checksum == s.Checksum {
		return Drift{}, false
	}

	return Drift{Filename: s.Filename, Recorded: rec.Checksum, Current: s.Checksum}, true
}

func (a *Applier) inspectScript(log logrus.FieldLogger, s *migration.Script, res *Result) {
	if !a.inspect {
		return
	}

	report, err := inspect.Inspect(s)
	if err != nil {
		log.WithError(err).WithField("filename", s.Filename).Warn("skipping inspection")

		return
	}

	for _, f := range report.Findings {
		log.WithFields(logrus.Fields{
			"filename": f.Filename,
			"rule":     f.Rule,
			"severity": f.Severity.String(),
			"table":    f.Table,
		}).Warn(f.Message)
	}

	res.Findings = append(res.Findings, report.Findings...)
}

func (a *Applier) applyOne(ctx context.Context, log logrus.FieldLogger, s *migration.Script) error {
	a.fireProgress(ProgressEvent{Script: s, Status: StatusStarting})

	out, err := a.store.Apply(ctx, s)
	if err != nil {
		a.fireProgress(ProgressEvent{Script: s, Status: StatusFailed, Duration: out.Duration, Error: err})
		log.WithError(err).WithField("filename", s.Filename).Error("migration failed")

		return &ApplyError{Filename: s.Filename, Err: err}
	}

	a.fireProgress(ProgressEvent{Script: s, Status: StatusCompleted, Duration: out.Duration})
	log.WithFields(logrus.Fields{
		"filename":      s.Filename,
		"duration_ms":   out.Duration.Milliseconds(),
		"transactional": out.Transactional,
	}).Info("migration applied")

	return nil
}

func (a *Applier) fireProgress(event ProgressEvent) {
	if a.onProgress != nil {
		a.onProgress(event)
	}
}

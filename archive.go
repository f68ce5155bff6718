package lazarus

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"
)

// DefaultArchiveAge is how old an incident must be before the sweep marks it
const DefaultArchiveAge = 48 * time.Hour

// DefaultArchiveSchedule runs the sweep daily at 03:00 UTC
const DefaultArchiveSchedule = "0 3 * * *"

// ArchiveReport is the outcome of one sweep
type ArchiveReport struct {
	Archived    int         `json:"archived"`
	IncidentIDs []uuid.UUID `json:"incident_ids"`
	Cutoff      time.Time   `json:"cutoff"`
	RanAt       time.Time   `json:"ran_at"`
}

// Archiver marks old incidents archived. Running it twice archives nothing
// the second time.
type Archiver struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	maxAge   time.Duration
	now      func() time.Time
}

func NewArchiver(repo RepositoryManager) *Archiver {
	return &Archiver{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		maxAge:   DefaultArchiveAge,
		now:      time.Now,
	}
}

func (a *Archiver) WithActivitySink(sink ActivitySink) *Archiver {
	a.activity = normalizeActivitySink(sink)
	return a
}

func (a *Archiver) WithLogger(logger Logger) *Archiver {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *Archiver) WithMaxAge(age time.Duration) *Archiver {
	if age > 0 {
		a.maxAge = age
	}
	return a
}

func (a *Archiver) WithClock(clock func() time.Time) *Archiver {
	if clock != nil {
		a.now = clock
	}
	return a
}

// Run archives every unarchived incident older than the max age and records
// one activity event per incident it changed.
func (a *Archiver) Run(ctx context.Context) (ArchiveReport, error) {
	select {
	case <-ctx.Done():
		return ArchiveReport{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled before archive sweep")
	default:
	}

	// stored timestamps are compared as UTC
	now := a.now().UTC()
	report := ArchiveReport{
		Cutoff:      now.Add(-a.maxAge),
		RanAt:       now,
		IncidentIDs: []uuid.UUID{},
	}

	var archived []*Incident
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		archived, err = a.repo.Incidents().ArchiveOlderThanTx(ctx, tx, report.Cutoff, now)
		return err
	})
	if err != nil {
		return report, goerrors.Wrap(err, goerrors.CategoryInternal, "archive sweep failed")
	}

	for _, inc := range archived {
		report.IncidentIDs = append(report.IncidentIDs, inc.ID)
		recordActivity(ctx, a.activity, a.logger, a.now, ActivityEvent{
			EventType:  ActivityEventIncidentArchived,
			Actor:      SystemActor,
			Subject:    IdentityRef{ID: inc.ReporterID, Role: RoleCitizen},
			IncidentID: inc.ID.String(),
			FromStatus: inc.Status,
			ToStatus:   inc.Status,
			Metadata:   map[string]any{"archived_at": now},
		})
	}
	report.Archived = len(report.IncidentIDs)

	a.logger.Info("archive sweep completed", "archived", report.Archived, "cutoff", report.Cutoff)
	return report, nil
}

// ArchiveScheduler runs the Archiver on a cron schedule in its own goroutine
type ArchiveScheduler struct {
	mu       sync.Mutex
	archiver *Archiver
	spec     string
	logger   Logger
	cron     *cron.Cron
	running  bool
	cancel   context.CancelFunc
}

// NewArchiveScheduler validates the cron expression (standard five field
// syntax, evaluated in UTC).
func NewArchiveScheduler(archiver *Archiver, spec string, logger Logger) (*ArchiveScheduler, error) {
	if spec == "" {
		spec = DefaultArchiveSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid archive schedule").
			WithMetadata(map[string]any{"schedule": spec})
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &ArchiveScheduler{
		archiver: archiver,
		spec:     spec,
		logger:   logger,
	}, nil
}

// Next returns the next run time after t
func (s *ArchiveScheduler) Next(t time.Time) time.Time {
	schedule, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(t.UTC())
}

// IsRunning reports whether the scheduler has been started
func (s *ArchiveScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartWithContext starts the schedule. Cancelling ctx stops it.
func (s *ArchiveScheduler) StartWithContext(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return goerrors.New("archive scheduler already running", goerrors.CategoryConflict)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(runCtx); err != nil {
			s.logger.Error("scheduled archive sweep failed", "error", err)
		}
	}); err != nil {
		cancel()
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid archive schedule")
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true

	go func() {
		<-runCtx.Done()
		_ = s.StopWithContext(context.Background())
	}()

	s.logger.Info("archive scheduler started", "schedule", s.spec, "next", s.Next(time.Now()))
	return nil
}

// StopWithContext stops the schedule and waits for a running sweep, or for
// ctx to end.
func (s *ArchiveScheduler) StopWithContext(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	cancel := s.cancel
	s.running = false
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	done := c.Stop()
	cancel()

	select {
	case <-done.Done():
		s.logger.Info("archive scheduler stopped")
		return nil
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "timed out waiting for archive sweep to finish")
	}
}

// RunOnce runs a single sweep now
func (s *ArchiveScheduler) RunOnce(ctx context.Context) (ArchiveReport, error) {
	return s.archiver.Run(ctx)
}

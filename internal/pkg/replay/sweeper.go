package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
	"github.com/ManuelReschke/Sermonario/internal/pkg/webhook"
)

// EventService is the part of webhook.Service the sweeper drives.
type EventService interface {
	Replay(ctx context.Context, eventID uint) (*webhook.Result, error)
	Repository() webhook.Repository
}

// Archiver copies a finalized event to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, event *models.WebhookEvent) (string, error)
}

// Config controls the sweeper. Schedules use the six-field cron format with
// seconds.
type Config struct {
	Schedule        string        `validate:"required"`
	ArchiveSchedule string        `validate:"required"`
	StaleAfter      time.Duration `validate:"gte=1s"`
	MaxAttempts     int           `validate:"gte=1,lte=100"`
	BatchSize       int           `validate:"gte=1,lte=1000"`
	RunTimeout      time.Duration `validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		Schedule:        "0 */5 * * * *",
		ArchiveSchedule: "0 30 3 * * *",
		StaleAfter:      10 * time.Minute,
		MaxAttempts:     5,
		BatchSize:       100,
		RunTimeout:      5 * time.Minute,
	}
}

// LoadConfig reads REPLAY_* settings on top of DefaultConfig.
func LoadConfig() (Config, error) {
	def := DefaultConfig()
	cfg := Config{
		Schedule:        env.GetEnv("REPLAY_SCHEDULE", def.Schedule),
		ArchiveSchedule: env.GetEnv("ARCHIVE_SCHEDULE", def.ArchiveSchedule),
		StaleAfter:      env.GetDuration("REPLAY_STALE_AFTER", def.StaleAfter),
		MaxAttempts:     env.GetInt("REPLAY_MAX_ATTEMPTS", def.MaxAttempts),
		BatchSize:       env.GetInt("REPLAY_BATCH_SIZE", def.BatchSize),
		RunTimeout:      def.RunTimeout,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// Sweeper periodically replays events that were never finalized and archives
// finalized ones.
type Sweeper struct {
	svc      EventService
	archiver Archiver
	cfg      Config
	cron     *cron.Cron
	now      func() time.Time
}

// New creates a sweeper. archiver may be nil to disable archiving.
func New(svc EventService, archiver Archiver, cfg Config) (*Sweeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid replay config: %w", err)
	}
	return &Sweeper{
		svc:      svc,
		archiver: archiver,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds()),
		now:      time.Now,
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.replayJob); err != nil {
		return fmt.Errorf("failed to add replay job: %w", err)
	}
	if s.archiver != nil {
		if _, err := s.cron.AddFunc(s.cfg.ArchiveSchedule, s.archiveJob); err != nil {
			return fmt.Errorf("failed to add archive job: %w", err)
		}
	}
	s.cron.Start()
	log.Infof("[Replay] Sweeper started (replay=%q, archive=%q, enabled=%t)", s.cfg.Schedule, s.cfg.ArchiveSchedule, s.archiver != nil)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	log.Info("[Replay] Sweeper stopped")
}

func (s *Sweeper) replayJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()
	replayed, failed, err := s.ReplayStale(ctx)
	if err != nil {
		log.Errorf("[Replay] Sweep failed: %v", err)
		return
	}
	if replayed+failed > 0 {
		log.Infof("[Replay] Sweep finished: replayed=%d failed=%d", replayed, failed)
	}
}

func (s *Sweeper) archiveJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()
	n, err := s.ArchiveFinalized(ctx)
	if err != nil {
		log.Errorf("[Replay] Archive run failed after %d events: %v", n, err)
		return
	}
	if n > 0 {
		log.Infof("[Replay] Archived %d events", n)
	}
}

// ReplayStale replays unfinalized events older than StaleAfter that have not
// exhausted MaxAttempts.
func (s *Sweeper) ReplayStale(ctx context.Context) (replayed, failed int, err error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	events, err := s.svc.Repository().ListReplayableWebhookEvents(ctx, cutoff, s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, ev := range events {
		if ctx.Err() != nil {
			return replayed, failed, ctx.Err()
		}
		_, rerr := s.svc.Replay(ctx, ev.ID)
		switch {
		case rerr == nil:
			replayed++
		case errors.Is(rerr, webhook.ErrEventAlreadyFinalized):
			// Finalized by a concurrent run since it was listed.
		default:
			failed++
			log.Warnf("[Replay] Event %d (delivery=%s) failed again: %v", ev.ID, ev.DeliveryID, rerr)
		}
	}
	return replayed, failed, nil
}

// ArchiveFinalized uploads finalized events that are not archived yet.
func (s *Sweeper) ArchiveFinalized(ctx context.Context) (int, error) {
	if s.archiver == nil {
		return 0, nil
	}
	repo := s.svc.Repository()
	events, err := repo.ListUnarchivedWebhookEvents(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	archived := 0
	for i := range events {
		ev := &events[i]
		if _, err := s.archiver.Archive(ctx, ev); err != nil {
			return archived, fmt.Errorf("archive event %d: %w", ev.ID, err)
		}
		if err := repo.MarkWebhookArchived(ctx, ev.ID, s.now()); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

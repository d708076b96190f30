package service

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/config"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
)

type ReconcileReport struct {
	Scanned  int
	Reminded int
	Expired  int
	Failed   int
}

type ReconcilerService interface {
	// RunOnce makes one pass over the active ledger as of now. Entry failures
	// are logged and counted; only a store failure ends the pass early.
	RunOnce(ctx context.Context, now time.Time) (ReconcileReport, error)
	Start(ctx context.Context) error
	Stop()
}

type reconcilerServiceImpl struct {
	cfg     config.Reconciler
	retry   RetryPolicy
	now     func() time.Time
	log     zerolog.Logger
	tg      client.TelegramClient
	catalog CatalogService
	access  AccessService
	subRepo repository.SubscriptionRepository

	cron    *cron.Cron
	running sync.WaitGroup
}

func NewReconcilerService(
	cfg config.Reconciler,
	retry RetryPolicy,
	now func() time.Time,
	log zerolog.Logger,
	tg client.TelegramClient,
	catalog CatalogService,
	access AccessService,
	subRepo repository.SubscriptionRepository,
) ReconcilerService {
	if now == nil {
		now = time.Now
	}
	return &reconcilerServiceImpl{
		cfg:     cfg,
		retry:   retry,
		now:     now,
		log:     log.With().Str("component", "reconciler").Logger(),
		tg:      tg,
		catalog: catalog,
		access:  access,
		subRepo: subRepo,
	}
}

// remainingDays is the number of whole days left before expiresAt, negative once it has passed.
func remainingDays(expiresAt, now time.Time) int {
	return int(math.Floor(expiresAt.Sub(now).Hours() / 24))
}

func (s *reconcilerServiceImpl) RunOnce(ctx context.Context, now time.Time) (ReconcileReport, error) {
	var report ReconcileReport

	names := map[string]string{}
	if settings, err := s.catalog.Settings(ctx); err == nil {
		for key, c := range settings.Categories {
			names[key] = c.Name
		}
	} else {
		s.log.Warn().Err(err).Msg("catalog unavailable, using category keys in notices")
	}

	for sub, err := range s.subRepo.ListActive(ctx) {
		if err != nil {
			return report, err
		}
		report.Scanned++

		name := names[sub.CategoryKey]
		if name == "" {
			name = sub.CategoryKey
		}

		remaining := remainingDays(sub.ExpiresAt, now)
		switch {
		case remaining < 0:
			s.expire(ctx, sub, name, now, &report)
		case !sub.ReminderSent && slices.Contains(s.cfg.ReminderDays, remaining):
			s.remind(ctx, sub, name, remaining, &report)
		}
	}

	return report, nil
}

func (s *reconcilerServiceImpl) expire(ctx context.Context, sub *model.Subscription, name string, now time.Time, report *ReconcileReport) {
	log := s.log.With().Str("subscription_id", sub.ID).Int64("buyer_id", sub.BuyerID).Logger()

	covered, err := withRetry(ctx, s.retry, "check renewal", func(ctx context.Context) (bool, error) {
		return s.subRepo.HasActiveCover(ctx, sub, now)
	})
	if err != nil {
		report.Failed++
		log.Error().Err(err).Msg("renewal check failed")
		return
	}
	if covered {
		// a renewal keeps the buyer in the chat
		changed, err := withRetry(ctx, s.retry, "mark expired", func(ctx context.Context) (bool, error) {
			return s.subRepo.MarkExpired(ctx, sub.ID)
		})
		if err != nil {
			report.Failed++
			log.Error().Err(err).Msg("mark expired failed")
			return
		}
		if changed {
			report.Expired++
			log.Info().Msg("subscription superseded by renewal")
		}
		return
	}

	if err := s.access.Revoke(ctx, sub.BuyerID, sub.ChatID); err != nil {
		if client.IsRetryable(err) {
			report.Failed++
			log.Warn().Err(err).Msg("revoke failed, retrying next pass")
			return
		}
		log.Error().Err(err).Msg("revoke refused, expiring anyway")
	}

	changed, err := withRetry(ctx, s.retry, "mark expired", func(ctx context.Context) (bool, error) {
		return s.subRepo.MarkExpired(ctx, sub.ID)
	})
	if err != nil {
		report.Failed++
		log.Error().Err(err).Msg("mark expired failed")
		return
	}
	if !changed {
		return
	}
	report.Expired++

	if _, err := s.tg.SendText(sub.BuyerID, expiredText(name), nil); err != nil {
		log.Warn().Err(err).Msg("expiry notice failed")
	}
	log.Info().Msg("subscription expired")
}

func (s *reconcilerServiceImpl) remind(ctx context.Context, sub *model.Subscription, name string, remaining int, report *ReconcileReport) {
	log := s.log.With().Str("subscription_id", sub.ID).Int64("buyer_id", sub.BuyerID).Logger()

	if _, err := s.tg.SendText(sub.BuyerID, reminderText(name, remaining, sub.ExpiresAt), nil); err != nil {
		if client.IsRetryable(err) {
			report.Failed++
			log.Warn().Err(err).Msg("reminder failed, retrying next pass")
			return
		}
		// blocked or deleted account, a later pass would fail the same way
		log.Info().Err(err).Msg("reminder undeliverable")
	}

	changed, err := withRetry(ctx, s.retry, "mark reminder sent", func(ctx context.Context) (bool, error) {
		return s.subRepo.MarkReminderSent(ctx, sub.ID)
	})
	if err != nil {
		report.Failed++
		log.Error().Err(err).Msg("mark reminder failed")
		return
	}
	if changed {
		report.Reminded++
	}
}

// Start runs one pass immediately and then one every interval. A pass that
// overruns the interval makes the next tick skip.
func (s *reconcilerServiceImpl) Start(ctx context.Context) error {
	cronLog := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)

	job := cron.NewChain(cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(func() {
		s.pass(ctx)
	}))
	s.cron.Schedule(cron.Every(s.cfg.Interval), job)

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		job.Run()
	}()

	s.cron.Start()
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("reconciler started")
	return nil
}

// Stop waits for an in-flight pass to finish.
func (s *reconcilerServiceImpl) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.running.Wait()
	s.log.Info().Msg("reconciler stopped")
}

func (s *reconcilerServiceImpl) pass(ctx context.Context) {
	// passes are not interrupted by shutdown
	ctx = context.WithoutCancel(ctx)
	if s.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
		defer cancel()
	}

	started := s.now()
	report, err := s.RunOnce(ctx, started)
	event := s.log.Info()
	if err != nil {
		event = s.log.Error().Err(err)
	}
	event.
		Int("scanned", report.Scanned).
		Int("reminded", report.Reminded).
		Int("expired", report.Expired).
		Int("failed", report.Failed).
		Dur("took", time.Since(started)).
		Msg("reconcile pass")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/config"
	"github.com/carebenefits/platform/internal/domain/accumulation"
	"github.com/carebenefits/platform/internal/domain/alegeus"
	"github.com/carebenefits/platform/internal/domain/appointment"
	"github.com/carebenefits/platform/internal/domain/eligibility"
	"github.com/carebenefits/platform/internal/domain/gdpr"
	"github.com/carebenefits/platform/internal/domain/member"
	"github.com/carebenefits/platform/internal/domain/messaging"
	"github.com/carebenefits/platform/internal/domain/wallet"
	"github.com/carebenefits/platform/internal/integrations/braze"
	"github.com/carebenefits/platform/internal/integrations/zendesk"
	"github.com/carebenefits/platform/internal/platform/blobstore"
	"github.com/carebenefits/platform/internal/platform/db"
	"github.com/carebenefits/platform/internal/platform/jobs"
	"github.com/carebenefits/platform/internal/platform/lock"
	"github.com/carebenefits/platform/internal/platform/websocket"
)

// app holds every service shared by the serve, worker and ops commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	queue      jobs.Queue
	memQueue   *jobs.MemoryQueue
	kafka      *jobs.KafkaQueue
	dispatcher *jobs.Dispatcher
	locker     lock.Locker
	lockPing   func(ctx context.Context) error
	blobs      blobstore.Store
	hub        *websocket.Hub

	members      *member.Service
	eligibility  *eligibility.Service
	appointments *appointment.Service
	messaging    *messaging.Service
	wallets      *wallet.Service
	alegeus      *alegeus.Service
	accumulation *accumulation.Service
	gdpr         *gdpr.Service

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	tx := db.Transactor(pool)

	// Job queue
	if len(cfg.KafkaBrokers) > 0 {
		w := jobs.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaJobsTopic)
		a.kafka = jobs.NewKafkaQueue(w)
		a.queue = a.kafka
		a.closers = append(a.closers, func() { _ = a.kafka.Close() })
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaJobsTopic).Msg("using kafka job queue")
	} else {
		a.memQueue = jobs.NewMemoryQueue()
		a.queue = a.memQueue
		logger.Warn().Msg("KAFKA_BROKERS not set, jobs run in process")
	}

	// Concurrent request lock
	if cfg.RedisURL != "" {
		client, err := lock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		r := lock.NewRedis(client, "benefits:lock:")
		a.locker = r
		a.lockPing = r.Ping
		a.closers = append(a.closers, func() { _ = client.Close() })
	} else {
		a.locker = lock.NewMemory()
		logger.Warn().Msg("REDIS_URL not set, concurrent request guard is process local")
	}

	// Object storage
	if cfg.S3Bucket != "" {
		client, err := blobstore.NewS3Client(ctx, cfg.AWSRegion, cfg.S3Endpoint)
		if err != nil {
			return err
		}
		a.blobs = blobstore.NewS3Store(client, cfg.S3Bucket)
	} else {
		a.blobs = blobstore.NewMemory()
		logger.Warn().Msg("S3_BUCKET not set, files are kept in memory")
	}

	a.hub = websocket.NewHub(logger)

	// Integrations
	tracker := braze.New(cfg.BrazeAPIURL, cfg.BrazeAPIKey, logger)
	var tickets messaging.Ticketing
	if cfg.ZendeskBaseURL != "" {
		tickets = zendesk.New(cfg.ZendeskBaseURL, cfg.ZendeskEmail, cfg.ZendeskAPIToken)
	}

	// Domains
	a.members = member.NewService(member.NewMemberRepoPG(pool), member.NewOrganizationRepoPG(pool))

	conn, err := eligibility.Dial(cfg.EligibilityGRPCAddr)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	e9y := eligibility.NewGRPCClient(conn, eligibility.WithMaxRetries(cfg.EligibilityMaxRetries))
	a.eligibility = eligibility.NewService(e9y, eligibility.NewVerificationRepoPG(pool), a.members, tx,
		logger.With().Str("component", "eligibility").Logger())

	a.appointments = appointment.NewService(
		appointment.NewPractitionerRepoPG(pool),
		appointment.NewProductRepoPG(pool),
		appointment.NewAvailabilityRepoPG(pool),
		appointment.NewAppointmentRepoPG(pool),
		tx, cfg.BookingMinLead(), logger.With().Str("component", "appointment").Logger(),
	)

	a.messaging = messaging.NewService(messaging.NewChannelRepoPG(pool), messaging.NewMessageRepoPG(pool),
		a.members, a.hub, a.queue, tickets, logger.With().Str("component", "messaging").Logger())

	walletRepo := wallet.NewWalletRepoPG(pool)
	settingsRepo := wallet.NewSettingsRepoPG(pool)
	requestRepo := wallet.NewRequestRepoPG(pool)
	cardRepo := wallet.NewDebitCardRepoPG(pool)
	a.wallets = wallet.NewService(walletRepo, settingsRepo, requestRepo, cardRepo, a.blobs, a.queue, tx,
		logger.With().Str("component", "wallet").Logger())

	if cfg.AlegeusBaseURL != "" {
		api := alegeus.NewClient(alegeus.Config{
			BaseURL:      cfg.AlegeusBaseURL,
			TPAID:        cfg.AlegeusTPAID,
			ClientID:     cfg.AlegeusClientID,
			ClientSecret: cfg.AlegeusClientSecret,
		})
		a.alegeus = alegeus.NewService(api, walletRepo, settingsRepo, requestRepo, cardRepo, a.members, a.wallets,
			logger.With().Str("component", "alegeus").Logger())
	} else {
		logger.Warn().Msg("ALEGEUS_BASE_URL not set, wallet jobs are not delivered")
	}

	profiles, err := accumulation.LoadProfiles(cfg.PayerProfilesFile)
	if err != nil {
		return err
	}
	a.accumulation = accumulation.NewService(profiles, accumulation.NewMappingRepoPG(pool),
		accumulation.NewProcedureRepoPG(pool), accumulation.NewReportRepoPG(pool), a.blobs, tx,
		logger.With().Str("component", "accumulation").Logger())

	planner, err := gdpr.NewPlanner(gdpr.DefaultTables())
	if err != nil {
		return err
	}
	a.gdpr = gdpr.NewService(planner, gdpr.NewRepo(pool), a.blobs, tx, logger)

	// Job handlers
	a.dispatcher = jobs.NewDispatcher(logger.With().Str("component", "jobs").Logger())
	a.dispatcher.Handle(braze.JobTrackEvent, braze.TrackEventJob(tracker))
	a.dispatcher.Handle(messaging.JobMessageTicket, a.messaging.MessageTicketJob())
	a.dispatcher.Handle(accumulation.JobGenerateFiles, a.accumulation.GenerateFilesJob())
	if a.alegeus != nil {
		a.alegeus.Register(a.dispatcher)
	}
	return nil
}

// scheduler registers the periodic jobs. Every replica schedules; the shared
// locker lets one of them enqueue each occurrence.
func (a *app) scheduler() (*jobs.Scheduler, error) {
	s := jobs.NewScheduler(a.locker, a.logger.With().Str("component", "cron").Logger())
	if err := s.EnqueueEvery(a.cfg.AccumulationCron, a.queue, accumulation.JobGenerateFiles, struct{}{}); err != nil {
		return nil, fmt.Errorf("ACCUMULATION_CRON: %w", err)
	}
	if a.alegeus != nil {
		if err := s.Every(a.cfg.DebitSyncCron, "debit_sync", a.alegeus.EnqueueDebitSync(a.queue)); err != nil {
			return nil, fmt.Errorf("DEBIT_SYNC_CRON: %w", err)
		}
	}
	return s, nil
}

// drainLoop runs in-process jobs until ctx is done. It is only used with the
// memory queue.
func (a *app) drainLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.memQueue.Drain(ctx, a.dispatcher)
		}
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

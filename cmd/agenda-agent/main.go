// Command agenda-agent runs the personal assistant: the chat webhook, the
// Google consent flow, the operational API and the background jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/config"
	httpapi "github.com/tbourn/go-agenda-agent/internal/http"
	"github.com/tbourn/go-agenda-agent/internal/http/handlers"
	"github.com/tbourn/go-agenda-agent/internal/intent"
	"github.com/tbourn/go-agenda-agent/internal/observability"
	"github.com/tbourn/go-agenda-agent/internal/providers/completion"
	"github.com/tbourn/go-agenda-agent/internal/providers/gateway"
	"github.com/tbourn/go-agenda-agent/internal/providers/google"
	"github.com/tbourn/go-agenda-agent/internal/repo"
	"github.com/tbourn/go-agenda-agent/internal/scheduler"
	"github.com/tbourn/go-agenda-agent/internal/services"
	"github.com/tbourn/go-agenda-agent/internal/state"
	"github.com/tbourn/go-agenda-agent/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		// Logger is not configured yet.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
	}
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	log := sysutil.SetupLogger(cfg.LogPretty, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version, log)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	idem := repo.NewIdempotency(db)
	tokens := repo.NewTokens(db)

	store := state.New(
		state.WithDedupCapacity(cfg.DedupCapacity),
		state.WithEventLogCapacity(cfg.EventLogCapacity),
	)

	auth := google.NewAuth(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI, cfg.Google.Scopes, tokens, log)
	if !auth.Configured() {
		log.Warn().Msg("google oauth not configured; mail and calendar are disabled")
	}
	mail := google.NewMail(auth)
	cal := google.NewCalendar(auth, cfg.Google.CalendarID, cfg.Location)

	if cfg.Completion.APIKey == "" {
		log.Warn().Msg("COMPLETION_API_KEY is empty; natural-language features will fail")
	}
	llm := completion.New(completion.Options{
		BaseURL: cfg.Completion.BaseURL,
		APIKey:  cfg.Completion.APIKey,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
		Logger:  log,
	})

	gw := gateway.New(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	notifier := services.NewDispatcher(gw, cfg.Gateway.Timeout, log)

	senders := services.NewSenderPolicy(cfg.Owner.Number, cfg.Owner.AllowExtendedIDs)
	triage := services.NewTriageMachine(store, mail, notifier, log)
	booking := services.NewBookingMachine(store, cal, llm, notifier, services.BookingOptions{
		Planner:     planner(cfg),
		Offices:     services.NewGazetteer(services.DefaultOffices()),
		SlotSource:  cfg.Booking.SlotSource,
		ClinicPhone: cfg.Booking.ClinicPhone,
	}, log)

	assistant := services.NewAssistant(services.AssistantConfig{
		Store:      store,
		Router:     intent.NewRouter(llm, cfg.Owner.CommandMode),
		Triage:     triage,
		Booking:    booking,
		Calendar:   cal,
		Completion: llm,
		Notifier:   notifier,
		Senders:    senders,
		Location:   cfg.Location,
		OwnerEmail: cfg.Owner.Email,
		Logger:     log,
	})

	jobs := scheduler.NewJobs(scheduler.JobsConfig{
		Store:           store,
		Mail:            mail,
		Calendar:        cal,
		Completion:      llm,
		Notifier:        notifier,
		OwnerKey:        senders.OwnerKey,
		OwnerAddress:    cfg.Owner.Number,
		Location:        cfg.Location,
		ReminderOffsets: cfg.Scheduler.ReminderOffsets,
		Logger:          log,
	})
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler.JobTimeout, log, jobs.Schedule(scheduler.Intervals{
			InboxPoll:     cfg.Scheduler.InboxPoll,
			ReminderSweep: cfg.Scheduler.ReminderSweep,
			GapRecommend:  cfg.Scheduler.GapRecommend,
		})...)
		sched.Start(ctx)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, handlers.Deps{
		Assistant: assistant,
		Idem:      idem,
		IdemTTL:   cfg.IdempotencyTTL,
		Status:    store,
		OAuth:     auth,
		Poller:    jobs,
		Mail:      mail,
		Location:  cfg.Location,
	}, idem.Live)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("timezone", cfg.Timezone).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go purgeIdempotency(ctx, idem, log)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if sched != nil {
		sched.Stop()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

func planner(cfg config.Config) services.SlotPlanner {
	p := services.DefaultSlotPlanner(cfg.Location)
	if cfg.Booking.HorizonDays > 0 {
		p.HorizonDays = cfg.Booking.HorizonDays
	}
	if cfg.Booking.CloseHour > cfg.Booking.OpenHour {
		p.OpenHour = cfg.Booking.OpenHour
		p.CloseHour = cfg.Booking.CloseHour
	}
	return p
}

// purgeIdempotency drops expired webhook records once an hour.
func purgeIdempotency(ctx context.Context, idem *repo.Idempotency, log zerolog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := idem.Purge(ctx); err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
			} else if n > 0 {
				log.Debug().Int64("rows", n).Msg("idempotency purged")
			}
		}
	}
}

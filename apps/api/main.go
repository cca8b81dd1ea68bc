package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/trezcool/trafikkvakt/apps/api/echo"
	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
	"github.com/trezcool/trafikkvakt/core/events"
	"github.com/trezcool/trafikkvakt/core/notification"
	"github.com/trezcool/trafikkvakt/services/email"
	"github.com/trezcool/trafikkvakt/services/logger"
	"github.com/trezcool/trafikkvakt/services/whatsapp"
	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/storage/backend"
	"github.com/trezcool/trafikkvakt/storage/jsonfile"
)

func main() {
	if err := run(); err != nil {
		log.Printf("error: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		return err
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	storeLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "STORAGE : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up storage
	store, err := backend.Open(ctx, conf, storeLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			storeLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.Notifications.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	broker := events.NewBroker()
	defer broker.Close()

	dutySvc := duty.NewService(storage.NewDutyRepository(store.Table), broker, logger)
	whatsapp := whatsappsvc.NewClient(conf.WhatsApp, logger)

	settings := notificationSettings(ctx, dutySvc, conf, logger)
	scheduler := notification.NewScheduler(notification.Options{
		Duties:    dutySvc,
		Messenger: whatsapp,
		Mailer:    mailSvc,
		Emails:    conf.Notifications.Emails,
		Logger:    logger,
		Location:  conf.Notifications.Location(),
		Enabled:   settings.Enabled,
		Time:      settings.Time,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{
		"env":     conf.Env,
		"storage": store.Table.Name(),
	})
	defer logger.Info("Application stopped")

	g, gctx := errgroup.WithContext(ctx)
	server := echoapi.NewServer(&echoapi.Options{
		Conf:           conf,
		Logger:         logger,
		DutySvc:        dutySvc,
		Broker:         broker,
		Scheduler:      scheduler,
		WhatsApp:       whatsapp,
		Diagnostics:    store.Diagnostics,
		SignalShutdown: stop,
	})

	// =========================================================================
	// Start API Service

	g.Go(server.Start)

	g.Go(func() error {
		if err := scheduler.Start(); err != nil {
			logger.Error("starting notification scheduler", err)
		}
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	if store.Files != nil && conf.Storage.WatchFiles {
		watcher, err := jsonfile.NewWatcher(store.Files, storeLogger, dutySvc.Reloaded)
		if err != nil {
			logger.Warn("not watching data files", err)
		} else {
			g.Go(func() error {
				defer watcher.Stop()
				return watcher.Run(gctx)
			})
		}
	}

	// =========================================================================
	// Shutdown

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Start shutdown...")

		// give outstanding requests a deadline for completion
		sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		broker.Close() // ends the event streams
		if err := server.Stop(sctx); err != nil {
			logger.Error("could not stop server gracefully", err)
			return err
		}
		return nil
	})

	return g.Wait()
}

// notificationSettings picks the persisted send time over NOTIFICATION_TIME.
// Whether notifications are sent at all follows WHATSAPP_NOTIFICATIONS_ENABLED only.
func notificationSettings(ctx context.Context, svc *duty.Service, conf *core.Config, logger core.Logger) duty.NotificationSettings {
	settings, err := svc.GetNotificationSettings(ctx, duty.NotificationSettings{Time: conf.Notifications.Time})
	if err != nil {
		logger.Warn("could not load notification settings, using config", err)
	}
	if !core.IsHHMM(settings.Time) {
		settings.Time = conf.Notifications.Time
	}
	settings.Enabled = conf.Notifications.Enabled
	return settings
}

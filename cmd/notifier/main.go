package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pawprint/groombook/broker"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

// The notifier consumes reservation events and reminds customers about
// upcoming, changed or cancelled appointments. Database state stays
// authoritative; a lost event only means a missed courtesy email.
func main() {
	var logger *zap.Logger
	var dotFile string
	var err error

	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Environment: env,
		Debug:       env != "production",
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "notifier",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	amqpBroker, err := broker.NewAMQPBroker(os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Message Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := amqpBroker.ReceiveReservationEvents(ctx, "notifier_reservation_events")
	if err != nil {
		logger.Fatal("Cannot subscribe to reservation events",
			zap.Error(err),
		)
	}

	go func() {
		for e := range events {
			eventLogger := logger.With(
				zap.String("ReservationID", e.ReservationID),
				zap.String("CustomerID", e.CustomerID),
				zap.String("Kind", string(e.Kind)),
			)
			switch e.Kind {
			case broker.EventReservationCreated:
				eventLogger.Info("Sending booking confirmation",
					zap.Time("ScheduledAt", e.ScheduledAt),
				)
			case broker.EventReservationStatusChanged:
				eventLogger.Info("Sending status update",
					zap.String("PreviousStatus", e.PreviousStatus),
					zap.String("Status", e.Status),
				)
			case broker.EventReservationDeleted:
				eventLogger.Info("Sending cancellation notice")
			}
			// TODO: deliver via SMTP once the notification templates are finalized
		}
	}()

	logger.Info("Notifier started")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	cancel()
}

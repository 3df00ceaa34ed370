package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EcoCycle/PickupDesk/config"
	requestsapi "github.com/EcoCycle/PickupDesk/internal/api/requests_api"
	"github.com/EcoCycle/PickupDesk/internal/broker/kafka"
	"github.com/EcoCycle/PickupDesk/internal/cache/rediscache"
	"github.com/EcoCycle/PickupDesk/internal/integrations/mailer"
	mailerfake "github.com/EcoCycle/PickupDesk/internal/integrations/mailer/fake"
	"github.com/EcoCycle/PickupDesk/internal/integrations/mailer/sendgridmail"
	"github.com/EcoCycle/PickupDesk/internal/otp"
	"github.com/EcoCycle/PickupDesk/internal/services/notifier"
	"github.com/EcoCycle/PickupDesk/internal/services/requests"
	"github.com/EcoCycle/PickupDesk/internal/storage/pgrequests"
)

type pickupAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     pickupAPIOpts
	api      *requestsapi.Server
	notif    *notifier.Notifier
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapPickupAPI() *pickupAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.PickupDesk.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.PickupDesk.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "pickup-api"
	}
	topic := cfg.Kafka.RequestUpdatedTopicName
	if topic == "" {
		topic = "request.updated"
	}

	snapshotTTL := time.Duration(cfg.PickupDesk.SnapshotTTLSeconds) * time.Second
	if snapshotTTL <= 0 {
		snapshotTTL = 10 * time.Minute
	}
	otpTTL := time.Duration(cfg.PickupDesk.OTPTTLSeconds) * time.Second
	responseDeadline := time.Duration(cfg.PickupDesk.ResponseDeadlineHours) * time.Hour

	log := slog.Default()

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	otpSvc := otp.New(rc, rl, otpTTL, int64(cfg.PickupDesk.OTPMaxAttempts))

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	svc := requests.New(st, rc, otpSvc, producer, log, topic, snapshotTTL, responseDeadline)

	// Без API-ключа SendGrid письма уходят в fake — удобно для локального
	// стенда и интеграционных тестов.
	var mailClient mailer.Client
	if cfg.SendGrid.APIKey != "" {
		mailClient = sendgridmail.New(cfg.SendGrid.APIKey, cfg.SendGrid.FromName, cfg.SendGrid.FromEmail, cfg.SendGrid.Sandbox)
	} else {
		mailClient = mailerfake.New()
	}
	notif := notifier.New(mailClient, log, cfg.PickupDesk.AdminEmail)

	api := requestsapi.New(svc, st, rl, log, requestsapi.Options{
		JWTSecret:   cfg.PickupDesk.JWTSecret,
		JWTIssuer:   cfg.PickupDesk.JWTIssuer,
		TokenTTL:    time.Duration(cfg.PickupDesk.TokenTTLHours) * time.Hour,
		UploadDir:   cfg.PickupDesk.UploadDir,
		SwaggerPath: cfg.PickupDesk.SwaggerPath,
		LoginPerMin: int64(cfg.PickupDesk.LoginRateLimitPerMinute),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &pickupAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: pickupAPIOpts{
			httpAddr:      httpAddr,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		notif:    notif,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgrequests.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgrequests.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *pickupAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *pickupAPIApp) Run() error {
	return runPickupAPI(a.ctx, a.opts, a.api.Router(), a.notif, a.consumer)
}
